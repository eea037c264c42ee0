// config_paths.go - Verzeichnisse und Import-Einstellungen
//
// Dieses Modul enthaelt:
// - Root: Verwaltetes Wurzelverzeichnis (PIMS_ROOT)
// - Pending: Ablage fuer eingehende Dateien (PIMS_PENDING)
// - DB: Pfad des Import-Protokolls (PIMS_DB)
// - Histogram: Histogramm-Art (PIMS_HISTOGRAM)
// - ConversionThreshold: Seitenlaenge ab der konvertiert wird
package envconfig

import (
	"os"
	"path/filepath"
)

// Root gibt das verwaltete Wurzelverzeichnis zurueck
// Konfigurierbar via PIMS_ROOT
// Default: $HOME/.pims/root
func Root() string {
	if s := Var("PIMS_ROOT"); s != "" {
		return s
	}
	return filepath.Join(home(), ".pims", "root")
}

// Pending gibt die Ablage fuer noch nicht importierte Dateien zurueck
// Konfigurierbar via PIMS_PENDING
// Default: $HOME/.pims/pending
func Pending() string {
	if s := Var("PIMS_PENDING"); s != "" {
		return s
	}
	return filepath.Join(home(), ".pims", "pending")
}

// DB gibt den Pfad der Protokoll-Datenbank zurueck
// Konfigurierbar via PIMS_DB
// Default: <Root>/imports.db
func DB() string {
	if s := Var("PIMS_DB"); s != "" {
		return s
	}
	return filepath.Join(Root(), "imports.db")
}

var (
	// Histogram waehlt die Histogramm-Art ("fast" oder "complete")
	Histogram = String("PIMS_HISTOGRAM")

	// ConversionThreshold ist die Seitenlaenge in Pixeln, ab der Bilder
	// vor der Bereitstellung konvertiert werden
	ConversionThreshold = Uint("PIMS_CONVERSION_THRESHOLD", 1024)

	// NoLedger deaktiviert das SQLite-Protokoll
	NoLedger = Bool("PIMS_NOLEDGER")
)

func home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return home
}
