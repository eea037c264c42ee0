// MODUL: options
// ZWECK: Konfiguration und Functional Options fuer den Importer
// INPUT: Config (Pfade, Histogramm-Art), optionale Kollaborateure
// OUTPUT: Importer-Einstellungen
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: formats, formats/common, archive, histogram, github.com/google/uuid (extern)
// HINWEISE: Ohne Optionen werden die Standard-Formate, zip/tar und der Histogramm-Builder genutzt

package importer

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pimsgo/pims/archive"
	"github.com/pimsgo/pims/formats"
	"github.com/pimsgo/pims/histogram"
)

// ============================================================================
// Config
// ============================================================================

// Config ist die einmal beim Start gebaute Import-Konfiguration.
type Config struct {
	Root          string         // verwaltetes Wurzelverzeichnis
	Pending       string         // Wartebereich, nur direkte Kinder werden importiert
	HistogramKind histogram.Kind // leer ergibt histogram.KindFast
}

var (
	ErrNoRoot    = errors.New("importer: root path required")
	ErrNoPending = errors.New("importer: pending path required")
)

// ============================================================================
// Kollaborateure
// ============================================================================

// Matcher erkennt das Format einer Datei.
type Matcher interface {
	Match(path string) (*formats.Descriptor, error)
}

// Archive ist ein erkannter Container.
type Archive interface {
	Format() *formats.Descriptor
	Extract(target string) error
}

// ArchiveOpener erkennt einen Container. Ist path kein Container, muss der
// Fehler archive.ErrNotArchive enthalten.
type ArchiveOpener func(path string) (Archive, error)

// HistogramBuilder baut das Histogramm-Artefakt.
type HistogramBuilder interface {
	Build(src histogram.Source, dest string, kind histogram.Kind) (*histogram.Artifact, error)
}

// IDGenerator erzeugt eindeutige Kennungen fuer Upload-Verzeichnisse.
type IDGenerator func() (string, error)

// openArchive ist der Standard-ArchiveOpener
func openArchive(path string) (Archive, error) {
	a, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// uuidV7 erzeugt zeitlich sortierbare, eindeutige Kennungen
func uuidV7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ============================================================================
// Functional Options
// ============================================================================

// Option ist eine funktionale Option fuer New.
type Option func(*Importer)

// WithFormats setzt die Registry fuer die Erkennung hochgeladener Dateien.
func WithFormats(m Matcher) Option {
	return func(im *Importer) {
		im.formats = m
	}
}

// WithSpatialFormats setzt die eingeschraenkte Registry fuer Konvertierungs-Ergebnisse.
func WithSpatialFormats(m Matcher) Option {
	return func(im *Importer) {
		im.spatialFormats = m
	}
}

// WithArchives setzt die Container-Erkennung.
func WithArchives(open ArchiveOpener) Option {
	return func(im *Importer) {
		im.openArchive = open
	}
}

// WithHistogramBuilder setzt den Histogramm-Builder.
func WithHistogramBuilder(b HistogramBuilder) Option {
	return func(im *Importer) {
		im.histograms = b
	}
}

// WithListeners fuegt Listener hinzu.
func WithListeners(listeners ...Listener) Option {
	return func(im *Importer) {
		im.listeners = append(im.listeners, listeners...)
	}
}

// WithIDGenerator setzt den Generator fuer Upload-Verzeichnisnamen.
func WithIDGenerator(gen IDGenerator) Option {
	return func(im *Importer) {
		im.newID = gen
	}
}

// WithLogger setzt den Logger.
func WithLogger(logger *slog.Logger) Option {
	return func(im *Importer) {
		im.logger = logger
	}
}
