// MODUL: parse
// ZWECK: Gemeinsame Parse-Helfer fuer Format-Parser (Zahlen, Datumswerte, Pixelgroessen)
// INPUT: Rohwerte aus dem RawStore (string, Zahlen, *big.Rat, time.Time)
// OUTPUT: float64, *time.Time, *Quantity
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: Unbekannte Werte ergeben nil bzw. false, niemals einen Fehler

package metadata

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// ParseFloat interpretiert einen Rohwert als Gleitkommazahl.
// Unterstuetzt Zahlentypen, *big.Rat und Strings ("300", "300.5", "72/1").
func ParseFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), !math.IsNaN(float64(v))
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case *big.Rat:
		if v == nil {
			return 0, false
		}
		f, _ := v.Float64()
		return f, true
	case string:
		s := strings.TrimSpace(v)
		if num, den, ok := strings.Cut(s, "/"); ok {
			n, err1 := strconv.ParseFloat(strings.TrimSpace(num), 64)
			d, err2 := strconv.ParseFloat(strings.TrimSpace(den), 64)
			if err1 != nil || err2 != nil || d == 0 {
				return 0, false
			}
			return n / d, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Unterstuetzte Datumsformate, in Pruef-Reihenfolge
var datetimeLayouts = []string{
	"2006:01:02 15:04:05",
	"2006:01:02 15:04:05-07:00",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseDatetime interpretiert einen Rohwert als Zeitpunkt.
// Gibt nil zurueck wenn der Wert fehlt oder kein bekanntes Format hat.
func ParseDatetime(v any) *time.Time {
	switch v := v.(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return &v
	case *time.Time:
		return v
	case string:
		s := strings.TrimSpace(strings.Trim(v, "\x00"))
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return &t
			}
		}
	}
	return nil
}

// UnitTable bildet Einheiten-Codes und -Namen auf Einheiten ab.
type UnitTable struct {
	Codes map[int]Unit
	Names map[string]Unit
}

// PNGUnits ist die Einheiten-Tabelle fuer PNG pHYs und EXIF ResolutionUnit.
var PNGUnits = UnitTable{
	Codes: map[int]Unit{1: Meter, 2: Inch},
	Names: map[string]Unit{"meters": Meter, "inches": Inch},
}

// TIFFUnits ist die Einheiten-Tabelle fuer das TIFF ResolutionUnit Tag.
var TIFFUnits = UnitTable{
	Codes: map[int]Unit{2: Inch, 3: Centimeter},
	Names: map[string]Unit{"inches": Inch, "cm": Centimeter},
}

// Resolve loest einen Einheiten-Code oder -Namen auf.
// Strings werden nur ueber Names, Zahlen nur ueber Codes aufgeloest.
func (t UnitTable) Resolve(unit any) (Unit, bool) {
	if s, ok := unit.(string); ok {
		u, found := t.Names[s]
		return u, found
	}
	f, ok := ParseFloat(unit)
	if !ok || f != math.Trunc(f) {
		return "", false
	}
	u, found := t.Codes[int(f)]
	return u, found
}

// PhysicalSize berechnet eine physikalische Pixelgroesse aus Dichte und Einheit.
//
// Ist inverse gesetzt, beschreibt density Pixel pro Einheit und das Ergebnis
// ist der Kehrwert. Sonst ist density bereits Einheit pro Pixel. Unbekannte
// Einheiten, nicht-numerische oder (bei inverse) Null-Dichten ergeben nil.
func PhysicalSize(density, unit any, inverse bool, table UnitTable) *Quantity {
	if density == nil {
		return nil
	}
	value, ok := ParseFloat(density)
	if !ok {
		return nil
	}
	u, ok := table.Resolve(unit)
	if !ok {
		return nil
	}
	if inverse {
		if value == 0 {
			return nil
		}
		value = 1 / value
	}
	return &Quantity{Value: value, Unit: u}
}
