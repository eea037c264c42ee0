// MODUL: metadata
// ZWECK: Normalisiertes Bild-Metadaten-Dokument (IMD) fuer alle Formate
// INPUT: Werte aus Format-Parsern (Dimensionen, Kanaele, Tags)
// OUTPUT: ImageMetadata Struktur
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: Ein IMD wird von genau einem Parser erzeugt und danach nicht mehr veraendert

package metadata

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMetadataParsing wird von Parsern zurueckgegeben, wenn ein Dokument
// nicht aufgebaut werden kann (z.B. nicht unterstuetzte Kanalanzahl).
var ErrMetadataParsing = errors.New("metadata: parsing problem")

// ParsingError beschreibt einen fehlgeschlagenen Parse-Vorgang fuer eine Datei.
type ParsingError struct {
	Path   string
	Reason string
	Err    error
}

// Error implementiert das error Interface.
func (e *ParsingError) Error() string {
	msg := "metadata: " + e.Path
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap gibt den urspruenglichen Fehler zurueck.
func (e *ParsingError) Unwrap() error {
	if e.Err == nil {
		return ErrMetadataParsing
	}
	return e.Err
}

// Is erlaubt errors.Is(err, ErrMetadataParsing) fuer jeden ParsingError.
func (e *ParsingError) Is(target error) bool {
	return target == ErrMetadataParsing
}

// Unit ist eine physikalische Laengeneinheit.
type Unit string

const (
	Meter      Unit = "meter"
	Centimeter Unit = "centimeter"
	Millimeter Unit = "millimeter"
	Micrometer Unit = "micrometer"
	Inch       Unit = "inch"
)

// perMeter gibt an, wie viele Einheiten einen Meter ergeben.
var perMeter = map[Unit]float64{
	Meter:      1,
	Centimeter: 100,
	Millimeter: 1e3,
	Micrometer: 1e6,
	Inch:       1 / 0.0254,
}

// Quantity ist ein Zahlenwert mit Einheit (z.B. physikalische Pixelgroesse).
type Quantity struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// In rechnet die Groesse in eine andere Einheit um.
func (q Quantity) In(u Unit) (Quantity, error) {
	from, ok := perMeter[q.Unit]
	if !ok {
		return Quantity{}, fmt.Errorf("metadata: unknown unit %q", q.Unit)
	}
	to, ok := perMeter[u]
	if !ok {
		return Quantity{}, fmt.Errorf("metadata: unknown unit %q", u)
	}
	return Quantity{Value: q.Value / from * to, Unit: u}, nil
}

// String implementiert Stringer Interface
func (q Quantity) String() string {
	return strconv.FormatFloat(q.Value, 'g', -1, 64) + " " + string(q.Unit)
}

// ImageMetadata ist das normalisierte Metadaten-Dokument eines Bildes.
//
// PhysicalSizeX/Y sind nil, wenn die Quelle keine (gueltige) Angabe enthaelt.
// Complete wird erst gesetzt, wenn der Parser alle Felder aufgeloest hat,
// die er fuer sein Format garantiert.
type ImageMetadata struct {
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	Channels        int        `json:"channels"`
	SignificantBits int        `json:"significant_bits,omitempty"`
	PhysicalSizeX   *Quantity  `json:"physical_size_x,omitempty"`
	PhysicalSizeY   *Quantity  `json:"physical_size_y,omitempty"`
	AcquisitionTime *time.Time `json:"acquisition_time,omitempty"`
	Description     string     `json:"description,omitempty"`
	Complete        bool       `json:"is_complete"`

	Raw *RawStore `json:"raw,omitempty"`
}

// Main gibt nur die formatunabhaengigen Felder zurueck (Dimensionen, Kanaele).
func (m ImageMetadata) Main() ImageMetadata {
	return ImageMetadata{
		Width:           m.Width,
		Height:          m.Height,
		Channels:        m.Channels,
		SignificantBits: m.SignificantBits,
	}
}
