// Package formats - Format-Deskriptoren und Erkennungs-Vertrag.
//
// MODUL: format
// ZWECK: Faehigkeits-Vertrag, den jedes Bildformat erfuellt (Signatur, Parser, Reader, Convertor)
// INPUT: Dateipfade, Signatur-Bytes
// OUTPUT: Descriptor mit Faehigkeiten, ImageMetadata, image.Image
// NEBENEFFEKTE: Parser/Reader lesen Dateien, Convertor schreibt die Zieldatei
// ABHAENGIGKEITEN: formats/metadata
// HINWEISE: Deskriptoren sind reine Daten + Interface-Werte, nach der Registrierung unveraenderlich
package formats

import (
	"errors"
	"fmt"
	"image"

	"github.com/pimsgo/pims/formats/metadata"
)

// ============================================================================
// Faehigkeits-Interfaces
// ============================================================================

// Checker prueft die fuehrenden Bytes einer Datei gegen die Signatur eines Formats.
type Checker interface {
	Match(sig []byte) bool
}

// SignatureSizer wird von Checkern implementiert, die mehr als
// DefaultSignatureSize Bytes benoetigen.
type SignatureSizer interface {
	SignatureSize() int
}

// Parser erzeugt das Metadaten-Dokument in zwei Phasen.
//
// ParseMain liefert Dimensionen und Kanalanzahl direkt aus den Pixeldaten und
// darf nicht unterstuetzte Kanal-Layouts sofort ablehnen. ParseKnown legt die
// formatspezifischen Felder aus dem Roh-Tag-Speicher ueber das Ergebnis.
type Parser interface {
	ParseMain(path string) (metadata.ImageMetadata, error)
	ParseRaw(path string) (*metadata.RawStore, error)
	ParseKnown(imd metadata.ImageMetadata, raw *metadata.RawStore) (metadata.ImageMetadata, error)
}

// Reader liest die Pixeldaten einer Datei.
type Reader interface {
	Read(path string) (image.Image, error)
}

// Convertor wandelt eine Datei in das Zielformat Target() um.
// Ein (false, nil) Ergebnis bedeutet: Konvertierung nicht erfolgreich.
type Convertor interface {
	Target() string
	Convert(src, dst string) (bool, error)
}

// ============================================================================
// Descriptor
// ============================================================================

// Fehler fuer fehlende Faehigkeiten
var (
	ErrNoParser    = errors.New("formats: descriptor has no parser")
	ErrNoReader    = errors.New("formats: descriptor has no reader")
	ErrNoConvertor = errors.New("formats: descriptor has no convertor")
)

// Descriptor beschreibt ein Bildformat und seine Faehigkeiten.
type Descriptor struct {
	ID   string // Kurzname, dient auch als Dateiendung (z.B. "png")
	Name string // Anzeigename

	Checker   Checker
	Parser    Parser
	Reader    Reader
	Convertor Convertor // nil wenn das Format nie konvertiert wird

	// Spatial: das Format liefert eine raeumliche Darstellung
	Spatial bool
	// Readable: die Datei ist ohne weitere Konvertierung direkt lesbar
	Readable bool

	// ConversionTrigger entscheidet anhand der Metadaten, ob konvertiert wird.
	ConversionTrigger func(metadata.ImageMetadata) bool
}

// Identifier gibt den Format-Kurznamen zurueck.
func (d *Descriptor) Identifier() string {
	return d.ID
}

// IsSpatial meldet ob das Format eine raeumliche Darstellung hat.
func (d *Descriptor) IsSpatial() bool {
	return d.Spatial
}

// MatchSignature prueft die fuehrenden Bytes.
func (d *Descriptor) MatchSignature(sig []byte) bool {
	return d.Checker != nil && d.Checker.Match(sig)
}

// NeedsConversion meldet ob fuer das Bild eine Konvertierung noetig ist.
func (d *Descriptor) NeedsConversion(imd metadata.ImageMetadata) bool {
	return d.Convertor != nil && d.ConversionTrigger != nil && d.ConversionTrigger(imd)
}

// ConversionTarget gibt den Kurznamen des Konvertierungs-Zielformats zurueck.
func (d *Descriptor) ConversionTarget() string {
	if d.Convertor == nil {
		return ""
	}
	return d.Convertor.Target()
}

// Parse fuehrt beide Parser-Phasen aus und haengt den Roh-Tag-Speicher an.
func (d *Descriptor) Parse(path string) (metadata.ImageMetadata, error) {
	if d.Parser == nil {
		return metadata.ImageMetadata{}, fmt.Errorf("%w: %s", ErrNoParser, d.ID)
	}

	imd, err := d.Parser.ParseMain(path)
	if err != nil {
		return metadata.ImageMetadata{}, err
	}

	raw, err := d.Parser.ParseRaw(path)
	if err != nil {
		return metadata.ImageMetadata{}, err
	}

	imd, err = d.Parser.ParseKnown(imd, raw)
	if err != nil {
		return metadata.ImageMetadata{}, err
	}
	imd.Raw = raw
	return imd, nil
}

// Read liest die Pixeldaten.
func (d *Descriptor) Read(path string) (image.Image, error) {
	if d.Reader == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoReader, d.ID)
	}
	return d.Reader.Read(path)
}

// Convert wandelt src in das Zielformat nach dst um.
func (d *Descriptor) Convert(src, dst string) (bool, error) {
	if d.Convertor == nil {
		return false, fmt.Errorf("%w: %s", ErrNoConvertor, d.ID)
	}
	return d.Convertor.Convert(src, dst)
}

// String implementiert Stringer Interface
func (d *Descriptor) String() string {
	return d.ID
}
