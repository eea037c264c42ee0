// Package common - Standard-Bildformate (PNG, BMP, JPEG, WebP, TIFF).
//
// MODUL: common
// ZWECK: Gemeinsame Codec-Bausteine und die Standard-Format-Tabelle
// INPUT: Dateipfade, Schwellwert fuer die Konvertierung
// OUTPUT: Geordnete Deskriptor-Tabelle, Registry
// NEBENEFFEKTE: Reader lesen Dateien, der Convertor schreibt TIFF-Dateien
// ABHAENGIGKEITEN: golang.org/x/image/draw, golang.org/x/image/tiff (extern), formats
// HINWEISE: Alle konvertierten Bilder landen als Deflate-TIFF (Graustufen oder RGB)
package common

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/pimsgo/pims/formats"
	"github.com/pimsgo/pims/formats/metadata"
)

// DefaultConversionThreshold ist die Kantenlaenge, ab der konvertiert wird.
const DefaultConversionThreshold = 1024

// ============================================================================
// Format-Tabelle
// ============================================================================

// Formats gibt die Standard-Deskriptoren in Erkennungs-Reihenfolge zurueck.
// threshold <= 0 verwendet DefaultConversionThreshold.
func Formats(threshold int) []*formats.Descriptor {
	if threshold <= 0 {
		threshold = DefaultConversionThreshold
	}
	return []*formats.Descriptor{
		PNG(threshold),
		JPEG(threshold),
		BMP(threshold),
		WebP(threshold),
		TIFF(),
	}
}

// Registry baut die Standard-Registry.
func Registry(threshold int) *formats.Registry {
	return formats.MustRegistry(Formats(threshold)...)
}

// sizeTrigger konvertiert sobald eine Kante den Schwellwert erreicht.
func sizeTrigger(threshold int) func(metadata.ImageMetadata) bool {
	return func(imd metadata.ImageMetadata) bool {
		return !(imd.Width < threshold && imd.Height < threshold)
	}
}

// ============================================================================
// Reader
// ============================================================================

// decodeReader liest eine Datei mit einem festen Decoder.
type decodeReader func(io.Reader) (image.Image, error)

// Read implementiert formats.Reader.
func (decode decodeReader) Read(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("bild dekodieren fehlgeschlagen: %w", err)
	}
	return img, nil
}

// decodeConfig liest nur den Header einer Datei.
func decodeConfig(path string, decode func(io.Reader) (image.Config, error)) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return image.Config{}, &metadata.ParsingError{Path: path, Reason: "invalid header", Err: err}
	}
	return cfg, nil
}

// ChannelsOf leitet die Kanalanzahl aus einem Farbmodell ab.
func ChannelsOf(m color.Model) int {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return 1
	case color.NRGBAModel, color.NRGBA64Model, color.CMYKModel, color.NYCbCrAModel:
		return 4
	case color.AlphaModel, color.Alpha16Model:
		return 1
	}
	return 3
}

// bitsOf leitet die signifikanten Bits pro Kanal aus einem Farbmodell ab.
func bitsOf(m color.Model) int {
	switch m {
	case color.Gray16Model, color.RGBA64Model, color.NRGBA64Model, color.Alpha16Model:
		return 16
	}
	return 8
}

// mainFromConfig baut die formatunabhaengigen Metadaten aus einem image.Config.
func mainFromConfig(cfg image.Config) metadata.ImageMetadata {
	return metadata.ImageMetadata{
		Width:           cfg.Width,
		Height:          cfg.Height,
		Channels:        ChannelsOf(cfg.ColorModel),
		SignificantBits: bitsOf(cfg.ColorModel),
	}
}

// ============================================================================
// Convertor
// ============================================================================

// tiffConvertor schreibt das Quellbild als Deflate-TIFF.
type tiffConvertor struct {
	reader formats.Reader
}

// Target implementiert formats.Convertor.
func (c tiffConvertor) Target() string {
	return TIFFID
}

// Convert implementiert formats.Convertor. Die Zieldatei darf nicht existieren.
func (c tiffConvertor) Convert(src, dst string) (bool, error) {
	img, err := c.reader.Read(src)
	if err != nil {
		return false, err
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return false, err
	}

	if err := tiff.Encode(f, normalize(img), &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		f.Close()
		return false, err
	}
	if err := f.Close(); err != nil {
		return false, err
	}
	return true, nil
}

// normalize konvertiert zu *image.Gray, *image.Gray16 oder *image.RGBA
func normalize(img image.Image) image.Image {
	switch img := img.(type) {
	case *image.Gray, *image.Gray16, *image.RGBA:
		return img
	}

	bounds := img.Bounds()
	if ChannelsOf(img.ColorModel()) == 1 {
		gray := image.NewGray(bounds)
		draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
		return gray
	}

	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return rgba
}
