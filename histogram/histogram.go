// Package histogram - Intensitaets-Histogramme fuer raeumliche Artefakte.
//
// MODUL: histogram
// ZWECK: Berechnet pro Kanal 256-Bin Histogramme und schreibt sie als Artefakt
// INPUT: Source (Pfad + Pixel-Reader), Zielverzeichnis, Kind (fast|complete)
// OUTPUT: Artifact mit histogram.json im Zielverzeichnis
// NEBENEFFEKTE: Erstellt das Zielverzeichnis (darf nicht existieren)
// ABHAENGIGKEITEN: gonum.org/v1/gonum/stat, gonum.org/v1/gonum/floats (extern)
// HINWEISE: fast tastet hoechstens maxFastSamples Pixel in einem regelmaessigen Raster ab
package histogram

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pimsgo/pims/formats"
)

// Anzahl der Bins pro Kanal
const Bins = 256

// FileName ist der Name der Histogramm-Datei im Zielverzeichnis.
const FileName = "histogram.json"

// Obergrenze der abgetasteten Pixel fuer KindFast
const maxFastSamples = 1 << 20

// ============================================================================
// Kind
// ============================================================================

// Kind waehlt die Berechnungsstrategie.
type Kind string

const (
	KindFast     Kind = "fast"
	KindComplete Kind = "complete"
)

// ParseKind liest einen Kind-Namen, leer ergibt KindFast.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindFast:
		return KindFast, nil
	case KindComplete:
		return KindComplete, nil
	}
	return "", fmt.Errorf("histogram: unknown kind %q", s)
}

// ============================================================================
// Datenmodell
// ============================================================================

// Source ist ein lesbares raeumliches Artefakt.
type Source struct {
	Path   string
	Reader formats.Reader
}

// Channel ist das Histogramm eines Kanals mit Kennzahlen.
type Channel struct {
	Index  int      `json:"index"`
	Bins   []uint64 `json:"bins"`
	Min    int      `json:"min"`
	Max    int      `json:"max"`
	Mean   float64  `json:"mean"`
	StdDev float64  `json:"stddev"`
}

// Histogram ist der Inhalt von histogram.json.
type Histogram struct {
	Kind     Kind      `json:"kind"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Samples  int       `json:"samples"`
	Channels []Channel `json:"channels"`
}

// Artifact ist ein geschriebenes Histogramm.
type Artifact struct {
	Dir       string
	File      string
	Histogram *Histogram
}

// Builder erzeugt Histogramm-Artefakte.
type Builder struct{}

// Build implementiert den Builder-Vertrag des Importers.
func (Builder) Build(src Source, dest string, kind Kind) (*Artifact, error) {
	return Build(src, dest, kind)
}

// ============================================================================
// Build / Read
// ============================================================================

// Build liest src, berechnet das Histogramm und schreibt es nach dest.
// dest wird erstellt: existiert es bereits, enthaelt der Fehler fs.ErrExist,
// fehlt das Elternverzeichnis, fs.ErrNotExist.
func Build(src Source, dest string, kind Kind) (*Artifact, error) {
	if src.Reader == nil {
		return nil, fmt.Errorf("histogram: no reader for %s", src.Path)
	}
	if err := os.Mkdir(dest, 0o755); err != nil {
		return nil, fmt.Errorf("histogram: %w", err)
	}

	img, err := src.Reader.Read(src.Path)
	if err != nil {
		return nil, fmt.Errorf("histogram: read %s: %w", src.Path, err)
	}

	h := Compute(img, kind)

	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	file := filepath.Join(dest, FileName)
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return nil, fmt.Errorf("histogram: %w", err)
	}

	return &Artifact{Dir: dest, File: file, Histogram: h}, nil
}

// Read laedt ein geschriebenes Histogramm aus dem Verzeichnis dir.
func Read(dir string) (*Artifact, error) {
	file := filepath.Join(dir, FileName)
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("histogram: %w", err)
	}
	var h Histogram
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("histogram: decode %s: %w", file, err)
	}
	return &Artifact{Dir: dir, File: file, Histogram: &h}, nil
}

// ============================================================================
// Berechnung
// ============================================================================

// Compute berechnet das Histogramm eines Bildes.
// Graustufenbilder ergeben einen Kanal, alle anderen drei (R, G, B).
func Compute(img image.Image, kind Kind) *Histogram {
	b := img.Bounds()
	gray := isGray(img.ColorModel())
	n := 3
	if gray {
		n = 1
	}

	step := 1
	if kind != KindComplete {
		step = sampleStep(b.Dx() * b.Dy())
	}

	bins := make([][]uint64, n)
	for i := range bins {
		bins[i] = make([]uint64, Bins)
	}

	samples := 0
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			samples++
			if gray {
				bins[0][color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y]++
				continue
			}
			r, g, bl, _ := img.At(x, y).RGBA()
			bins[0][r>>8]++
			bins[1][g>>8]++
			bins[2][bl>>8]++
		}
	}

	h := &Histogram{Kind: kind, Width: b.Dx(), Height: b.Dy(), Samples: samples}
	for i, counts := range bins {
		h.Channels = append(h.Channels, summarize(i, counts))
	}
	return h
}

func isGray(m color.Model) bool {
	return m == color.GrayModel || m == color.Gray16Model
}

// sampleStep waehlt die Rasterweite, sodass hoechstens maxFastSamples Pixel gelesen werden
func sampleStep(pixels int) int {
	if pixels <= maxFastSamples {
		return 1
	}
	return int(math.Ceil(math.Sqrt(float64(pixels) / maxFastSamples)))
}

// summarize berechnet Min, Max, Mittelwert und Standardabweichung aus den Bins
func summarize(index int, counts []uint64) Channel {
	c := Channel{Index: index, Bins: counts, Min: -1, Max: -1}

	values := make([]float64, len(counts))
	weights := make([]float64, len(counts))
	for v, n := range counts {
		values[v] = float64(v)
		weights[v] = float64(n)
		if n > 0 {
			if c.Min < 0 {
				c.Min = v
			}
			c.Max = v
		}
	}

	if floats.Sum(weights) == 0 {
		return c
	}
	c.Mean, c.StdDev = stat.MeanStdDev(values, weights)
	if math.IsNaN(c.StdDev) {
		c.StdDev = 0
	}
	return c
}
