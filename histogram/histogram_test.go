package histogram

import (
	"errors"
	"image"
	"image/color"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type imageReader struct {
	img image.Image
}

func (r imageReader) Read(string) (image.Image, error) { return r.img, nil }

func uniformGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindFast, false},
		{"fast", KindFast, false},
		{"COMPLETE", KindComplete, false},
		{"exact", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseKind(%q) = %q, %v, erwartet %q", tt.in, got, err, tt.want)
		}
	}
}

func TestComputeGray(t *testing.T) {
	h := Compute(uniformGray(8, 4, 7), KindComplete)
	if len(h.Channels) != 1 {
		t.Fatalf("Channels = %d, erwartet 1", len(h.Channels))
	}
	c := h.Channels[0]
	if c.Bins[7] != 32 || c.Min != 7 || c.Max != 7 || c.Mean != 7 || c.StdDev != 0 {
		t.Errorf("Channel = %+v, erwartet alle 32 Pixel bei 7", c)
	}
	if h.Samples != 32 {
		t.Errorf("Samples = %d, erwartet 32", h.Samples)
	}
}

func TestComputeRGB(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 0, G: 10, B: 255, A: 255})
	img.Set(1, 0, color.RGBA{R: 255, G: 10, B: 255, A: 255})

	h := Compute(img, KindFast)
	if len(h.Channels) != 3 {
		t.Fatalf("Channels = %d, erwartet 3", len(h.Channels))
	}

	got := []int{h.Channels[0].Min, h.Channels[0].Max, h.Channels[1].Min, h.Channels[2].Max}
	if diff := cmp.Diff([]int{0, 255, 10, 255}, got); diff != "" {
		t.Errorf("Min/Max mismatch (-want +got):\n%s", diff)
	}
	if h.Channels[0].Mean != 127.5 {
		t.Errorf("Mean = %v, erwartet 127.5", h.Channels[0].Mean)
	}
}

func TestFastSampling(t *testing.T) {
	if got := sampleStep(100); got != 1 {
		t.Errorf("sampleStep(100) = %d, erwartet 1", got)
	}
	if got := sampleStep(4 * maxFastSamples); got != 2 {
		t.Errorf("sampleStep(4M) = %d, erwartet 2", got)
	}

	img := uniformGray(2048, 2048, 1)
	fast := Compute(img, KindFast)
	if fast.Samples > maxFastSamples {
		t.Errorf("Samples = %d, erwartet hoechstens %d", fast.Samples, maxFastSamples)
	}
	if fast.Channels[0].Mean != 1 {
		t.Errorf("Mean = %v, erwartet 1", fast.Channels[0].Mean)
	}
}

func TestBuildAndRead(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "histogram")
	src := Source{Path: "spatial.png", Reader: imageReader{uniformGray(4, 4, 200)}}

	a, err := Build(src, dest, KindFast)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if a.File != filepath.Join(dest, FileName) {
		t.Errorf("File = %q", a.File)
	}

	back, err := Read(dest)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if diff := cmp.Diff(a.Histogram, back.Histogram); diff != "" {
		t.Errorf("Read() mismatch (-want +got):\n%s", diff)
	}

	if _, err := Build(src, dest, KindFast); !errors.Is(err, fs.ErrExist) {
		t.Errorf("Build() error = %v, erwartet ErrExist", err)
	}
	if _, err := Build(src, filepath.Join(dir, "missing", "histogram"), KindFast); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Build() error = %v, erwartet ErrNotExist", err)
	}
}
