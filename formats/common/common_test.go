// MODUL: common_test
// ZWECK: Tests fuer PNG/BMP/TIFF-Deskriptoren, Ersatzfelder und Konvertierung
// INPUT: Synthetische Bilder, im Test erzeugt
// OUTPUT: Testresultate
// NEBENEFFEKTE: schreibt temporaere Dateien
// ABHAENGIGKEITEN: testing, go-cmp, golang.org/x/image/bmp
// HINWEISE: PNG-Zusatz-Chunks werden direkt hinter IHDR eingefuegt

package common

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/bmp"

	"github.com/pimsgo/pims/formats/metadata"
)

// ============================================================================
// Helfer
// ============================================================================

func grayImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 256)
	}
	return img
}

func chunk(typ string, data []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString(typ)
	buf.Write(data)
	crc := crc32.Update(crc32.ChecksumIEEE([]byte(typ)), crc32.IEEETable, data)
	binary.Write(&buf, binary.BigEndian, crc)
	return buf.Bytes()
}

func physChunk(ppux, ppuy uint32, unit byte) []byte {
	data := make([]byte, 9)
	binary.BigEndian.PutUint32(data[0:4], ppux)
	binary.BigEndian.PutUint32(data[4:8], ppuy)
	data[8] = unit
	return chunk("pHYs", data)
}

func textChunk(key, value string) []byte {
	return chunk("tEXt", append(append([]byte(key), 0), value...))
}

// writePNG kodiert img und fuegt extra Chunks hinter IHDR ein
func writePNG(t *testing.T, img image.Image, extra ...[]byte) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	// Signatur (8) + IHDR (4+4+13+4)
	const afterIHDR = 33
	out := append([]byte{}, data[:afterIHDR]...)
	for _, c := range extra {
		out = append(out, c...)
	}
	out = append(out, data[afterIHDR:]...)

	path := filepath.Join(t.TempDir(), "image.png")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

// ============================================================================
// Tests
// ============================================================================

func TestFormatsOrder(t *testing.T) {
	var ids []string
	for _, d := range Formats(0) {
		ids = append(ids, d.ID)
	}
	want := []string{PNGID, JPEGID, BMPID, WebPID, TIFFID}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("Formats() mismatch (-want +got):\n%s", diff)
	}

	restricted := Registry(0).SpatialReadable().List()
	if len(restricted) != 1 || restricted[0].ID != TIFFID {
		t.Errorf("SpatialReadable() = %v, erwartet nur tiff", restricted)
	}
}

func TestPNGMetadata(t *testing.T) {
	path := writePNG(t, grayImage(16, 8),
		physChunk(5000, 4000, 1),
		textChunk("Comment", "slide 42"),
		textChunk("Creation Time", "2021:03:04 05:06:07"),
	)

	d, err := Registry(0).Match(path)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if d.ID != PNGID {
		t.Fatalf("Match() = %q, erwartet png", d.ID)
	}

	imd, err := d.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if imd.Width != 16 || imd.Height != 8 || imd.Channels != 1 {
		t.Errorf("Parse() = %dx%dx%d, erwartet 16x8x1", imd.Width, imd.Height, imd.Channels)
	}
	if imd.PhysicalSizeX == nil || imd.PhysicalSizeX.Unit != metadata.Meter || !approx(imd.PhysicalSizeX.Value, 1.0/5000) {
		t.Errorf("PhysicalSizeX = %v, erwartet 1/5000 meter", imd.PhysicalSizeX)
	}
	if imd.PhysicalSizeY == nil || !approx(imd.PhysicalSizeY.Value, 1.0/4000) {
		t.Errorf("PhysicalSizeY = %v, erwartet 1/4000 meter", imd.PhysicalSizeY)
	}
	if imd.Description != "slide 42" {
		t.Errorf("Description = %q, erwartet 'slide 42'", imd.Description)
	}
	if imd.AcquisitionTime == nil || imd.AcquisitionTime.Year() != 2021 {
		t.Errorf("AcquisitionTime = %v, erwartet 2021", imd.AcquisitionTime)
	}
	if !imd.Complete {
		t.Error("Complete sollte gesetzt sein")
	}
	if got := imd.Raw.Value("PNG.PixelUnits"); got != "meters" {
		t.Errorf("PNG.PixelUnits = %v, erwartet meters", got)
	}
}

func TestPNGUnknownUnit(t *testing.T) {
	path := writePNG(t, grayImage(4, 4), physChunk(5000, 5000, 0))
	imd, err := PNG(DefaultConversionThreshold).Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if imd.PhysicalSizeX != nil || imd.PhysicalSizeY != nil {
		t.Errorf("PhysicalSize = %v/%v, erwartet unbekannt", imd.PhysicalSizeX, imd.PhysicalSizeY)
	}
	if !imd.Complete {
		t.Error("Complete sollte auch ohne Pixelgroesse gesetzt sein")
	}
}

func TestPNGKnownFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		tags     map[string]any
		wantX    *metadata.Quantity
		wantDesc string
	}{
		{
			name:  "PNG Dichte invertiert",
			tags:  map[string]any{"PNG.PixelsPerUnitX": 5000, "PNG.PixelUnits": "meters"},
			wantX: &metadata.Quantity{Value: 1.0 / 5000, Unit: metadata.Meter},
		},
		{
			name:  "EXIF Ersatz ohne PNG Dichte",
			tags:  map[string]any{"EXIF.XResolution": 300, "EXIF.ResolutionUnit": 2},
			wantX: &metadata.Quantity{Value: 300, Unit: metadata.Inch},
		},
		{
			name:  "PNG Dichte hat Vorrang",
			tags:  map[string]any{"PNG.PixelsPerUnitX": 100, "PNG.PixelUnits": "meters", "EXIF.XResolution": 300, "EXIF.ResolutionUnit": 2},
			wantX: &metadata.Quantity{Value: 0.01, Unit: metadata.Meter},
		},
		{
			name:     "Beschreibung aus EXIF",
			tags:     map[string]any{"PNG.Comment": "", "EXIF.ImageDescription": "from exif", "EXIF.UserComment": "user"},
			wantDesc: "from exif",
		},
		{
			name:     "Beschreibung aus UserComment",
			tags:     map[string]any{"EXIF.UserComment": "user"},
			wantDesc: "user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := metadata.NewRawStore()
			for k, v := range tt.tags {
				raw.Set("", k, v)
			}
			imd, err := pngParser{}.ParseKnown(metadata.ImageMetadata{Width: 1, Height: 1, Channels: 1}, raw)
			if err != nil {
				t.Fatalf("ParseKnown() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantX, imd.PhysicalSizeX, cmp.Comparer(approx)); diff != "" {
				t.Errorf("PhysicalSizeX mismatch (-want +got):\n%s", diff)
			}
			if imd.Description != tt.wantDesc {
				t.Errorf("Description = %q, erwartet %q", imd.Description, tt.wantDesc)
			}
		})
	}
}

func TestPNGDateFallbackOrder(t *testing.T) {
	raw := metadata.NewRawStore()
	raw.Set("EXIF", "DateTimeOriginal", "2019:01:01 00:00:00")
	raw.Set("PNG", "ModifyDate", "2020:01:01 00:00:00")

	imd, _ := pngParser{}.ParseKnown(metadata.ImageMetadata{}, raw)
	if imd.AcquisitionTime == nil || imd.AcquisitionTime.Year() != 2020 {
		t.Errorf("AcquisitionTime = %v, erwartet PNG.ModifyDate (2020)", imd.AcquisitionTime)
	}
}

func TestPNGRejectsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	path := writePNG(t, img)

	_, err := PNG(DefaultConversionThreshold).Parse(path)
	if !errors.Is(err, metadata.ErrMetadataParsing) {
		t.Errorf("Parse() error = %v, erwartet ErrMetadataParsing", err)
	}
}

func TestPNGNeedsConversion(t *testing.T) {
	d := PNG(DefaultConversionThreshold)
	tests := []struct {
		w, h int
		want bool
	}{
		{1023, 1023, false},
		{1024, 10, true},
		{10, 1024, true},
		{2048, 2048, true},
	}
	for _, tt := range tests {
		if got := d.NeedsConversion(metadata.ImageMetadata{Width: tt.w, Height: tt.h}); got != tt.want {
			t.Errorf("NeedsConversion(%dx%d) = %v, erwartet %v", tt.w, tt.h, got, tt.want)
		}
	}
	if TIFF().NeedsConversion(metadata.ImageMetadata{Width: 4096, Height: 4096}) {
		t.Error("TIFF darf nie konvertiert werden")
	}
}

func TestConvertToTIFF(t *testing.T) {
	src := writePNG(t, grayImage(20, 10))
	dst := filepath.Join(t.TempDir(), "spatial.tiff")

	d := PNG(DefaultConversionThreshold)
	ok, err := d.Convert(src, dst)
	if err != nil || !ok {
		t.Fatalf("Convert() = %v, %v", ok, err)
	}

	target, err := Registry(0).SpatialReadable().Match(dst)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if target.ID != TIFFID {
		t.Fatalf("Match() = %q, erwartet tiff", target.ID)
	}

	imd, err := target.Parse(dst)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if imd.Width != 20 || imd.Height != 10 || imd.Channels != 1 {
		t.Errorf("Parse() = %dx%dx%d, erwartet 20x10x1", imd.Width, imd.Height, imd.Channels)
	}

	img, err := target.Read(dst)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := color.GrayModel.Convert(img.At(5, 0)).(color.Gray).Y; got != 5 {
		t.Errorf("Pixel (5,0) = %d, erwartet 5", got)
	}

	// Ziel existiert bereits
	if _, err := d.Convert(src, dst); err == nil {
		t.Error("Convert() auf vorhandenes Ziel sollte fehlschlagen")
	}
}

func TestBMPMetadata(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 12, 7))
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	// 2 mm pro Pixel
	binary.LittleEndian.PutUint32(data[38:42], 500)
	binary.LittleEndian.PutUint32(data[42:46], 500)

	path := filepath.Join(t.TempDir(), "image.bmp")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := Registry(0).Match(path)
	if err != nil || d.ID != BMPID {
		t.Fatalf("Match() = %v, %v, erwartet bmp", d, err)
	}
	imd, err := d.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if imd.Width != 12 || imd.Height != 7 {
		t.Errorf("Parse() = %dx%d, erwartet 12x7", imd.Width, imd.Height)
	}
	if imd.PhysicalSizeX == nil || !approx(imd.PhysicalSizeX.Value, 0.002) || imd.PhysicalSizeX.Unit != metadata.Meter {
		t.Errorf("PhysicalSizeX = %v, erwartet 0.002 meter", imd.PhysicalSizeX)
	}
	if imd.AcquisitionTime == nil {
		t.Error("AcquisitionTime sollte aus der Aenderungszeit kommen")
	}
}

func TestBMPZeroDensity(t *testing.T) {
	if q := bmpPhysicalSize(int32(0)); q != nil {
		t.Errorf("bmpPhysicalSize(0) = %v, erwartet nil", q)
	}
}

func TestUndefinedText(t *testing.T) {
	if got := undefinedText([]byte("ASCII\x00\x00\x00hello\x00")); got != "hello" {
		t.Errorf("undefinedText() = %v, erwartet hello", got)
	}
	if got := undefinedText([]byte{0x01, 0x02, 0x03}); got != nil {
		t.Errorf("undefinedText() = %v, erwartet nil", got)
	}
}
