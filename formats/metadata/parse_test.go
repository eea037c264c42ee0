package metadata

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseFloat(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"int", 300, 300, true},
		{"uint32", uint32(5000), 5000, true},
		{"string", " 72.5 ", 72.5, true},
		{"rational string", "300/1", 300, true},
		{"big rat", big.NewRat(1, 4), 0.25, true},
		{"division by zero", "1/0", 0, false},
		{"text", "meters", 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFloat(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseFloat(%v) = (%v, %v), erwartet (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPhysicalSize(t *testing.T) {
	tests := []struct {
		name    string
		density any
		unit    any
		inverse bool
		want    *Quantity
	}{
		{"pixel pro meter", 5000, "meters", true, &Quantity{Value: 1.0 / 5000, Unit: Meter}},
		{"code meter", "5000", 1, true, &Quantity{Value: 1.0 / 5000, Unit: Meter}},
		{"code inch ohne Inversion", 300, 2, false, &Quantity{Value: 300, Unit: Inch}},
		{"name inches", 2, "inches", false, &Quantity{Value: 2, Unit: Inch}},
		{"unbekannte Einheit", 5000, "parsecs", true, nil},
		{"unbekannter Code", 5000, 7, true, nil},
		{"numerischer String als Einheit", 5000, "1", true, nil},
		{"nicht-numerische Dichte", "abc", "meters", true, nil},
		{"null Dichte invertiert", 0, "meters", true, nil},
		{"fehlende Dichte", nil, "meters", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PhysicalSize(tt.density, tt.unit, tt.inverse, PNGUnits)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("PhysicalSize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDatetime(t *testing.T) {
	want := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

	for _, in := range []any{"2021:03:04 05:06:07", "2021-03-04T05:06:07Z", want} {
		got := ParseDatetime(in)
		if got == nil || !got.Equal(want) {
			t.Errorf("ParseDatetime(%v) = %v, erwartet %v", in, got, want)
		}
	}

	if got := ParseDatetime("gestern"); got != nil {
		t.Errorf("ParseDatetime(gestern) = %v, erwartet nil", got)
	}
}

func TestQuantityIn(t *testing.T) {
	q := Quantity{Value: 1.0 / 5000, Unit: Meter}
	um, err := q.In(Micrometer)
	if err != nil {
		t.Fatal(err)
	}
	if um.Value < 199.999 || um.Value > 200.001 {
		t.Errorf("Wert = %v, erwartet 200 micrometer", um.Value)
	}
}

func TestRawStoreFirstValue(t *testing.T) {
	raw := NewRawStore()
	raw.Set("PNG", "Comment", "")
	raw.Set("EXIF", "ImageDescription", nil)
	raw.Set("EXIF", "UserComment", "zweite Wahl")
	raw.Set("EXIF", "Software", "scanner")

	got := raw.FirstValue("PNG.Comment", "EXIF.ImageDescription", "EXIF.UserComment", "EXIF.Software")
	if got != "zweite Wahl" {
		t.Errorf("FirstValue() = %v, erwartet \"zweite Wahl\"", got)
	}

	if got := raw.FirstValue("PNG.Missing"); got != nil {
		t.Errorf("FirstValue() = %v, erwartet nil", got)
	}
}

func TestRawStoreOrder(t *testing.T) {
	raw := NewRawStore()
	raw.Set("PNG", "b", 1)
	raw.Set("PNG", "a", 2)
	raw.Set("EXIF", "c", 3)

	if diff := cmp.Diff([]string{"PNG.b", "PNG.a", "EXIF.c"}, raw.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	b, a, c := strings.Index(string(data), `"PNG.b"`), strings.Index(string(data), `"PNG.a"`), strings.Index(string(data), `"EXIF.c"`)
	if b < 0 || !(b < a && a < c) {
		t.Errorf("JSON-Reihenfolge falsch: %s", data)
	}

	if diff := cmp.Diff(map[string]any{"b": 1, "a": 2}, raw.Namespace("PNG")); diff != "" {
		t.Errorf("Namespace() mismatch (-want +got):\n%s", diff)
	}
}
