// MODUL: exif
// ZWECK: EXIF- und TIFF-Tags in den Roh-Tag-Speicher uebernehmen
// INPUT: io.Reader mit EXIF-Block (JPEG APP1, PNG eXIf, TIFF-Datei)
// OUTPUT: Tags unter dem Namespace "EXIF"
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: github.com/rwcarlsen/goexif (extern)
// HINWEISE: Rationale Werte werden als float64 gespeichert, mehrwertige Tags als Slice

package common

import (
	"bytes"
	"io"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	exiftiff "github.com/rwcarlsen/goexif/tiff"

	"github.com/pimsgo/pims/formats/metadata"
)

// ExifNamespace ist der Namespace fuer EXIF-Tags im RawStore.
const ExifNamespace = "EXIF"

// exifTags dekodiert einen EXIF-Block und schreibt alle bekannten Felder nach raw.
func exifTags(r io.Reader, raw *metadata.RawStore) error {
	x, err := exif.Decode(r)
	if err != nil {
		return err
	}
	return x.Walk(exifWalker{raw: raw})
}

type exifWalker struct {
	raw *metadata.RawStore
}

// Walk implementiert exif.Walker.
func (w exifWalker) Walk(name exif.FieldName, tag *exiftiff.Tag) error {
	if v := tagValue(tag); v != nil {
		w.raw.Set(ExifNamespace, string(name), v)
	}
	return nil
}

// tagValue wandelt einen Tag-Wert in einen einfachen Go-Wert um.
// Nicht lesbare Werte ergeben nil und werden uebersprungen.
func tagValue(tag *exiftiff.Tag) any {
	switch tag.Format() {
	case exiftiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return nil
		}
		return strings.TrimRight(s, "\x00 ")
	case exiftiff.RatVal:
		return collect(tag, func(i int) (any, error) {
			r, err := tag.Rat(i)
			if err != nil {
				return nil, err
			}
			f, _ := r.Float64()
			return f, nil
		})
	case exiftiff.IntVal:
		return collect(tag, func(i int) (any, error) { return tag.Int(i) })
	case exiftiff.FloatVal:
		return collect(tag, func(i int) (any, error) { return tag.Float(i) })
	case exiftiff.UndefVal:
		return undefinedText(tag.Val)
	}
	return nil
}

// collect gibt bei einem Wert den Wert selbst, sonst ein Slice zurueck
func collect(tag *exiftiff.Tag, at func(int) (any, error)) any {
	n := int(tag.Count)
	if n == 0 {
		return nil
	}
	values := make([]any, 0, n)
	for i := range n {
		v, err := at(i)
		if err != nil {
			return nil
		}
		values = append(values, v)
	}
	if n == 1 {
		return values[0]
	}
	return values
}

// undefinedText liest UserComment-artige Felder mit 8-Byte Zeichensatz-Praefix.
// Binaere Werte ohne lesbaren Text ergeben nil.
func undefinedText(val []byte) any {
	for _, prefix := range [][]byte{[]byte("ASCII\x00\x00\x00"), []byte("UNICODE\x00"), make([]byte, 8)} {
		if bytes.HasPrefix(val, prefix) {
			val = val[len(prefix):]
			break
		}
	}
	s := strings.TrimRight(string(val), "\x00 ")
	if s == "" {
		return nil
	}
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return nil
		}
	}
	return s
}
