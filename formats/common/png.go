// MODUL: png
// ZWECK: PNG-Format (Signatur, Chunk-Parser, Reader, Konvertierung nach TIFF)
// INPUT: PNG-Dateien
// OUTPUT: Descriptor, ImageMetadata mit PNG- und EXIF-Tags
// NEBENEFFEKTE: Dateisystem-Lesezugriff
// ABHAENGIGKEITEN: image/png, compress/zlib, exif.go (goexif)
// HINWEISE: Keine Unterstuetzung fuer Transparenz (nur 1 oder 3 Kanaele), kein APNG

package common

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image/png"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pimsgo/pims/formats"
	"github.com/pimsgo/pims/formats/metadata"
)

// PNGID ist der Kurzname des PNG-Formats.
const PNGID = "png"

var magicPNG = []byte{0x89, 0x50, 0x4E, 0x47}

// PNG erstellt den PNG-Deskriptor.
func PNG(threshold int) *formats.Descriptor {
	reader := decodeReader(png.Decode)
	return &formats.Descriptor{
		ID:                PNGID,
		Name:              "PNG",
		Checker:           formats.Magic{Bytes: magicPNG},
		Parser:            pngParser{},
		Reader:            reader,
		Convertor:         tiffConvertor{reader: reader},
		Spatial:           true,
		Readable:          true,
		ConversionTrigger: sizeTrigger(threshold),
	}
}

// ============================================================================
// Parser
// ============================================================================

// Reihenfolge der Ersatzfelder ist Teil des Vertrags
var (
	pngDescriptionFields = []string{"PNG.Comment", "EXIF.ImageDescription", "EXIF.UserComment"}
	pngDateFields        = []string{"PNG.CreationTime", "PNG.ModifyDate", "EXIF.CreationDate", "EXIF.DateTimeOriginal", "EXIF.ModifyDate"}
)

type pngParser struct{}

// ParseMain liest den IHDR-Chunk und lehnt Transparenz ab.
func (pngParser) ParseMain(path string) (metadata.ImageMetadata, error) {
	hdr, _, err := readPNG(path, false)
	if err != nil {
		return metadata.ImageMetadata{}, err
	}

	imd := metadata.ImageMetadata{
		Width:           int(hdr.width),
		Height:          int(hdr.height),
		Channels:        hdr.channels(),
		SignificantBits: int(hdr.bitDepth),
	}
	if imd.Channels != 1 && imd.Channels != 3 {
		slog.Error("invalid number of channels", "path", path, "channels", imd.Channels)
		return metadata.ImageMetadata{}, &metadata.ParsingError{
			Path:   path,
			Reason: fmt.Sprintf("invalid number of channels: %d", imd.Channels),
		}
	}
	return imd, nil
}

// ParseRaw liest alle Text-, Zeit-, Aufloesungs- und EXIF-Chunks.
func (pngParser) ParseRaw(path string) (*metadata.RawStore, error) {
	_, raw, err := readPNG(path, true)
	return raw, err
}

// ParseKnown loest Beschreibung, Zeitstempel und Pixelgroesse auf.
func (pngParser) ParseKnown(imd metadata.ImageMetadata, raw *metadata.RawStore) (metadata.ImageMetadata, error) {
	if v, ok := raw.FirstValue(pngDescriptionFields...).(string); ok {
		imd.Description = v
	}
	imd.AcquisitionTime = metadata.ParseDatetime(raw.FirstValue(pngDateFields...))

	unit := raw.Value("PNG.PixelUnits")
	imd.PhysicalSizeX = metadata.PhysicalSize(raw.Value("PNG.PixelsPerUnitX"), unit, true, metadata.PNGUnits)
	imd.PhysicalSizeY = metadata.PhysicalSize(raw.Value("PNG.PixelsPerUnitY"), unit, true, metadata.PNGUnits)
	if imd.PhysicalSizeX == nil && imd.PhysicalSizeY == nil {
		unit := raw.Value("EXIF.ResolutionUnit")
		imd.PhysicalSizeX = metadata.PhysicalSize(raw.Value("EXIF.XResolution"), unit, false, metadata.PNGUnits)
		imd.PhysicalSizeY = metadata.PhysicalSize(raw.Value("EXIF.YResolution"), unit, false, metadata.PNGUnits)
	}

	imd.Complete = true
	return imd, nil
}

// ============================================================================
// Chunk-Leser
// ============================================================================

var errNotPNG = errors.New("png: invalid signature")

// Maximale Groesse fuer gelesene Zusatz-Chunks
const maxAncillaryChunk = 8 << 20

type pngHeader struct {
	width, height uint32
	bitDepth      uint8
	colorType     uint8
	compression   uint8
	filter        uint8
	interlace     uint8
	transparency  bool // tRNS vorhanden
}

// channels gibt die Anzahl der Baender nach dem Dekodieren zurueck
func (h pngHeader) channels() int {
	switch h.colorType {
	case 0:
		if h.transparency {
			return 2
		}
		return 1
	case 2, 3:
		if h.transparency {
			return 4
		}
		return 3
	case 4:
		return 2
	case 6:
		return 4
	}
	return 0
}

// readPNG laeuft ueber alle Chunks bis IEND. Mit withRaw werden Tags gesammelt.
func readPNG(path string, withRaw bool) (pngHeader, *metadata.RawStore, error) {
	var hdr pngHeader
	raw := metadata.NewRawStore()

	f, err := os.Open(path)
	if err != nil {
		return hdr, nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	sig := make([]byte, 8)
	if _, err := io.ReadFull(r, sig); err != nil || !bytes.Equal(sig[:4], magicPNG) {
		return hdr, nil, &metadata.ParsingError{Path: path, Err: errNotPNG}
	}

	seenIHDR := false
	for {
		var head [8]byte
		if _, err := io.ReadFull(r, head[:]); err != nil {
			if seenIHDR && errors.Is(err, io.EOF) {
				break
			}
			return hdr, nil, &metadata.ParsingError{Path: path, Reason: "truncated chunk", Err: err}
		}
		length := binary.BigEndian.Uint32(head[:4])
		typ := string(head[4:8])

		if !wantChunk(typ, withRaw) || length > maxAncillaryChunk {
			if _, err := r.Discard(int(length) + 4); err != nil {
				return hdr, nil, &metadata.ParsingError{Path: path, Reason: "truncated " + typ, Err: err}
			}
			if typ == "IEND" {
				break
			}
			continue
		}

		data := make([]byte, length+4)
		if _, err := io.ReadFull(r, data); err != nil {
			return hdr, nil, &metadata.ParsingError{Path: path, Reason: "truncated " + typ, Err: err}
		}
		if crc32.Update(crc32.ChecksumIEEE(head[4:8]), crc32.IEEETable, data[:length]) != binary.BigEndian.Uint32(data[length:]) {
			return hdr, nil, &metadata.ParsingError{Path: path, Reason: "checksum mismatch in " + typ}
		}
		data = data[:length]

		switch typ {
		case "IHDR":
			if length < 13 {
				return hdr, nil, &metadata.ParsingError{Path: path, Reason: "short IHDR"}
			}
			hdr.width = binary.BigEndian.Uint32(data[0:4])
			hdr.height = binary.BigEndian.Uint32(data[4:8])
			hdr.bitDepth, hdr.colorType = data[8], data[9]
			hdr.compression, hdr.filter, hdr.interlace = data[10], data[11], data[12]
			seenIHDR = true
			if withRaw {
				raw.Set("PNG", "ImageWidth", hdr.width)
				raw.Set("PNG", "ImageHeight", hdr.height)
				raw.Set("PNG", "BitDepth", hdr.bitDepth)
				raw.Set("PNG", "ColorType", hdr.colorType)
				raw.Set("PNG", "Compression", hdr.compression)
				raw.Set("PNG", "Filter", hdr.filter)
				raw.Set("PNG", "Interlace", hdr.interlace)
			}
		case "tRNS":
			hdr.transparency = true
		case "pHYs":
			if length >= 9 {
				raw.Set("PNG", "PixelsPerUnitX", binary.BigEndian.Uint32(data[0:4]))
				raw.Set("PNG", "PixelsPerUnitY", binary.BigEndian.Uint32(data[4:8]))
				units := "Unknown"
				if data[8] == 1 {
					units = "meters"
				}
				raw.Set("PNG", "PixelUnits", units)
			}
		case "tIME":
			if length >= 7 {
				t := time.Date(int(binary.BigEndian.Uint16(data[0:2])), time.Month(data[2]), int(data[3]),
					int(data[4]), int(data[5]), int(data[6]), 0, time.UTC)
				raw.Set("PNG", "ModifyDate", t.Format("2006:01:02 15:04:05"))
			}
		case "tEXt":
			if key, text, ok := bytes.Cut(data, []byte{0}); ok {
				raw.Set("PNG", tagName(string(key)), latin1(text))
			}
		case "zTXt":
			if key, rest, ok := bytes.Cut(data, []byte{0}); ok && len(rest) > 1 {
				if text, err := inflate(rest[1:]); err == nil {
					raw.Set("PNG", tagName(string(key)), latin1(text))
				}
			}
		case "iTXt":
			if key, text, ok := parseITXt(data); ok {
				raw.Set("PNG", tagName(key), text)
			}
		case "eXIf":
			if err := exifTags(bytes.NewReader(data), raw); err != nil {
				slog.Debug("ignoring unreadable eXIf chunk", "path", path, "error", err)
			}
		}
	}

	if !seenIHDR {
		return hdr, nil, &metadata.ParsingError{Path: path, Reason: "missing IHDR"}
	}
	return hdr, raw, nil
}

// wantChunk entscheidet welche Chunks gelesen werden
func wantChunk(typ string, withRaw bool) bool {
	switch typ {
	case "IHDR", "tRNS":
		return true
	case "pHYs", "tIME", "tEXt", "zTXt", "iTXt", "eXIf":
		return withRaw
	}
	return false
}

// parseITXt zerlegt keyword\0 flag method language\0 translated\0 text
func parseITXt(data []byte) (string, string, bool) {
	key, rest, ok := bytes.Cut(data, []byte{0})
	if !ok || len(rest) < 2 {
		return "", "", false
	}
	compressed := rest[0] == 1
	rest = rest[2:]
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		return "", "", false
	}
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		return "", "", false
	}
	if compressed {
		text, err := inflate(rest)
		if err != nil {
			return "", "", false
		}
		rest = text
	}
	return string(key), string(rest), true
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, maxAncillaryChunk))
}

// tagName entfernt Leerzeichen wie exiftool ("Creation Time" -> "CreationTime")
func tagName(key string) string {
	return strings.ReplaceAll(strings.TrimSpace(key), " ", "")
}

// latin1 dekodiert ISO-8859-1 Text aus tEXt/zTXt Chunks
func latin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
