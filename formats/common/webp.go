// MODUL: webp
// ZWECK: WebP-Format (RIFF-Container mit VP8/VP8L/VP8X)
// INPUT: WebP-Dateien
// OUTPUT: Descriptor, Tags unter "RIFF.*" und "EXIF.*"
// NEBENEFFEKTE: Dateisystem-Lesezugriff
// ABHAENGIGKEITEN: golang.org/x/image/webp (extern), exif.go
// HINWEISE: Animierte WebP-Dateien werden nur mit dem ersten Frame gelesen

package common

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"os"

	"golang.org/x/image/webp"

	"github.com/pimsgo/pims/formats"
	"github.com/pimsgo/pims/formats/metadata"
)

// WebPID ist der Kurzname des WebP-Formats.
const WebPID = "webp"

// WebP erstellt den WebP-Deskriptor.
func WebP(threshold int) *formats.Descriptor {
	reader := decodeReader(webp.Decode)
	return &formats.Descriptor{
		ID:                WebPID,
		Name:              "WebP",
		Checker:           formats.Pattern("RIFF????WEBP"),
		Parser:            webpParser{},
		Reader:            reader,
		Convertor:         tiffConvertor{reader: reader},
		Spatial:           true,
		Readable:          true,
		ConversionTrigger: sizeTrigger(threshold),
	}
}

type webpParser struct{}

func (webpParser) ParseMain(path string) (metadata.ImageMetadata, error) {
	cfg, err := decodeConfig(path, webp.DecodeConfig)
	if err != nil {
		return metadata.ImageMetadata{}, err
	}
	return mainFromConfig(cfg), nil
}

// ParseRaw listet die RIFF-Chunks und dekodiert einen EXIF-Chunk falls vorhanden.
func (webpParser) ParseRaw(path string) (*metadata.RawStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 12 {
		return nil, &metadata.ParsingError{Path: path, Reason: "truncated RIFF header"}
	}

	raw := metadata.NewRawStore()
	raw.Set("RIFF", "FileSize", binary.LittleEndian.Uint32(data[4:8]))

	var chunks []string
	for off := 12; off+8 <= len(data); {
		fourcc := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := data[off+8:]
		if size > len(body) {
			break
		}
		body = body[:size]
		chunks = append(chunks, fourcc)

		switch fourcc {
		case "VP8 ", "VP8L", "VP8X":
			raw.Set("RIFF", "Encoding", fourcc)
		case "EXIF":
			if err := exifTags(bytes.NewReader(body), raw); err != nil && err != io.EOF {
				slog.Debug("ignoring unreadable exif chunk", "path", path, "error", err)
			}
		}

		// Chunks sind auf gerade Laengen aufgefuellt
		off += 8 + size + size&1
	}
	raw.Set("RIFF", "Chunks", chunks)
	return raw, nil
}

func (webpParser) ParseKnown(imd metadata.ImageMetadata, raw *metadata.RawStore) (metadata.ImageMetadata, error) {
	if v, ok := raw.FirstValue("EXIF.ImageDescription", "EXIF.UserComment").(string); ok {
		imd.Description = v
	}
	imd.AcquisitionTime = metadata.ParseDatetime(raw.FirstValue("EXIF.DateTimeOriginal", "EXIF.DateTime"))

	unit := raw.Value("EXIF.ResolutionUnit")
	imd.PhysicalSizeX = metadata.PhysicalSize(raw.Value("EXIF.XResolution"), unit, true, metadata.TIFFUnits)
	imd.PhysicalSizeY = metadata.PhysicalSize(raw.Value("EXIF.YResolution"), unit, true, metadata.TIFFUnits)

	imd.Complete = true
	return imd, nil
}
