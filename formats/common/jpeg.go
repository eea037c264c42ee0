// MODUL: jpeg
// ZWECK: JPEG-Format mit EXIF-Tags
// INPUT: JPEG-Dateien
// OUTPUT: Descriptor
// NEBENEFFEKTE: Dateisystem-Lesezugriff
// ABHAENGIGKEITEN: image/jpeg, exif.go (goexif)
// HINWEISE: Aufloesung aus EXIF XResolution/ResolutionUnit (Pixel pro Einheit)

package common

import (
	"bytes"
	"image/jpeg"
	"log/slog"
	"os"

	"github.com/pimsgo/pims/formats"
	"github.com/pimsgo/pims/formats/metadata"
)

// JPEGID ist der Kurzname des JPEG-Formats.
const JPEGID = "jpeg"

// JPEG erstellt den JPEG-Deskriptor.
func JPEG(threshold int) *formats.Descriptor {
	reader := decodeReader(jpeg.Decode)
	return &formats.Descriptor{
		ID:                JPEGID,
		Name:              "JPEG",
		Checker:           formats.Magic{Bytes: []byte{0xFF, 0xD8, 0xFF}},
		Parser:            jpegParser{},
		Reader:            reader,
		Convertor:         tiffConvertor{reader: reader},
		Spatial:           true,
		Readable:          true,
		ConversionTrigger: sizeTrigger(threshold),
	}
}

type jpegParser struct{}

func (jpegParser) ParseMain(path string) (metadata.ImageMetadata, error) {
	cfg, err := decodeConfig(path, jpeg.DecodeConfig)
	if err != nil {
		return metadata.ImageMetadata{}, err
	}
	return mainFromConfig(cfg), nil
}

// ParseRaw liest den EXIF-Block. JPEGs ohne EXIF ergeben einen leeren Speicher.
func (jpegParser) ParseRaw(path string) (*metadata.RawStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := metadata.NewRawStore()
	if err := exifTags(bytes.NewReader(data), raw); err != nil {
		slog.Debug("no exif data", "path", path, "error", err)
	}
	return raw, nil
}

func (jpegParser) ParseKnown(imd metadata.ImageMetadata, raw *metadata.RawStore) (metadata.ImageMetadata, error) {
	if v, ok := raw.FirstValue("EXIF.ImageDescription", "EXIF.UserComment").(string); ok {
		imd.Description = v
	}
	imd.AcquisitionTime = metadata.ParseDatetime(raw.FirstValue("EXIF.DateTimeOriginal", "EXIF.DateTimeDigitized", "EXIF.DateTime"))

	unit := raw.Value("EXIF.ResolutionUnit")
	imd.PhysicalSizeX = metadata.PhysicalSize(raw.Value("EXIF.XResolution"), unit, true, metadata.TIFFUnits)
	imd.PhysicalSizeY = metadata.PhysicalSize(raw.Value("EXIF.YResolution"), unit, true, metadata.TIFFUnits)

	imd.Complete = true
	return imd, nil
}
