// MODUL: tiff
// ZWECK: TIFF-Format, Ziel aller Konvertierungen
// INPUT: TIFF-Dateien (little und big endian)
// OUTPUT: Descriptor, Tags unter "EXIF.*"
// NEBENEFFEKTE: Dateisystem-Lesezugriff
// ABHAENGIGKEITEN: golang.org/x/image/tiff (extern), exif.go (goexif)
// HINWEISE: Ohne Convertor, damit TIFF in der eingeschraenkten Registry landet

package common

import (
	"log/slog"
	"os"

	"golang.org/x/image/tiff"

	"github.com/pimsgo/pims/formats"
	"github.com/pimsgo/pims/formats/metadata"
)

// TIFFID ist der Kurzname des TIFF-Formats und das Konvertierungsziel.
const TIFFID = "tiff"

// TIFF erstellt den TIFF-Deskriptor.
func TIFF() *formats.Descriptor {
	return &formats.Descriptor{
		ID:   TIFFID,
		Name: "TIFF",
		Checker: formats.AnyOf{
			formats.Pattern("II*\x00"),
			formats.Pattern("MM\x00*"),
		},
		Parser:   tiffParser{},
		Reader:   decodeReader(tiff.Decode),
		Spatial:  true,
		Readable: true,
	}
}

type tiffParser struct{}

func (tiffParser) ParseMain(path string) (metadata.ImageMetadata, error) {
	cfg, err := decodeConfig(path, tiff.DecodeConfig)
	if err != nil {
		return metadata.ImageMetadata{}, err
	}
	return mainFromConfig(cfg), nil
}

func (tiffParser) ParseRaw(path string) (*metadata.RawStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw := metadata.NewRawStore()
	if err := exifTags(f, raw); err != nil {
		slog.Debug("unreadable tiff tags", "path", path, "error", err)
	}
	return raw, nil
}

func (tiffParser) ParseKnown(imd metadata.ImageMetadata, raw *metadata.RawStore) (metadata.ImageMetadata, error) {
	if v, ok := raw.Value("EXIF.ImageDescription").(string); ok {
		imd.Description = v
	}
	imd.AcquisitionTime = metadata.ParseDatetime(raw.FirstValue("EXIF.DateTimeOriginal", "EXIF.DateTime"))

	unit := raw.Value("EXIF.ResolutionUnit")
	imd.PhysicalSizeX = metadata.PhysicalSize(raw.Value("EXIF.XResolution"), unit, true, metadata.TIFFUnits)
	imd.PhysicalSizeY = metadata.PhysicalSize(raw.Value("EXIF.YResolution"), unit, true, metadata.TIFFUnits)

	imd.Complete = true
	return imd, nil
}
