// MODUL: bmp
// ZWECK: BMP-Format (BITMAPINFOHEADER und Nachfolger)
// INPUT: BMP-Dateien
// OUTPUT: Descriptor, Tags unter "File.*"
// NEBENEFFEKTE: Dateisystem-Lesezugriff
// ABHAENGIGKEITEN: golang.org/x/image/bmp (extern)
// HINWEISE: Aufnahmezeit ist die Aenderungszeit der Datei, BMP kennt kein Datumsfeld

package common

import (
	"encoding/binary"
	"io"
	"os"

	"golang.org/x/image/bmp"

	"github.com/pimsgo/pims/formats"
	"github.com/pimsgo/pims/formats/metadata"
)

// BMPID ist der Kurzname des BMP-Formats.
const BMPID = "bmp"

// Groesse von Datei-Header plus BITMAPINFOHEADER
const bmpHeaderSize = 14 + 40

// BMP erstellt den BMP-Deskriptor.
func BMP(threshold int) *formats.Descriptor {
	reader := decodeReader(bmp.Decode)
	return &formats.Descriptor{
		ID:                BMPID,
		Name:              "BMP",
		Checker:           formats.Magic{Bytes: []byte("BM")},
		Parser:            bmpParser{},
		Reader:            reader,
		Convertor:         tiffConvertor{reader: reader},
		Spatial:           true,
		Readable:          true,
		ConversionTrigger: sizeTrigger(threshold),
	}
}

type bmpParser struct{}

func (bmpParser) ParseMain(path string) (metadata.ImageMetadata, error) {
	cfg, err := decodeConfig(path, bmp.DecodeConfig)
	if err != nil {
		return metadata.ImageMetadata{}, err
	}
	return mainFromConfig(cfg), nil
}

func (bmpParser) ParseRaw(path string) (*metadata.RawStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var h [bmpHeaderSize]byte
	if _, err := io.ReadFull(f, h[:]); err != nil {
		return nil, &metadata.ParsingError{Path: path, Reason: "truncated header", Err: err}
	}

	le := binary.LittleEndian
	raw := metadata.NewRawStore()
	raw.Set("File", "FileSize", le.Uint32(h[2:6]))
	raw.Set("File", "BMPVersion", le.Uint32(h[14:18]))
	raw.Set("File", "ImageWidth", int32(le.Uint32(h[18:22])))
	raw.Set("File", "ImageHeight", int32(le.Uint32(h[22:26])))
	raw.Set("File", "Planes", le.Uint16(h[26:28]))
	raw.Set("File", "BitDepth", le.Uint16(h[28:30]))
	raw.Set("File", "Compression", le.Uint32(h[30:34]))
	raw.Set("File", "ImageLength", le.Uint32(h[34:38]))
	raw.Set("File", "PixelsPerMeterX", int32(le.Uint32(h[38:42])))
	raw.Set("File", "PixelsPerMeterY", int32(le.Uint32(h[42:46])))
	raw.Set("File", "NumColors", le.Uint32(h[46:50]))
	raw.Set("File", "NumImportantColors", le.Uint32(h[50:54]))
	raw.Set("File", "ModifyDate", info.ModTime())
	return raw, nil
}

func (bmpParser) ParseKnown(imd metadata.ImageMetadata, raw *metadata.RawStore) (metadata.ImageMetadata, error) {
	if v, ok := raw.Value("File.Comment").(string); ok {
		imd.Description = v
	}
	imd.AcquisitionTime = metadata.ParseDatetime(raw.Value("File.ModifyDate"))
	imd.PhysicalSizeX = bmpPhysicalSize(raw.Value("File.PixelsPerMeterX"))
	imd.PhysicalSizeY = bmpPhysicalSize(raw.Value("File.PixelsPerMeterY"))
	imd.Complete = true
	return imd, nil
}

// bmpPhysicalSize gibt 1/ppm Meter zurueck, 0 bedeutet unbekannt
func bmpPhysicalSize(ppm any) *metadata.Quantity {
	if f, ok := metadata.ParseFloat(ppm); !ok || f <= 0 {
		return nil
	}
	return metadata.PhysicalSize(ppm, "meters", true, metadata.PNGUnits)
}
