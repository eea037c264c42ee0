// MODUL: errors
// ZWECK: Fehlerarten des Import-Ablaufs
// INPUT: Fehler aus Dateisystem, Registry, Archiv, Parser, Convertor, Histogramm
// OUTPUT: *Error mit genau einer Kind
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: errors.Is(err, ErrConversion) usw. funktioniert ueber die Kind-Sentinels

package importer

import (
	"errors"
	"strings"
)

// Kind ist die Fehlerart eines fehlgeschlagenen Imports.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindIOFailure
	KindNoMatchingFormat
	KindArchive
	KindUnimplemented
	KindMetadataParsing
	KindConversion
)

// Sentinel-Fehler, einer pro Kind
var (
	ErrNotFound         = errors.New("file not found in pending area")
	ErrIOFailure        = errors.New("file error")
	ErrNoMatchingFormat = errors.New("no matching format")
	ErrArchive          = errors.New("archive error")
	ErrUnimplemented    = errors.New("not implemented")
	ErrMetadataParsing  = errors.New("metadata parsing problem")
	ErrConversion       = errors.New("format conversion problem")
)

var kindErrors = map[Kind]error{
	KindNotFound:         ErrNotFound,
	KindIOFailure:        ErrIOFailure,
	KindNoMatchingFormat: ErrNoMatchingFormat,
	KindArchive:          ErrArchive,
	KindUnimplemented:    ErrUnimplemented,
	KindMetadataParsing:  ErrMetadataParsing,
	KindConversion:       ErrConversion,
}

var kindNames = map[Kind]string{
	KindNotFound:         "NotFound",
	KindIOFailure:        "IOFailure",
	KindNoMatchingFormat: "NoMatchingFormat",
	KindArchive:          "ArchiveError",
	KindUnimplemented:    "Unimplemented",
	KindMetadataParsing:  "MetadataParsingProblem",
	KindConversion:       "FormatConversionProblem",
}

// String implementiert Stringer Interface
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Error ist der einzige Fehlertyp, den Run zurueckgibt.
type Error struct {
	Kind Kind
	Op   string // Schritt, z.B. "move", "detect", "convert"
	Path string // betroffene Datei
	Err  error  // Urspruenglicher Fehler, kann nil sein
}

// Error implementiert das error Interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("import: ")
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(kindErrors[e.Kind].Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap gibt den urspruenglichen Fehler zurueck.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is vergleicht mit dem Sentinel der eigenen Kind.
func (e *Error) Is(target error) bool {
	return kindErrors[e.Kind] == target
}

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf gibt die Kind eines Fehlers zurueck, 0 wenn err kein *Error ist.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
