// Package archive - Container-Erkennung und Entpacken (zip, tar, tar.gz).
//
// MODUL: archive
// ZWECK: Erkennt Archiv-Dateien per Signatur und entpackt ihren Inhalt
// INPUT: Pfad auf eine hochgeladene Datei
// OUTPUT: *Archive mit Format-Deskriptor, entpacktes Verzeichnis
// NEBENEFFEKTE: Extract erstellt das Zielverzeichnis und schreibt alle Eintraege
// ABHAENGIGKEITEN: archive/zip, archive/tar, compress/gzip, formats
// HINWEISE: Symlinks und Eintraege ausserhalb des Ziels werden abgelehnt
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pimsgo/pims/formats"
)

// ============================================================================
// Fehler
// ============================================================================

var (
	// ErrNotArchive wird von Open zurueckgegeben wenn die Datei kein bekanntes Archiv ist.
	ErrNotArchive = errors.New("archive: not an archive")
	// ErrUnsafeEntry markiert Eintraege mit absoluten Pfaden, ".." oder Links.
	ErrUnsafeEntry = errors.New("archive: unsafe entry")
)

// Error beschreibt einen fehlgeschlagenen Archiv-Vorgang.
type Error struct {
	Op   string // "open", "extract"
	Path string
	Err  error
}

// Error implementiert das error Interface.
func (e *Error) Error() string {
	return "archive: " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

// Unwrap gibt den urspruenglichen Fehler zurueck.
func (e *Error) Unwrap() error {
	return e.Err
}

// ============================================================================
// Formate
// ============================================================================

// Kurznamen der unterstuetzten Container
const (
	ZipID = "zip"
	TarID = "tar"
	TgzID = "tgz"
)

// Maximale Groesse eines einzelnen entpackten Eintrags
const maxEntrySize = 64 << 30

var (
	zipFormat = &formats.Descriptor{
		ID:      ZipID,
		Name:    "ZIP archive",
		Checker: formats.AnyOf{formats.Pattern("PK\x03\x04"), formats.Pattern("PK\x05\x06")},
	}
	tarFormat = &formats.Descriptor{
		ID:      TarID,
		Name:    "TAR archive",
		Checker: formats.Magic{Offset: 257, Bytes: []byte("ustar")},
	}
	tgzFormat = &formats.Descriptor{
		ID:      TgzID,
		Name:    "gzip compressed TAR archive",
		Checker: formats.Magic{Bytes: []byte{0x1f, 0x8b}},
	}
)

// Formats gibt die Container-Deskriptoren in Erkennungs-Reihenfolge zurueck.
// Sie sind nicht raeumlich und haben weder Parser noch Reader.
func Formats() []*formats.Descriptor {
	return []*formats.Descriptor{zipFormat, tarFormat, tgzFormat}
}

// ============================================================================
// Archive
// ============================================================================

// Archive ist eine erkannte Container-Datei.
type Archive struct {
	path   string
	format *formats.Descriptor
}

// Open erkennt das Container-Format der Datei.
// Gibt einen Fehler mit ErrNotArchive zurueck wenn kein Format passt.
func Open(path string) (*Archive, error) {
	sig, err := formats.ReadSignature(path, formats.DefaultSignatureSize)
	if err != nil {
		return nil, &Error{Op: "open", Path: path, Err: err}
	}

	for _, d := range Formats() {
		if !d.MatchSignature(sig) {
			continue
		}
		// gzip allein reicht nicht, der Inhalt muss ein tar sein
		if d == tgzFormat && !gzipHoldsTar(path) {
			continue
		}
		return &Archive{path: path, format: d}, nil
	}
	return nil, &Error{Op: "open", Path: path, Err: ErrNotArchive}
}

// Path gibt den Pfad der Container-Datei zurueck.
func (a *Archive) Path() string {
	return a.path
}

// Format gibt den Deskriptor des Container-Formats zurueck.
func (a *Archive) Format() *formats.Descriptor {
	return a.format
}

// Extract entpackt alle Eintraege in das neue Verzeichnis target.
// target darf noch nicht existieren, sein Elternverzeichnis muss existieren.
func (a *Archive) Extract(target string) error {
	if err := os.Mkdir(target, 0o755); err != nil {
		return &Error{Op: "extract", Path: a.path, Err: err}
	}

	var err error
	switch a.format.ID {
	case ZipID:
		err = a.extractZip(target)
	case TarID, TgzID:
		err = a.extractTar(target)
	default:
		err = fmt.Errorf("unsupported container %q", a.format.ID)
	}
	if err != nil {
		return &Error{Op: "extract", Path: a.path, Err: err}
	}
	return nil
}

func (a *Archive) extractZip(target string) error {
	r, err := zip.OpenReader(a.path)
	if errors.Is(err, zip.ErrInsecurePath) {
		if r != nil {
			r.Close()
		}
		return fmt.Errorf("%w: %v", ErrUnsafeEntry, err)
	}
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: link %s", ErrUnsafeEntry, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := mkdirEntry(target, f.Name); err != nil {
				return err
			}
			continue
		}

		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
		}
		err = writeEntry(target, f.Name, src)
		src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) extractTar(target string) error {
	f, err := os.Open(a.path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if a.format.ID == TgzID {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %v", ErrUnsafeEntry, err)
		}
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := mkdirEntry(target, hdr.Name); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, hdr.Name, tr); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			return fmt.Errorf("%w: link %s", ErrUnsafeEntry, hdr.Name)
		default:
			slog.Debug("skipping archive entry", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}
}

// ============================================================================
// Hilfsfunktionen
// ============================================================================

// entryPath loest einen Eintragsnamen sicher unterhalb von target auf
func entryPath(target, name string) (string, error) {
	name = filepath.FromSlash(strings.TrimSuffix(name, "/"))
	if name == "" || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeEntry, name)
	}
	return filepath.Join(target, name), nil
}

func mkdirEntry(target, name string) error {
	d, err := entryPath(target, name)
	if err != nil {
		return err
	}
	return os.MkdirAll(d, 0o755)
}

func writeEntry(target, name string, src io.Reader) error {
	dest, err := entryPath(target, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to mkdir %s: %w", filepath.Dir(dest), err)
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open output file %s: %w", dest, err)
	}
	if _, err := io.Copy(out, io.LimitReader(src, maxEntrySize)); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract file %s: %w", dest, err)
	}
	return out.Close()
}

// gzipHoldsTar prueft ob der dekomprimierte Inhalt mit einem tar-Header beginnt
func gzipHoldsTar(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return false
	}
	defer gz.Close()

	buf := make([]byte, 262)
	if _, err := io.ReadFull(gz, buf); err != nil {
		return false
	}
	return bytes.Equal(buf[257:262], []byte("ustar"))
}

// Payload listet die entpackten regulaeren Dateien unterhalb von dir.
// Versteckte Dateien und macOS-Ressourcen (__MACOSX) werden uebersprungen.
func Payload(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") || name == "__MACOSX" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
