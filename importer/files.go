// files.go - Dateisystem-Operationen des Importers
//
// Dieses Modul enthaelt:
// - transferFile: Verschiebt oder kopiert die Datei aus dem Wartebereich
// - createLink: Erstellt einen relativen Symlink oder kopiert als Fallback
// - copyFile: Kopiert eine Datei, das Ziel darf nicht existieren
package importer

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// transferFile bringt src nach dst. Ohne preferCopy wird verschoben, ueber
// Dateisystemgrenzen hinweg mit Kopie und anschliessendem Loeschen.
func transferFile(src, dst string, preferCopy bool) error {
	if _, err := os.Lstat(dst); err == nil {
		return &fs.PathError{Op: "transfer", Path: dst, Err: fs.ErrExist}
	}
	if preferCopy {
		return copyFile(src, dst)
	}

	if err := os.Rename(src, dst); err != nil {
		// Wartebereich liegt auf einem anderen Dateisystem
		if !errors.Is(err, syscall.EXDEV) {
			return err
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
		return os.Remove(src)
	}
	return nil
}

// createLink erstellt einen Symlink path -> target mit relativem Ziel.
// Ohne Symlink-Unterstuetzung wird kopiert. Gibt zurueck ob ein Link entstand.
func createLink(path, target string) (bool, error) {
	rel, err := filepath.Rel(filepath.Dir(path), target)
	if err != nil {
		rel = target
	}

	if err := os.Symlink(rel, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, err
		}
		if err := copyFile(target, path); err != nil {
			return false, err
		}
		return false, nil
	}

	// Link muss aufloesbar sein
	if _, err := os.Stat(path); err != nil {
		return true, err
	}
	return true, nil
}

// copyFile kopiert eine Datei von src nach dst
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}

// isRegular meldet ob path existiert und eine Datei (kein Verzeichnis) ist
func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
