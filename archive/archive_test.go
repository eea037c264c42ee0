package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type entry struct {
	name string
	body string
}

func writeZip(t *testing.T, entries ...entry) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(e.body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return writeFile(t, "upload.zip", buf.Bytes())
}

func tarBytes(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		tw.Write([]byte(e.body))
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenDetectsFormat(t *testing.T) {
	tarData := tarBytes(t, entry{"a.txt", "a"})

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write(tarData)
	zw.Close()

	var plainGz bytes.Buffer
	zw = gzip.NewWriter(&plainGz)
	zw.Write([]byte("just text"))
	zw.Close()

	tests := []struct {
		name string
		path string
		want string
	}{
		{"zip", writeZip(t, entry{"a.txt", "a"}), ZipID},
		{"tar", writeFile(t, "upload.tar", tarData), TarID},
		{"tar.gz", writeFile(t, "upload.tgz", gz.Bytes()), TgzID},
		{"gzip ohne tar", writeFile(t, "upload.gz", plainGz.Bytes()), ""},
		{"kein Archiv", writeFile(t, "upload.bin", []byte("hello world")), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Open(tt.path)
			if tt.want == "" {
				if !errors.Is(err, ErrNotArchive) {
					t.Errorf("Open() error = %v, erwartet ErrNotArchive", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if got := a.Format().ID; got != tt.want {
				t.Errorf("Format() = %q, erwartet %q", got, tt.want)
			}
		})
	}
}

func TestExtractAndPayload(t *testing.T) {
	path := writeZip(t,
		entry{"slide/image.png", "png"},
		entry{"__MACOSX/slide/._image.png", "resource fork"},
		entry{".DS_Store", "junk"},
	)
	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(t.TempDir(), "original.zip")
	if err := a.Extract(target); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	files, err := Payload(target)
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	want := []string{filepath.Join(target, "slide", "image.png")}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("Payload() mismatch (-want +got):\n%s", diff)
	}

	// Ziel existiert bereits
	err = a.Extract(target)
	var aerr *Error
	if !errors.As(err, &aerr) || !errors.Is(err, os.ErrExist) {
		t.Errorf("Extract() error = %v, erwartet *Error mit ErrExist", err)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"zip", writeZip(t, entry{"../evil.txt", "x"})},
		{"tar", writeFile(t, "evil.tar", tarBytes(t, entry{"../../evil.txt", "x"}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Open(tt.path)
			if err != nil {
				t.Fatal(err)
			}
			root := t.TempDir()
			err = a.Extract(filepath.Join(root, "out"))
			if !errors.Is(err, ErrUnsafeEntry) {
				t.Errorf("Extract() error = %v, erwartet ErrUnsafeEntry", err)
			}
			if _, err := os.Stat(filepath.Join(root, "evil.txt")); err == nil {
				t.Error("Eintrag ausserhalb des Ziels wurde geschrieben")
			}
		})
	}
}

func TestExtractTarGz(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write(tarBytes(t, entry{"dir/one.bmp", "BM"}, entry{"two.bmp", "BM"}))
	zw.Close()

	a, err := Open(writeFile(t, "upload.tar.gz", gz.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(t.TempDir(), "x")
	if err := a.Extract(target); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	files, err := Payload(target)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("Payload() = %v, erwartet 2 Dateien", files)
	}
}
