package cmd

import (
	"bytes"
	"image"
	"image/png"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pimsgo/pims/api"
	"github.com/pimsgo/pims/server"
)

// setupEnv legt Wurzel und Wartebereich an und gibt den Wartebereich zurueck
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	pending := filepath.Join(dir, "pending")
	t.Setenv("PIMS_ROOT", filepath.Join(dir, "root"))
	t.Setenv("PIMS_PENDING", pending)
	t.Setenv("PIMS_DB", filepath.Join(dir, "imports.db"))
	t.Setenv("PIMS_NOLEDGER", "")
	t.Setenv("PIMS_HISTOGRAM", "")
	if err := os.MkdirAll(pending, 0o755); err != nil {
		t.Fatal(err)
	}
	return pending
}

func writeGrayPNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewCLI()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestImportLocal(t *testing.T) {
	pending := setupEnv(t)
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writeGrayPNG(t, filepath.Join(pending, name))
	}
	if err := os.WriteFile(filepath.Join(pending, "notes.txt"), []byte("text"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "import", "--local", "-p", "2", "a.png", "b.png", "c.png", "notes.txt")
	if err == nil || !strings.Contains(err.Error(), "1 of 4 imports failed") {
		t.Fatalf("Fehler fuer notes.txt erwartet, bekommen %v", err)
	}

	if n := strings.Count(out, "success"); n != 3 {
		t.Errorf("%d erfolgreiche Imports, erwartet 3:\n%s", n, out)
	}
	if !strings.Contains(out, "notes.txt") || !strings.Contains(out, "failed") {
		t.Errorf("fehlgeschlagener Import fehlt in der Ausgabe:\n%s", out)
	}
}

func TestImportNameRequiresSingleFile(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "import", "--local", "--name", "x.png", "a.png", "b.png")
	if err == nil || !strings.Contains(err.Error(), "--name") {
		t.Errorf("Fehler fuer --name erwartet, bekommen %v", err)
	}
}

func TestImportRemote(t *testing.T) {
	pending := setupEnv(t)
	gin.SetMode(gin.TestMode)

	s, err := server.NewLocal(slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	h, err := s.GenerateRoutes()
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	t.Setenv("PIMS_HOST", ts.URL)

	writeGrayPNG(t, filepath.Join(pending, "remote.png"))
	out, err := execute(t, "import", "--copy", "remote.png")
	if err != nil {
		t.Fatalf("Import ueber Server: %v\n%s", err, out)
	}
	if !strings.Contains(out, "png") || !strings.Contains(out, "success") {
		t.Errorf("unerwartete Ausgabe:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(pending, "remote.png")); err != nil {
		t.Errorf("--copy muss die Quelle behalten: %v", err)
	}

	out, err = execute(t, "history")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "success") {
		t.Errorf("history ohne Import:\n%s", out)
	}
}

func TestFormatsLocal(t *testing.T) {
	out, err := execute(t, "formats", "--local")
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"png", "jpeg", "bmp", "webp", "tiff"} {
		if !strings.Contains(out, id) {
			t.Errorf("Format %q fehlt:\n%s", id, out)
		}
	}
	if strings.Index(out, "png") > strings.Index(out, "tiff") {
		t.Errorf("Erkennungsreihenfolge nicht eingehalten:\n%s", out)
	}
}

func TestRenderFormats(t *testing.T) {
	var buf bytes.Buffer
	renderFormats(&buf, []api.FormatInfo{
		{ID: "png", Name: "PNG", Spatial: true, Readable: true, ConversionTarget: "tiff"},
		{ID: "tiff", Name: "TIFF", Spatial: true, Readable: true},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("%d Zeilen, erwartet 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[2], "-") {
		t.Errorf("unerwartete Tabelle:\n%s", buf.String())
	}
}

func TestHumanTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "Never"},
		{now.Add(-10 * time.Second), "Less than a minute ago"},
		{now.Add(-1 * time.Minute), "1 minute ago"},
		{now.Add(-5 * time.Hour), "5 hours ago"},
		{now.Add(-72 * time.Hour), "3 days ago"},
	}
	for _, tt := range cases {
		if got := humanTime(tt.t, now); got != tt.want {
			t.Errorf("humanTime(%v) = %q, erwartet %q", tt.t, got, tt.want)
		}
	}
}

func TestResolveArg(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeGrayPNG(t, filepath.Join(dir, "here.png"))

	if got := resolveArg("here.png"); got != filepath.Join(dir, "here.png") {
		t.Errorf("resolveArg(here.png) = %q, erwartet absoluten Pfad", got)
	}
	if got := resolveArg("elsewhere.png"); got != "elsewhere.png" {
		t.Errorf("resolveArg(elsewhere.png) = %q, erwartet unveraendert", got)
	}
}
