package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/pimsgo/pims/api"
	"github.com/pimsgo/pims/importer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	handler http.Handler
	pending string
	server  *Server
}

func newTestEnv(t *testing.T, ledger bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PIMS_ROOT", filepath.Join(dir, "root"))
	t.Setenv("PIMS_PENDING", filepath.Join(dir, "pending"))
	t.Setenv("PIMS_DB", filepath.Join(dir, "imports.db"))
	t.Setenv("PIMS_HISTOGRAM", "")
	t.Setenv("PIMS_CONVERSION_THRESHOLD", "")
	if ledger {
		t.Setenv("PIMS_NOLEDGER", "")
	} else {
		t.Setenv("PIMS_NOLEDGER", "1")
	}

	s, err := newServer(nil, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	if s.ledger != nil {
		t.Cleanup(func() { s.ledger.Close() })
	}

	h, err := s.GenerateRoutes()
	require.NoError(t, err)
	return &testEnv{handler: h, pending: filepath.Join(dir, "pending"), server: s}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) writePending(t *testing.T, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.pending, name), data, 0o644))
}

func grayPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 8))))
	return buf.Bytes()
}

func TestRoot(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.request(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "PIMS is running", w.Body.String())

	w = env.request(t, http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"version"`)
}

func TestFormatsHandler(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.request(t, http.MethodGet, "/api/formats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.FormatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Formats, 5)
	require.Equal(t, "png", resp.Formats[0].ID)
	require.Equal(t, "tiff", resp.Formats[0].ConversionTarget)
	require.Empty(t, resp.Formats[4].ConversionTarget, "TIFF wird nie konvertiert")

	w = env.request(t, http.MethodGet, "/api/formats/bmp", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"id":"bmp"`)

	w = env.request(t, http.MethodGet, "/api/formats/jpg", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "did you mean")
}

func TestImportHandler(t *testing.T) {
	env := newTestEnv(t, true)
	env.writePending(t, "cells.png", grayPNG(t))

	w := env.request(t, http.MethodPost, "/api/import", api.ImportRequest{Path: "cells.png"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.ImportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "success", resp.State)
	require.Equal(t, "png", resp.Format)
	require.NotNil(t, resp.Spatial)
	require.True(t, resp.Spatial.Reference)
	require.NotNil(t, resp.Metadata)
	require.Equal(t, 16, resp.Metadata.Width)
	require.Equal(t, 8, resp.Metadata.Height)
	require.NoFileExists(t, filepath.Join(env.pending, "cells.png"), "Quelle muss verschoben sein")

	w = env.request(t, http.MethodGet, "/api/imports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var imports api.ImportsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &imports))
	require.Len(t, imports.Imports, 1)
	require.Equal(t, resp.ID, imports.Imports[0].ID)

	w = env.request(t, http.MethodGet, "/api/imports/"+resp.ID+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events api.EventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Equal(t, string(importer.EventStartDataExtraction), events.Events[0].Type)
	require.Equal(t, string(importer.EventEndSuccessfulImport), events.Events[len(events.Events)-1].Type)
}

func TestImportHandlerErrors(t *testing.T) {
	env := newTestEnv(t, true)
	env.writePending(t, "notes.txt", []byte("keine Bilddaten"))

	cases := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{"ohne Body", nil, http.StatusBadRequest, ""},
		{"ohne Pfad", api.ImportRequest{}, http.StatusBadRequest, ""},
		{"fehlt", api.ImportRequest{Path: "missing.png"}, http.StatusNotFound, "NotFound"},
		{"kein Format", api.ImportRequest{Path: "notes.txt"}, http.StatusUnprocessableEntity, "NoMatchingFormat"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			w := env.request(t, http.MethodPost, "/api/import", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.NotEmpty(t, body["error"])
			require.Equal(t, tt.kind, body["kind"])
		})
	}

	// Fehlgeschlagener Import ist protokolliert
	w := env.request(t, http.MethodGet, "/api/imports?limit=10", nil)
	var imports api.ImportsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &imports))
	require.Len(t, imports.Imports, 2)
	for _, imp := range imports.Imports {
		require.Equal(t, "failed", imp.State)
		require.NotEmpty(t, imp.Error)
	}
}

func TestLedgerRoutes(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.request(t, http.MethodGet, "/api/imports/unbekannt/events", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.request(t, http.MethodGet, "/api/imports?limit=viele", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	disabled := newTestEnv(t, false)
	w = disabled.request(t, http.MethodGet, "/api/imports", nil)
	require.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestStatusFromError(t *testing.T) {
	cases := map[importer.Kind]int{
		importer.KindNotFound:         http.StatusNotFound,
		importer.KindNoMatchingFormat: http.StatusUnprocessableEntity,
		importer.KindMetadataParsing:  http.StatusUnprocessableEntity,
		importer.KindConversion:       http.StatusUnprocessableEntity,
		importer.KindArchive:          http.StatusUnprocessableEntity,
		importer.KindUnimplemented:    http.StatusNotImplemented,
		importer.KindIOFailure:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, statusFromError(&importer.Error{Kind: kind, Op: "test"}), kind.String())
	}
	require.Equal(t, http.StatusInternalServerError, statusFromError(errors.New("anders")))
}

func TestAllowedHostsMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(allowedHostsMiddleware(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	cases := map[string]int{
		"localhost:5000":     http.StatusOK,
		"127.0.0.1:5000":     http.StatusOK,
		"scope.local":        http.StatusOK,
		"10.1.2.3":           http.StatusOK,
		"evil.example.com":   http.StatusForbidden,
		"rebind.attacker.io": http.StatusForbidden,
	}
	for host, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = host
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Errorf("Host %q: Status %d, erwartet %d", host, w.Code, want)
		}
	}

}
