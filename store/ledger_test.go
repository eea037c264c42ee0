package store

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pimsgo/pims/importer"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "imports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestSchemaVersion(t *testing.T) {
	l := openTestLedger(t)
	v, err := l.db.schemaVersion()
	require.NoError(t, err)
	require.Equal(t, currentSchemaVersion, v)
}

func TestRecordLifecycle(t *testing.T) {
	l := openTestLedger(t)
	now := time.Now()

	events := []importer.Event{
		{Type: importer.EventStartDataExtraction, ImportID: "a", Path: "/pending/x.png", Time: now},
		{Type: importer.EventMovedPendingFile, ImportID: "a", Path: "/pending/x.png", Target: "/root/upload-a/x.png", Time: now},
		{Type: importer.EventEndFormatDetection, ImportID: "a", Path: "/root/upload-a/x.png", Format: "png", Time: now},
		{Type: importer.EventEndFormatDetection, ImportID: "a", Path: "/root/upload-a/processed/spatial.tiff", Format: "tiff", Time: now},
		{Type: importer.EventEndSuccessfulImport, ImportID: "a", Time: now.Add(time.Second)},
	}
	for _, e := range events {
		require.NoError(t, l.Record(e))
	}

	imp, err := l.Import("a")
	require.NoError(t, err)
	require.Equal(t, "png", imp.Format, "erste Erkennung bestimmt das Format")
	require.Equal(t, "/root/upload-a/x.png", imp.Upload)
	require.Equal(t, importer.StateSuccess.String(), imp.State)
	require.NotNil(t, imp.FinishedAt)

	recs, err := l.Events("a")
	require.NoError(t, err)
	require.Len(t, recs, len(events))
	require.Equal(t, string(importer.EventStartDataExtraction), recs[0].Type)
}

func TestRecordFailure(t *testing.T) {
	l := openTestLedger(t)
	require.NoError(t, l.Record(importer.Event{Type: importer.EventStartDataExtraction, ImportID: "b", Time: time.Now()}))
	require.NoError(t, l.Record(importer.Event{Type: importer.EventFileError, ImportID: "b", Err: errors.New("disk full"), Time: time.Now()}))

	imp, err := l.Import("b")
	require.NoError(t, err)
	require.Equal(t, importer.StateFailed.String(), imp.State)
	require.Equal(t, "disk full", imp.Error)
}

func TestUnknownImport(t *testing.T) {
	l := openTestLedger(t)
	_, err := l.Events("missing")
	require.ErrorIs(t, err, ErrNotFound)

	// Ereignisse ohne Kennung werden ignoriert
	require.NoError(t, l.Record(importer.Event{Type: importer.EventFileError}))
}

func TestLedgerWithImporter(t *testing.T) {
	l := openTestLedger(t)
	root, pending := t.TempDir(), t.TempDir()

	im, err := importer.New(importer.Config{Root: root, Pending: pending}, importer.WithListeners(l.Listener()))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	path := filepath.Join(pending, "cells.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	res, err := im.Run(path, importer.RunOptions{})
	require.NoError(t, err)

	imports, err := l.Imports(10)
	require.NoError(t, err)
	require.Len(t, imports, 1)
	require.Equal(t, res.ID, imports[0].ID)
	require.Equal(t, "png", imports[0].Format)
	require.Equal(t, "success", imports[0].State)

	recs, err := l.Events(res.ID)
	require.NoError(t, err)
	require.Len(t, recs, 12)
	require.Equal(t, string(importer.EventEndSuccessfulImport), recs[len(recs)-1].Type)
}
