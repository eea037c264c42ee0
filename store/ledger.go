// Package store - SQLite-Protokoll aller Imports.
//
// MODUL: ledger
// ZWECK: Speichert Import-Ereignisse und den Endzustand jedes Imports
// INPUT: importer.Event ueber den Listener-Vertrag
// OUTPUT: Import- und Event-Datensaetze fuer Abfragen (CLI history, HTTP)
// NEBENEFFEKTE: Schreibt in die SQLite-Datenbank
// ABHAENGIGKEITEN: github.com/mattn/go-sqlite3 (extern), importer
// HINWEISE: Fehler beim Schreiben gehen an den Importer zurueck, der sie nur loggt
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pimsgo/pims/importer"
)

// ErrNotFound wird fuer unbekannte Import-Kennungen zurueckgegeben.
var ErrNotFound = errors.New("store: import not found")

// Import ist der protokollierte Zustand eines Imports.
type Import struct {
	ID         string
	Pending    string
	Upload     string
	Format     string
	State      string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// EventRecord ist ein protokolliertes Ereignis.
type EventRecord struct {
	ID        int64
	ImportID  string
	Type      string
	Path      string
	Target    string
	Format    string
	Error     string
	CreatedAt time.Time
}

// Ledger ist ein Import-Listener mit SQLite-Speicher.
type Ledger struct {
	db *database
}

// Open oeffnet oder erstellt das Protokoll unter path.
func Open(path string) (*Ledger, error) {
	db, err := newDatabase(path)
	if err != nil {
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Close schliesst die Datenbank.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Listener gibt den Listener fuer importer.WithListeners zurueck.
func (l *Ledger) Listener() importer.Listener {
	return importer.ListenerFunc(l.Record)
}

// Record speichert ein Ereignis und aktualisiert den Import-Datensatz.
func (l *Ledger) Record(e importer.Event) error {
	if e.ImportID == "" {
		return nil
	}

	tx, err := l.db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if e.Type == importer.EventStartDataExtraction {
		if _, err := tx.Exec(`INSERT INTO imports (id, pending, state, started_at) VALUES (?, ?, ?, ?)`,
			e.ImportID, e.Path, importer.StateStart.String(), e.Time); err != nil {
			return fmt.Errorf("insert import: %w", err)
		}
	}

	errText := ""
	if e.Err != nil {
		errText = e.Err.Error()
	}
	if _, err := tx.Exec(`INSERT INTO events (import_id, type, path, target, format, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ImportID, string(e.Type), e.Path, e.Target, e.Format, errText, e.Time); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := updateImport(tx, e, errText); err != nil {
		return err
	}

	return tx.Commit()
}

// updateImport fuehrt den Import-Datensatz anhand des Ereignisses nach
func updateImport(tx *sql.Tx, e importer.Event, errText string) error {
	var (
		query string
		args  []any
	)

	switch e.Type {
	case importer.EventMovedPendingFile:
		query, args = `UPDATE imports SET upload = ?, state = ? WHERE id = ?`, []any{e.Target, importer.StateMoved.String(), e.ImportID}
	case importer.EventEndFormatDetection:
		// Nur die erste Erkennung bestimmt das Format, spaetere betreffen das Konvertierungs-Ergebnis
		query, args = `UPDATE imports SET format = ?, state = ? WHERE id = ? AND format = ''`, []any{e.Format, importer.StateFormatDetected.String(), e.ImportID}
	case importer.EventEndUnpacking:
		if e.Collection {
			return nil
		}
		query, args = `UPDATE imports SET format = ?, state = ? WHERE id = ?`, []any{e.Format, importer.StateArchiveExtracted.String(), e.ImportID}
	case importer.EventEndSpatialDeploy:
		query, args = `UPDATE imports SET state = ? WHERE id = ?`, []any{importer.StateSpatialDeployed.String(), e.ImportID}
	case importer.EventEndHistogramDeploy:
		query, args = `UPDATE imports SET state = ? WHERE id = ?`, []any{importer.StateHistogramDeployed.String(), e.ImportID}
	case importer.EventEndSuccessfulImport:
		query, args = `UPDATE imports SET state = ?, finished_at = ? WHERE id = ?`, []any{importer.StateSuccess.String(), e.Time, e.ImportID}
	case importer.EventFileError:
		query, args = `UPDATE imports SET state = ?, error = ?, finished_at = ? WHERE id = ?`, []any{importer.StateFailed.String(), errText, e.Time, e.ImportID}
	default:
		return nil
	}

	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("update import: %w", err)
	}
	return nil
}

// ============================================================================
// Abfragen
// ============================================================================

// Imports gibt die letzten limit Imports zurueck, neueste zuerst.
// limit <= 0 gibt alle zurueck.
func (l *Ledger) Imports(limit int) ([]Import, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.conn.Query(`
		SELECT id, pending, upload, format, state, error, started_at, finished_at
		FROM imports
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	defer rows.Close()

	var imports []Import
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		imports = append(imports, imp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate imports: %w", err)
	}
	return imports, nil
}

// Import gibt einen einzelnen Import zurueck.
func (l *Ledger) Import(id string) (Import, error) {
	row := l.db.conn.QueryRow(`
		SELECT id, pending, upload, format, state, error, started_at, finished_at
		FROM imports WHERE id = ?`, id)
	imp, err := scanImport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Import{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return imp, err
}

// Events gibt alle Ereignisse eines Imports in Reihenfolge zurueck.
func (l *Ledger) Events(importID string) ([]EventRecord, error) {
	if _, err := l.Import(importID); err != nil {
		return nil, err
	}

	rows, err := l.db.conn.Query(`
		SELECT id, import_id, type, path, target, format, error, created_at
		FROM events WHERE import_id = ? ORDER BY id`, importID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.ImportID, &e.Type, &e.Path, &e.Target, &e.Format, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImport(s scanner) (Import, error) {
	var imp Import
	var finished sql.NullTime
	if err := s.Scan(&imp.ID, &imp.Pending, &imp.Upload, &imp.Format, &imp.State, &imp.Error, &imp.StartedAt, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Import{}, err
		}
		return Import{}, fmt.Errorf("scan import: %w", err)
	}
	if finished.Valid {
		imp.FinishedAt = &finished.Time
	}
	return imp, nil
}
