// database.go - Kern-Datenbank-Funktionen des Import-Protokolls
// Enthaelt: database struct, newDatabase, Close, init, Schema

package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite-Treiber registrieren
)

// currentSchemaVersion wird bei Schema-Aenderungen erhoeht.
const currentSchemaVersion = 1

// database umhuellt die SQLite-Verbindung.
// SQLite serialisiert Schreiber selbst, im WAL-Modus blockieren Leser keine
// Schreiber. Parallele Imports brauchen daher keine eigenen Locks.
type database struct {
	conn *sql.DB
}

// newDatabase oeffnet oder erstellt die Datenbank unter dbPath
func newDatabase(dbPath string) (*database, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &database{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return db, nil
}

// Close schliesst die Datenbankverbindung
func (db *database) Close() error {
	_, _ = db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return db.conn.Close()
}

// init legt das Schema an
func (db *database) init() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL DEFAULT %d
	);

	INSERT OR IGNORE INTO meta (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS imports (
		id TEXT PRIMARY KEY,
		pending TEXT NOT NULL DEFAULT '',
		upload TEXT NOT NULL DEFAULT '',
		format TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'start',
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_imports_started_at ON imports(started_at);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		import_id TEXT NOT NULL,
		type TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		target TEXT NOT NULL DEFAULT '',
		format TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (import_id) REFERENCES imports(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_events_import_id ON events(import_id);
	`, currentSchemaVersion)

	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}
	return nil
}

// schemaVersion gibt die gespeicherte Schema-Version zurueck
func (db *database) schemaVersion() (int, error) {
	var version int
	if err := db.conn.QueryRow("SELECT schema_version FROM meta WHERE id = 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return version, nil
}
