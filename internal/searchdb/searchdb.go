package searchdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when the tables change; older indexes are rebuilt from scratch.
const SchemaVersion = 3

var (
	// ErrWriterBusy is returned by Writer while another writer is live.
	ErrWriterBusy = errors.New("searchdb: writer already open")

	// ErrSchemaTooNew means the file was written by a newer build.
	ErrSchemaTooNew = errors.New("searchdb: index schema is newer than this build")

	// ErrNoRows is returned by Get for an unknown id.
	ErrNoRows = sql.ErrNoRows
)

// DB is a SQLite database of sessions and their messages, with an FTS5
// index over message text.
//
// Reads go through a pinned read transaction, so they see the snapshot taken
// at the last Reload even while a Writer commits underneath. Multiple OS
// processes can share the file via WAL mode + busy timeout.
type DB struct {
	sql *sql.DB

	readMu sync.Mutex
	read   *sql.Tx

	writing atomic.Bool
	liveMu  sync.Mutex
	live    *Writer

	rebuilt bool
	created bool
}

// SessionRow is one indexed session.
type SessionRow struct {
	ID           string
	Source       string
	CWD          string
	Timestamp    time.Time
	FilePath     string
	Summary      string
	MessageCount int
}

// MessageRow is one searchable message.
type MessageRow struct {
	SessionID string
	FilePath  string
	Index     int
	Role      string
	Content   string
}

// Hit is the best-ranked message of one session for a query.
type Hit struct {
	SessionID    string
	MessageIndex int
	Score        float64
	Snippet      string
}

// Open creates or opens a SQLite database at dbPath with WAL mode and busy timeout.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("searchdb: mkdir: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection, not just the first.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("searchdb: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("searchdb: open: %w", err)
	}
	return &DB{sql: db}, nil
}

// Close ends the read snapshot, rolls back a live writer, checkpoints WAL and
// closes the database.
func (d *DB) Close() error {
	d.liveMu.Lock()
	if d.live != nil {
		_ = d.live.tx.Rollback()
		d.live = nil
		d.writing.Store(false)
	}
	d.liveMu.Unlock()

	d.readMu.Lock()
	if d.read != nil {
		_ = d.read.Rollback()
		d.read = nil
	}
	d.readMu.Unlock()

	_, _ = d.sql.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return d.sql.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		source        TEXT NOT NULL,
		cwd           TEXT NOT NULL DEFAULT '',
		timestamp     INTEGER NOT NULL,
		file_path     TEXT NOT NULL,
		summary       TEXT NOT NULL DEFAULT '',
		message_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_timestamp ON sessions(timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_file_path ON sessions(file_path)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id            INTEGER PRIMARY KEY,
		session_id    TEXT NOT NULL,
		file_path     TEXT NOT NULL,
		message_index INTEGER NOT NULL,
		role          TEXT NOT NULL,
		content       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_file_path ON messages(file_path)`,
	// External-content FTS: the text lives once in messages, and deletes
	// find their rows through the indexes above.
	`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		content,
		content='messages',
		content_rowid='id',
		tokenize='porter unicode61'
	)`,
	`CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
		INSERT INTO messages_fts (rowid, content) VALUES (new.id, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
		INSERT INTO messages_fts (messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
	END`,
}

var dropTables = []string{
	`DROP TABLE IF EXISTS messages_fts`,
	`DROP TABLE IF EXISTS messages`,
	`DROP TABLE IF EXISTS sessions`,
}

// Migrate creates tables if they don't exist. An index written by an older
// schema is dropped and recreated empty; Rebuilt reports when that happened.
func (d *DB) Migrate() error {
	tx, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("searchdb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(schema[0]); err != nil {
		return fmt.Errorf("searchdb: create metadata: %w", err)
	}

	stored, err := storedVersion(tx)
	if err != nil {
		return err
	}
	switch {
	case stored > SchemaVersion:
		return fmt.Errorf("%w (found %d, supported %d)", ErrSchemaTooNew, stored, SchemaVersion)
	case stored < SchemaVersion && stored != 0:
		d.rebuilt = true
	case stored == 0:
		// No version row. Tables left by a build that predates versioning
		// are rebuilt too.
		var n int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'sessions'`).Scan(&n); err != nil {
			return fmt.Errorf("searchdb: inspect schema: %w", err)
		}
		d.rebuilt = n > 0
		d.created = n == 0
	}
	if d.rebuilt {
		for _, stmt := range dropTables {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("searchdb: drop: %w", err)
			}
		}
	}

	for _, stmt := range schema[1:] {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("searchdb: exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, strconv.Itoa(SchemaVersion)); err != nil {
		return fmt.Errorf("searchdb: set schema version: %w", err)
	}
	return tx.Commit()
}

func storedVersion(tx *sql.Tx) (int, error) {
	var raw string
	err := tx.QueryRow(`SELECT value FROM metadata WHERE key = 'schema_version'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("searchdb: read schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("searchdb: bad schema version %q: %w", raw, err)
	}
	return v, nil
}

// Rebuilt reports whether Migrate discarded an outdated index.
func (d *DB) Rebuilt() bool {
	return d.rebuilt
}

// Created reports whether Migrate started from an empty file.
func (d *DB) Created() bool {
	return d.created
}

// --- Metadata ---

// SetMeta sets a key-value pair in the metadata table.
func (d *DB) SetMeta(key, value string) error {
	_, err := d.sql.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (d *DB) GetMeta(key string) (string, error) {
	var value string
	err := d.sql.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
