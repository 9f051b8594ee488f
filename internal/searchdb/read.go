package searchdb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Reload ends the current read snapshot and pins a new one, making commits
// since the previous Reload visible.
func (d *DB) Reload() error {
	d.readMu.Lock()
	defer d.readMu.Unlock()
	return d.reloadLocked()
}

func (d *DB) reloadLocked() error {
	if d.read != nil {
		_ = d.read.Rollback()
		d.read = nil
	}
	tx, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("searchdb: begin read: %w", err)
	}
	// A deferred transaction takes its snapshot on first read.
	var n int
	if err := tx.QueryRow("SELECT COUNT(*) FROM metadata").Scan(&n); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("searchdb: pin snapshot: %w", err)
	}
	d.read = tx
	return nil
}

// snapshot runs fn against the pinned read transaction, pinning one first if
// none is open.
func (d *DB) snapshot(fn func(tx *sql.Tx) error) error {
	d.readMu.Lock()
	defer d.readMu.Unlock()
	if d.read == nil {
		if err := d.reloadLocked(); err != nil {
			return err
		}
	}
	return fn(d.read)
}

const snippetTokens = 12

// Query runs a MATCH expression and returns the best hit of each session,
// most relevant first, stopping after limit sessions.
func (d *DB) Query(match string, limit int) ([]Hit, error) {
	if match == "" || limit <= 0 {
		return []Hit{}, nil
	}
	hits := make([]Hit, 0, limit)
	err := d.snapshot(func(tx *sql.Tx) error {
		rows, err := tx.Query(fmt.Sprintf(`SELECT m.session_id, m.message_index,
			1.0 / (1.0 + abs(messages_fts.rank)) AS score,
			snippet(messages_fts, 0, '', '', '...', %d)
			FROM messages_fts
			JOIN messages m ON m.id = messages_fts.rowid
			WHERE messages_fts MATCH ?
			ORDER BY messages_fts.rank`, snippetTokens), match)
		if err != nil {
			return fmt.Errorf("searchdb: fts query: %w", err)
		}
		defer rows.Close()

		seen := make(map[string]bool)
		for rows.Next() {
			var h Hit
			if err := rows.Scan(&h.SessionID, &h.MessageIndex, &h.Score, &h.Snippet); err != nil {
				return fmt.Errorf("searchdb: scan hit: %w", err)
			}
			if seen[h.SessionID] {
				continue
			}
			seen[h.SessionID] = true
			hits = append(hits, h)
			if len(hits) == limit {
				break
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

const sessionColumns = `id, source, cwd, timestamp, file_path, summary, message_count`

func scanSession(sc interface{ Scan(...any) error }) (SessionRow, error) {
	var r SessionRow
	var ts int64
	if err := sc.Scan(&r.ID, &r.Source, &r.CWD, &ts, &r.FilePath, &r.Summary, &r.MessageCount); err != nil {
		return SessionRow{}, err
	}
	r.Timestamp = time.Unix(0, ts).UTC()
	return r, nil
}

// Recent returns up to limit sessions, newest first.
func (d *DB) Recent(limit int) ([]SessionRow, error) {
	result := []SessionRow{}
	if limit <= 0 {
		return result, nil
	}
	err := d.snapshot(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT `+sessionColumns+` FROM sessions
			ORDER BY timestamp DESC, id ASC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("searchdb: recent: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanSession(rows)
			if err != nil {
				return fmt.Errorf("searchdb: scan session: %w", err)
			}
			result = append(result, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns one session row, or ErrNoRows.
func (d *DB) Get(id string) (SessionRow, error) {
	var r SessionRow
	err := d.snapshot(func(tx *sql.Tx) error {
		var err error
		r, err = scanSession(tx.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
		return err
	})
	return r, err
}

// GetMany returns the rows for ids that exist, keyed by id.
func (d *DB) GetMany(ids []string) (map[string]SessionRow, error) {
	out := make(map[string]SessionRow, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	err := d.snapshot(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT `+sessionColumns+` FROM sessions WHERE id IN (`+
			strings.Join(placeholders, ",")+`)`, args...)
		if err != nil {
			return fmt.Errorf("searchdb: get sessions: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanSession(rows)
			if err != nil {
				return fmt.Errorf("searchdb: scan session: %w", err)
			}
			out[r.ID] = r
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of sessions in the current snapshot.
func (d *DB) Count() (int, error) {
	var n int
	err := d.snapshot(func(tx *sql.Tx) error {
		return tx.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n)
	})
	return n, err
}

// MatchExpr turns free text into an FTS5 MATCH expression. Every whitespace
// separated token becomes a quoted phrase, ANDed together; the last one also
// matches as a prefix so partially typed words hit. Tokens without a letter
// or digit are dropped since the tokenizer would discard them anyway. An
// empty result means nothing is searchable.
func MatchExpr(query string) string {
	var terms []string
	for _, tok := range strings.Fields(query) {
		if !strings.ContainsFunc(tok, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"`)
	}
	if len(terms) == 0 {
		return ""
	}
	terms[len(terms)-1] += "*"
	return strings.Join(terms, " AND ")
}
