package searchdb

import (
	"database/sql"
	"errors"
	"fmt"
)

// Writer is a scoped write session. Nothing it writes is visible to readers
// until Commit and a subsequent Reload. At most one Writer is live per DB.
type Writer struct {
	db      *DB
	tx      *sql.Tx
	insert  *sql.Stmt
	pending int
	closed  bool
}

var errWriterClosed = errors.New("searchdb: writer already committed or rolled back")

// Writer opens the single write session.
func (d *DB) Writer() (*Writer, error) {
	if !d.writing.CompareAndSwap(false, true) {
		return nil, ErrWriterBusy
	}
	tx, err := d.sql.Begin()
	if err != nil {
		d.writing.Store(false)
		return nil, fmt.Errorf("searchdb: begin write: %w", err)
	}
	w := &Writer{db: d, tx: tx}
	d.liveMu.Lock()
	d.live = w
	d.liveMu.Unlock()
	return w, nil
}

// Pending returns the number of rows written since the writer opened.
func (w *Writer) Pending() int {
	return w.pending
}

// UpsertSession inserts or replaces the session row.
func (w *Writer) UpsertSession(row SessionRow) error {
	if w.closed {
		return errWriterClosed
	}
	_, err := w.tx.Exec(`
		INSERT OR REPLACE INTO sessions (
			id, source, cwd, timestamp, file_path, summary, message_count
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		row.ID, row.Source, row.CWD, row.Timestamp.UnixNano(),
		row.FilePath, row.Summary, row.MessageCount,
	)
	if err != nil {
		return fmt.Errorf("searchdb: upsert session %s: %w", row.ID, err)
	}
	w.pending++
	return nil
}

// InsertMessage adds one message; a trigger indexes its text.
func (w *Writer) InsertMessage(row MessageRow) error {
	if w.closed {
		return errWriterClosed
	}
	if w.insert == nil {
		stmt, err := w.tx.Prepare(`
			INSERT INTO messages (content, session_id, file_path, message_index, role)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("searchdb: prepare insert: %w", err)
		}
		w.insert = stmt
	}
	if _, err := w.insert.Exec(row.Content, row.SessionID, row.FilePath, row.Index, row.Role); err != nil {
		return fmt.Errorf("searchdb: insert message %s#%d: %w", row.SessionID, row.Index, err)
	}
	w.pending++
	return nil
}

// DeleteWhereSession removes every row belonging to a session id.
func (w *Writer) DeleteWhereSession(id string) error {
	return w.deleteWhere("session_id", "id", id)
}

// DeleteWherePath removes every row that came from a file path.
func (w *Writer) DeleteWherePath(path string) error {
	return w.deleteWhere("file_path", "file_path", path)
}

func (w *Writer) deleteWhere(msgCol, sessionsCol, value string) error {
	if w.closed {
		return errWriterClosed
	}
	if _, err := w.tx.Exec("DELETE FROM messages WHERE "+msgCol+" = ?", value); err != nil {
		return fmt.Errorf("searchdb: delete messages by %s: %w", msgCol, err)
	}
	if _, err := w.tx.Exec("DELETE FROM sessions WHERE "+sessionsCol+" = ?", value); err != nil {
		return fmt.Errorf("searchdb: delete sessions by %s: %w", sessionsCol, err)
	}
	return nil
}

// Commit makes the writes durable and releases the writer.
func (w *Writer) Commit() error {
	if w.closed {
		return errWriterClosed
	}
	err := w.tx.Commit()
	w.release()
	if err != nil {
		return fmt.Errorf("searchdb: commit: %w", err)
	}
	return nil
}

// Rollback abandons the writes and releases the writer. Safe to call after
// Commit, where it does nothing.
func (w *Writer) Rollback() error {
	if w.closed {
		return nil
	}
	err := w.tx.Rollback()
	w.release()
	return err
}

func (w *Writer) release() {
	w.closed = true
	if w.insert != nil {
		_ = w.insert.Close()
	}
	w.db.liveMu.Lock()
	if w.db.live == w {
		w.db.live = nil
		w.db.writing.Store(false)
	}
	w.db.liveMu.Unlock()
}
