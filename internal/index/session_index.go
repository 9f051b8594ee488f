package index

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/asheshgoplani/recall/internal/logging"
	"github.com/asheshgoplani/recall/internal/searchdb"
	"github.com/asheshgoplani/recall/internal/session"
)

var storageLog = logging.ForComponent(logging.CompStorage)

// DBFileName is the index database inside the index directory.
const DBFileName = "index.db"

// SessionIndex is the searchable store of parsed sessions. One process-wide
// instance is shared between the indexer (the only writer) and readers.
type SessionIndex struct {
	db *searchdb.DB
}

// OpenOrCreate opens the index in dir, creating and migrating it as needed.
func OpenOrCreate(dir string) (*SessionIndex, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create index dir: %w", session.ErrIO, err)
	}
	db, err := searchdb.Open(filepath.Join(dir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrSchema, err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", session.ErrSchema, err)
	}
	if db.Rebuilt() {
		storageLog.Info("index_rebuilt", slog.String("dir", dir), slog.Int("schema_version", searchdb.SchemaVersion))
	}
	if err := db.Reload(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", session.ErrSchema, err)
	}
	return &SessionIndex{db: db}, nil
}

// Fresh reports whether the index started empty in this process, either
// because the file was new or because an outdated schema was discarded.
// Any saved IndexState is stale in that case.
func (x *SessionIndex) Fresh() bool {
	return x.db.Created() || x.db.Rebuilt()
}

// Writer opens the single write session.
func (x *SessionIndex) Writer() (*searchdb.Writer, error) {
	return x.db.Writer()
}

// IndexSession replaces everything stored for s.ID with s.
func (x *SessionIndex) IndexSession(w *searchdb.Writer, s *session.Session) error {
	if err := w.DeleteWhereSession(s.ID); err != nil {
		return err
	}
	if err := w.UpsertSession(searchdb.SessionRow{
		ID:           s.ID,
		Source:       string(s.Source),
		CWD:          s.CWD,
		Timestamp:    s.Timestamp,
		FilePath:     s.FilePath,
		Summary:      s.Summary,
		MessageCount: len(s.Messages),
	}); err != nil {
		return err
	}
	for i, m := range s.Messages {
		if err := w.InsertMessage(searchdb.MessageRow{
			SessionID: s.ID,
			FilePath:  s.FilePath,
			Index:     i,
			Role:      string(m.Role),
			Content:   m.Content,
		}); err != nil {
			return err
		}
	}
	return nil
}

// DeleteSession removes whatever was indexed from path.
func (x *SessionIndex) DeleteSession(w *searchdb.Writer, path string) error {
	return w.DeleteWherePath(path)
}

// Commit makes w's writes durable. Readers see them after Reload.
func (x *SessionIndex) Commit(w *searchdb.Writer) error {
	return w.Commit()
}

// Reload moves the read view to the latest committed state.
func (x *SessionIndex) Reload() error {
	return x.db.Reload()
}

// Search returns up to limit sessions matching query, best first, each with
// the index of its best-matching message.
func (x *SessionIndex) Search(query string, limit int) ([]session.SearchResult, error) {
	match := searchdb.MatchExpr(query)
	if match == "" {
		return []session.SearchResult{}, nil
	}
	hits, err := x.db.Query(match, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.SessionID
	}
	rows, err := x.db.GetMany(ids)
	if err != nil {
		return nil, err
	}

	results := make([]session.SearchResult, 0, len(hits))
	for _, h := range hits {
		row, ok := rows[h.SessionID]
		if !ok {
			continue
		}
		results = append(results, session.SearchResult{
			Session:             toSummary(row),
			MatchedMessageIndex: h.MessageIndex,
			Score:               h.Score,
			Snippet:             h.Snippet,
		})
	}
	return results, nil
}

// Recent returns up to limit sessions, newest first.
func (x *SessionIndex) Recent(limit int) ([]session.SearchResult, error) {
	rows, err := x.db.Recent(limit)
	if err != nil {
		return nil, err
	}
	results := make([]session.SearchResult, len(rows))
	for i, row := range rows {
		results[i] = session.SearchResult{Session: toSummary(row)}
	}
	return results, nil
}

// GetByID returns the transcript path for a session id.
func (x *SessionIndex) GetByID(id string) (string, error) {
	row, err := x.db.Get(id)
	if errors.Is(err, searchdb.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	if err != nil {
		return "", err
	}
	return row.FilePath, nil
}

// Count returns how many sessions the read view holds.
func (x *SessionIndex) Count() (int, error) {
	return x.db.Count()
}

// Close releases the index. A live writer is rolled back.
func (x *SessionIndex) Close() error {
	return x.db.Close()
}

func toSummary(row searchdb.SessionRow) session.SessionSummary {
	return session.SessionSummary{
		ID:           row.ID,
		Source:       session.Source(row.Source),
		CWD:          row.CWD,
		Timestamp:    row.Timestamp,
		FilePath:     row.FilePath,
		Summary:      row.Summary,
		MessageCount: row.MessageCount,
	}
}
