package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/asheshgoplani/recall/internal/config"
	"github.com/asheshgoplani/recall/internal/parser"
	"github.com/asheshgoplani/recall/internal/session"
)

const stateVersion = 1

// Signature identifies a file's content well enough to skip reparsing it.
type Signature struct {
	ModTimeNS int64 `json:"mtime_ns"`
	Size      int64 `json:"size"`
}

// SignatureOf returns the signature of a discovered file.
func SignatureOf(f parser.SessionFile) Signature {
	return Signature{ModTimeNS: f.ModTime.UnixNano(), Size: f.Size}
}

type stateFile struct {
	Version int                  `json:"version"`
	Files   map[string]Signature `json:"files"`
}

// IndexState remembers which files have been indexed and at what signature.
// Changes are in memory until Save. Not safe for concurrent use.
type IndexState struct {
	files map[string]Signature
}

// NewState returns an empty state.
func NewState() *IndexState {
	return &IndexState{files: make(map[string]Signature)}
}

// LoadState reads the state file. A missing or unreadable-as-JSON file
// yields an empty state, which only costs a full reindex.
func LoadState(path string) (*IndexState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read state: %w", session.ErrIO, err)
	}

	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		storageLog.Warn("state_corrupt", slog.String("path", path), slog.String("error", err.Error()))
		return NewState(), nil
	}
	if sf.Version != stateVersion {
		storageLog.Warn("state_version_mismatch", slog.String("path", path), slog.Int("version", sf.Version))
		return NewState(), nil
	}
	st := NewState()
	for p, sig := range sf.Files {
		st.files[p] = sig
	}
	return st, nil
}

// LoadStateFor loads the state that goes with x. When the index started
// empty the saved state describes documents that no longer exist, so it is
// discarded and every file is reindexed.
func LoadStateFor(x *SessionIndex, path string) (*IndexState, error) {
	if x.Fresh() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: remove stale state: %w", session.ErrIO, err)
		}
		return NewState(), nil
	}
	return LoadState(path)
}

// NeedsReindex reports whether f is new or changed since it was marked.
func (s *IndexState) NeedsReindex(f parser.SessionFile) bool {
	sig, ok := s.files[f.Path]
	return !ok || sig != SignatureOf(f)
}

// MarkIndexed records f's current signature.
func (s *IndexState) MarkIndexed(f parser.SessionFile) {
	s.files[f.Path] = SignatureOf(f)
}

// Len returns the number of tracked files.
func (s *IndexState) Len() int {
	return len(s.files)
}

// Prune forgets files that are not in present and returns their paths in
// no particular order. Paths under any of keepUnder are left alone, for
// roots that could not be read during this pass.
func (s *IndexState) Prune(present []parser.SessionFile, keepUnder ...string) []string {
	keep := make(map[string]struct{}, len(present))
	for _, f := range present {
		keep[f.Path] = struct{}{}
	}
	var gone []string
	for p := range s.files {
		if _, ok := keep[p]; ok || underAny(p, keepUnder) {
			continue
		}
		gone = append(gone, p)
		delete(s.files, p)
	}
	return gone
}

func underAny(path string, roots []string) bool {
	for _, root := range roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Save writes the state atomically.
func (s *IndexState) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("%w: create state dir: %w", session.ErrIO, err)
	}
	data, err := json.Marshal(stateFile{Version: stateVersion, Files: s.files})
	if err != nil {
		return fmt.Errorf("%w: encode state: %w", session.ErrIO, err)
	}
	if err := config.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("%w: %w", session.ErrIO, err)
	}
	return nil
}
