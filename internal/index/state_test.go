package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/recall/internal/parser"
	"github.com/asheshgoplani/recall/internal/session"
)

func file(path string, mtime time.Time, size int64) parser.SessionFile {
	return parser.SessionFile{Path: path, ModTime: mtime, Size: size}
}

func TestStateNeedsReindex(t *testing.T) {
	st := NewState()
	ts := time.Date(2025, 1, 1, 0, 0, 0, 123, time.UTC)
	f := file("/a.jsonl", ts, 10)

	assert.True(t, st.NeedsReindex(f))
	st.MarkIndexed(f)
	assert.False(t, st.NeedsReindex(f))
	assert.True(t, st.NeedsReindex(file("/a.jsonl", ts, 11)), "size change")
	assert.True(t, st.NeedsReindex(file("/a.jsonl", ts.Add(time.Nanosecond), 10)), "mtime change")
	assert.Equal(t, 1, st.Len())
}

func TestStateSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	ts := time.Unix(1700000000, 42)

	st := NewState()
	st.MarkIndexed(file("/x/a.jsonl", ts, 5))
	st.MarkIndexed(file("/x/b.jsonl", ts, 6))
	require.NoError(t, st.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.False(t, loaded.NeedsReindex(file("/x/a.jsonl", ts, 5)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":1`)
	assert.Contains(t, string(data), `"mtime_ns":1700000000000000042`)
}

func TestLoadStateMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	st, err := LoadState(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Zero(t, st.Len())

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o600))
	st, err = LoadState(corrupt)
	require.NoError(t, err)
	assert.Zero(t, st.Len())

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version":9,"files":{"/a":{"mtime_ns":1,"size":1}}}`), 0o600))
	st, err = LoadState(future)
	require.NoError(t, err)
	assert.Zero(t, st.Len())
}

func TestLoadStateUnreadableIsIOError(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadState(dir) // a directory cannot be read as a file
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrIO)
}

func TestStatePrune(t *testing.T) {
	st := NewState()
	ts := time.Now()
	st.MarkIndexed(file("/a", ts, 1))
	st.MarkIndexed(file("/b", ts, 1))
	st.MarkIndexed(file("/c", ts, 1))

	gone := st.Prune([]parser.SessionFile{file("/a", ts, 1), file("/c", ts, 2)})
	assert.Equal(t, []string{"/b"}, gone)
	assert.Equal(t, 2, st.Len())
	assert.Empty(t, st.Prune([]parser.SessionFile{file("/a", ts, 1), file("/c", ts, 1)}))
}

func TestLoadStateForFreshIndexDiscardsState(t *testing.T) {
	root := t.TempDir()
	statePath := filepath.Join(root, "state.json")
	st := NewState()
	st.MarkIndexed(file("/a", time.Now(), 1))
	require.NoError(t, st.Save(statePath))

	x, err := OpenOrCreate(filepath.Join(root, "index"))
	require.NoError(t, err)
	loaded, err := LoadStateFor(x, statePath)
	require.NoError(t, err)
	assert.Zero(t, loaded.Len())
	_, err = os.Stat(statePath)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, x.Close())

	require.NoError(t, st.Save(statePath))
	x, err = OpenOrCreate(filepath.Join(root, "index"))
	require.NoError(t, err)
	defer x.Close()
	loaded, err = LoadStateFor(x, statePath)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestStatePruneKeepsUnreachableRoots(t *testing.T) {
	st := NewState()
	ts := time.Now()
	st.MarkIndexed(file("/mnt/claude/p/a.jsonl", ts, 1))
	st.MarkIndexed(file("/mnt/claudette/b.jsonl", ts, 1))
	st.MarkIndexed(file("/home/codex/c.jsonl", ts, 1))

	gone := st.Prune(nil, "/mnt/claude")
	assert.ElementsMatch(t, []string{"/mnt/claudette/b.jsonl", "/home/codex/c.jsonl"}, gone)
	assert.Equal(t, 1, st.Len())
	assert.False(t, st.NeedsReindex(file("/mnt/claude/p/a.jsonl", ts, 1)))
}
