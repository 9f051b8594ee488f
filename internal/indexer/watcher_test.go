package indexer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/recall/internal/parser"
)

func waitSignal(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal")
	}
}

func TestWatcherSignalsOnTranscriptWrite(t *testing.T) {
	root := t.TempDir()
	proj := filepath.Join(root, "proj")
	require.NoError(t, os.MkdirAll(proj, 0o755))

	w, err := NewWatcher(parser.Roots{Claude: root}, 100*time.Millisecond)
	require.NoError(t, err)
	w.Start()
	t.Cleanup(func() { w.Close() })

	for i := range 3 {
		require.NoError(t, os.WriteFile(filepath.Join(proj, "a.jsonl"), []byte{byte('0' + i), '\n'}, 0o644))
	}
	waitSignal(t, w)

	select {
	case <-w.Changes():
		t.Fatal("burst should collapse into one signal")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(parser.Roots{Codex: root}, 20*time.Millisecond)
	require.NoError(t, err)
	w.Start()
	t.Cleanup(func() { w.Close() })

	day := filepath.Join(root, "2025")
	require.NoError(t, os.Mkdir(day, 0o755))
	// Give the loop time to add the new directory before writing into it.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(day, "rollout.jsonl"), []byte("{}\n"), 0o644))
	waitSignal(t, w)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(parser.Roots{Claude: root}, 20*time.Millisecond)
	require.NoError(t, err)
	w.Start()
	t.Cleanup(func() { w.Close() })

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	select {
	case <-w.Changes():
		t.Fatal("non-transcript write should not signal")
	case <-time.After(200 * time.Millisecond):
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestWatcherPicksUpRootCreatedLater(t *testing.T) {
	home := t.TempDir()
	root := filepath.Join(home, ".codex", "sessions")
	w, err := NewWatcher(parser.Roots{Codex: root}, 20*time.Millisecond)
	require.NoError(t, err)
	w.Start()
	t.Cleanup(func() { w.Close() })

	day := filepath.Join(root, "2025", "06")
	require.NoError(t, os.MkdirAll(day, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(day, "rollout.jsonl"), []byte("{}\n"), 0o644))
	waitSignal(t, w)

	// Once the root exists, later writes are seen as usual.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(day, "rollout.jsonl"), []byte("{}\n{}\n"), 0o644))
	waitSignal(t, w)
}

func TestWatcherSignalsTranscriptsInMovedInDirectory(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "projects")
	require.NoError(t, os.Mkdir(root, 0o755))
	staged := filepath.Join(base, "staged")
	require.NoError(t, os.Mkdir(staged, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staged, "s.jsonl"), []byte("{}\n"), 0o644))

	w, err := NewWatcher(parser.Roots{Claude: root}, 20*time.Millisecond)
	require.NoError(t, err)
	w.Start()
	t.Cleanup(func() { w.Close() })

	require.NoError(t, os.Rename(staged, filepath.Join(root, "proj")))
	waitSignal(t, w)
}
