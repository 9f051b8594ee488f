package indexer

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/recall/internal/logging"
	"github.com/asheshgoplani/recall/internal/parser"
)

var watchLog = logging.ForComponent(logging.CompWatch)

// DefaultWatchDebounce is the quiet period after the last change before a
// signal is sent.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watcher signals when transcripts under the discovery roots change.
// Bursts of writes collapse into one signal.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	changes  chan struct{}

	// roots are watched recursively. pending roots do not exist yet; their
	// nearest existing ancestor is watched until they appear. Both are only
	// touched by the event loop once it starts.
	roots   []string
	pending []string

	mu    sync.Mutex
	timer *time.Timer

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWatcher watches every existing directory under roots. A root that does
// not exist yet is picked up when it is created.
func NewWatcher(roots parser.Roots, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:       fw,
		debounce: debounce,
		changes:  make(chan struct{}, 1), // Buffered to prevent blocking
		closeCh:  make(chan struct{}),
	}
	for _, root := range roots.Dirs() {
		w.pending = append(w.pending, filepath.Clean(root))
	}
	w.watchRoots()
	return w, nil
}

// watchRoots starts watching pending roots that now exist and reports
// whether any did.
func (w *Watcher) watchRoots() (appeared bool) {
	var still []string
	for _, root := range w.pending {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			w.roots = append(w.roots, root)
			w.addTree(root)
			appeared = true
			continue
		}
		still = append(still, root)
		if dir := existingAncestor(root); dir != "" {
			if err := w.fs.Add(dir); err != nil {
				watchLog.Debug("watch_add_failed", slog.String("path", dir), slog.String("error", err.Error()))
			}
		}
	}
	w.pending = still
	return appeared
}

func existingAncestor(path string) string {
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		if dir == filepath.Dir(dir) {
			return ""
		}
	}
}

func (w *Watcher) underRoot(path string) bool {
	for _, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// addTree watches dir and its subdirectories, except side-file directories,
// which can number in the thousands and never hold transcripts. It reports
// whether the tree already holds a transcript.
func (w *Watcher) addTree(dir string) (found bool) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if strings.HasSuffix(path, ".jsonl") {
				found = true
			}
			return nil
		}
		if path != dir && parser.IsSideDir(d.Name()) {
			return fs.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			watchLog.Debug("watch_add_failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	})
	return found
}

// Start begins processing events (non-blocking).
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Changes returns the channel that signals a new indexing run is due.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			watchLog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !w.underRoot(event.Name) {
		// Event in an ancestor of a root that does not exist yet.
		if event.Has(fsnotify.Create) && len(w.pending) > 0 && w.watchRoots() {
			w.schedule()
		}
		return
	}
	if event.Has(fsnotify.Create) && !strings.HasSuffix(event.Name, ".jsonl") {
		// New project or day directory. Transcripts written into it before
		// it was watched produced no events of their own.
		if !parser.IsSideDir(filepath.Base(event.Name)) && w.addTree(event.Name) {
			w.schedule()
		}
		return
	}
	if !strings.HasSuffix(event.Name, ".jsonl") {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	w.schedule()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.notify)
}

func (w *Watcher) notify() {
	// Non-blocking send (drop if a signal is already pending)
	select {
	case w.changes <- struct{}{}:
		watchLog.Debug("watcher_changes_detected")
	default:
	}
}

// Close stops the watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeCh)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}
