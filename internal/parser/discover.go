package parser

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/asheshgoplani/recall/internal/logging"
)

var parserLog = logging.ForComponent(logging.CompParser)

// Roots are the directories transcripts are discovered under. An empty or
// missing root contributes nothing.
type Roots struct {
	Claude string
	Codex  string
}

// Dirs returns the non-empty roots.
func (r Roots) Dirs() []string {
	var dirs []string
	for _, d := range []string{r.Claude, r.Codex} {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// SessionFile is a candidate transcript as seen on disk during one pass.
type SessionFile struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// skipDirs hold per-tool side files, not conversations.
var skipDirs = map[string]bool{
	"subagents":    true,
	"tool-results": true,
}

// IsSideDir reports whether a directory name holds side files that are
// never walked.
func IsSideDir(name string) bool {
	return skipDirs[name]
}

// Discover walks every root and returns the *.jsonl files, newest first.
// Ties are ordered by path so repeated passes are stable. Unreadable
// directories are skipped.
func Discover(roots Roots) []SessionFile {
	var files []SessionFile
	for _, root := range roots.Dirs() {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		files = append(files, walkRoot(abs)...)
	}

	slices.SortStableFunc(files, func(a, b SessionFile) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	return files
}

func walkRoot(root string) []SessionFile {
	var files []SessionFile
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				// Missing or unreadable root; nothing to index here.
				return fs.SkipAll
			}
			parserLog.Debug("discover_skip", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, SessionFile{Path: path, ModTime: info.ModTime(), Size: info.Size()})
		return nil
	})
	return files
}
