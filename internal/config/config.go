package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	dark "github.com/thiagokokada/dark-mode-go"
)

// FileName is the TOML config file inside the recall config directory.
const FileName = "config.toml"

// UserConfig represents user-facing configuration in TOML format.
// Zero values mean "use the default"; read settings through the getters.
type UserConfig struct {
	// Theme sets the color scheme: "dark" (default), "light", or "system"
	Theme string `toml:"theme"`

	Search  SearchSettings `toml:"search"`
	Index   IndexSettings  `toml:"index"`
	Sources SourceSettings `toml:"sources"`
	Watch   WatchSettings  `toml:"watch"`
	Logs    LogSettings    `toml:"logs"`
}

// SearchSettings tunes the interactive search.
type SearchSettings struct {
	// DebounceMS is the pause after the last keystroke before searching (default: 50)
	DebounceMS int `toml:"debounce_ms"`

	// Limit is the number of results fetched per query (default: 50)
	Limit int `toml:"limit"`

	// FuzzyFallback fuzzy-matches recent sessions when a query has no hits (default: true)
	FuzzyFallback *bool `toml:"fuzzy_fallback"`

	// DefaultScope is "folder" (default) or "everything"
	DefaultScope string `toml:"default_scope"`
}

// IndexSettings tunes the indexing pipeline.
type IndexSettings struct {
	// BatchSize is the number of files per commit (default: 200)
	BatchSize int `toml:"batch_size"`

	// Workers bounds concurrent file parsing (default: 4)
	Workers int `toml:"workers"`

	// RateLimit caps files parsed per second in the background; 0 = unlimited
	RateLimit int `toml:"rate_limit"`
}

// SourceSettings overrides where transcripts are discovered.
type SourceSettings struct {
	// ClaudeDir defaults to <home>/.claude/projects
	ClaudeDir string `toml:"claude_dir"`

	// CodexDir defaults to <home>/.codex/sessions
	CodexDir string `toml:"codex_dir"`
}

// WatchSettings controls live reindexing while the TUI is open.
type WatchSettings struct {
	// Enabled watches the source dirs for changes (default: true)
	Enabled *bool `toml:"enabled"`

	// DebounceMS coalesces bursts of writes (default: 500)
	DebounceMS int `toml:"debounce_ms"`
}

// LogSettings configures the debug log.
type LogSettings struct {
	// Debug writes debug.log even without RECALL_DEBUG
	Debug bool `toml:"debug"`

	// Level is the minimum log level: "debug" (default), "info", "warn", "error"
	Level string `toml:"level"`

	// Format is "json" (default) or "text"
	Format string `toml:"format"`

	// MaxMB is the size of debug.log before rotation (default: 10)
	MaxMB int `toml:"max_mb"`

	// Backups is the number of rotated files to keep (default: 3)
	Backups int `toml:"backups"`

	// RetentionDays is how long rotated files are kept (default: 10)
	RetentionDays int `toml:"retention_days"`

	// Compress gzips rotated files
	Compress bool `toml:"compress"`

	// RingBufferMB is the in-memory buffer dumped on SIGUSR1 (default: 4)
	RingBufferMB int `toml:"ring_buffer_mb"`

	// PprofEnabled starts a pprof server on localhost:6060 in debug mode
	PprofEnabled bool `toml:"pprof_enabled"`

	// AggregateIntervalS is the event summary interval in seconds (default: 30)
	AggregateIntervalS int `toml:"aggregate_interval_secs"`
}

// Default returns an empty config; every getter falls back to its default.
func Default() *UserConfig {
	return &UserConfig{}
}

// Load reads the config at path. A missing file yields defaults. A file that
// fails to parse also yields defaults, together with the error so the caller
// can tell the user.
func Load(path string) (*UserConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	var cfg UserConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Default(), fmt.Errorf("config.toml parse error: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path atomically: temp file (0600), fsync, rename.
func Save(path string, cfg *UserConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# recall configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return WriteFileAtomic(path, buf.Bytes())
}

// WriteFileAtomic replaces path with data so readers never see a torn file.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}

// GetTheme returns the configured theme, defaulting to "dark".
func (c *UserConfig) GetTheme() string {
	switch c.Theme {
	case "dark", "light", "system":
		return c.Theme
	default:
		return "dark"
	}
}

// ResolveTheme resolves the configured theme to "dark" or "light".
// "system" asks the OS; detection failure falls back to dark.
func (c *UserConfig) ResolveTheme() string {
	theme := c.GetTheme()
	if theme != "system" {
		return theme
	}
	isDark, err := dark.IsDarkMode()
	if err != nil || isDark {
		return "dark"
	}
	return "light"
}

// Debounce returns the search debounce window.
func (s SearchSettings) Debounce() time.Duration {
	if s.DebounceMS <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(s.DebounceMS) * time.Millisecond
}

// GetLimit returns the per-query result count.
func (s SearchSettings) GetLimit() int {
	if s.Limit <= 0 {
		return 50
	}
	return s.Limit
}

// GetFuzzyFallback reports whether zero-hit queries fall back to fuzzy matching.
func (s SearchSettings) GetFuzzyFallback() bool {
	if s.FuzzyFallback == nil {
		return true
	}
	return *s.FuzzyFallback
}

// StartInFolderScope reports whether the TUI opens scoped to the launch dir.
func (s SearchSettings) StartInFolderScope() bool {
	return strings.ToLower(s.DefaultScope) != "everything"
}

// GetBatchSize returns the number of files per commit.
func (s IndexSettings) GetBatchSize() int {
	if s.BatchSize <= 0 {
		return 200
	}
	return s.BatchSize
}

// GetWorkers returns the parse concurrency.
func (s IndexSettings) GetWorkers() int {
	if s.Workers <= 0 {
		return 4
	}
	return s.Workers
}

// GetRateLimit returns files/sec for background indexing, 0 for unlimited.
func (s IndexSettings) GetRateLimit() int {
	if s.RateLimit < 0 {
		return 0
	}
	return s.RateLimit
}

// GetEnabled reports whether the source dirs are watched.
func (w WatchSettings) GetEnabled() bool {
	if w.Enabled == nil {
		return true
	}
	return *w.Enabled
}

// Debounce returns the quiet period before a change triggers reindexing.
func (w WatchSettings) Debounce() time.Duration {
	if w.DebounceMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(w.DebounceMS) * time.Millisecond
}
