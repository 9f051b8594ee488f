package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)

	assert.Equal(t, "dark", cfg.GetTheme())
	assert.Equal(t, 50*time.Millisecond, cfg.Search.Debounce())
	assert.Equal(t, 50, cfg.Search.GetLimit())
	assert.True(t, cfg.Search.GetFuzzyFallback())
	assert.True(t, cfg.Search.StartInFolderScope())
	assert.Equal(t, 200, cfg.Index.GetBatchSize())
	assert.Equal(t, 4, cfg.Index.GetWorkers())
	assert.Equal(t, 0, cfg.Index.GetRateLimit())
	assert.True(t, cfg.Watch.GetEnabled())
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce())
}

func TestLoadParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`
theme = "light"

[search]
debounce_ms = 120
limit = 30
fuzzy_fallback = false
default_scope = "everything"

[index]
batch_size = 50
workers = 2
rate_limit = 20

[sources]
claude_dir = "~/alt/claude"

[watch]
enabled = false

[logs]
debug = true
level = "debug"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "light", cfg.GetTheme())
	assert.Equal(t, "light", cfg.ResolveTheme())
	assert.Equal(t, 120*time.Millisecond, cfg.Search.Debounce())
	assert.Equal(t, 30, cfg.Search.GetLimit())
	assert.False(t, cfg.Search.GetFuzzyFallback())
	assert.False(t, cfg.Search.StartInFolderScope())
	assert.Equal(t, 50, cfg.Index.GetBatchSize())
	assert.Equal(t, 2, cfg.Index.GetWorkers())
	assert.Equal(t, 20, cfg.Index.GetRateLimit())
	assert.False(t, cfg.Watch.GetEnabled())
	assert.True(t, cfg.Logs.Debug)

	p := NewPaths("/home/u", "/c/recall", "/cfg/recall", "/w")
	assert.Equal(t, "/home/u/alt/claude", p.ClaudeDir(cfg))
	assert.Equal(t, "/home/u/.codex/sessions", p.CodexDir(cfg))
}

func TestLoadInvalidTOMLReturnsDefaultsAndError(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("theme = [unterminated"), 0o600))

	cfg, err := Load(path)
	require.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "dark", cfg.GetTheme())
}

func TestUnknownThemeFallsBackToDark(t *testing.T) {
	cfg := &UserConfig{Theme: "solarized"}
	assert.Equal(t, "dark", cfg.GetTheme())
	assert.Equal(t, "dark", cfg.ResolveTheme())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	off := false
	in := &UserConfig{
		Theme:  "light",
		Search: SearchSettings{Limit: 25, FuzzyFallback: &off},
		Index:  IndexSettings{Workers: 8},
	}
	require.NoError(t, Save(path, in))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "light", out.Theme)
	assert.Equal(t, 25, out.Search.GetLimit())
	assert.False(t, out.Search.GetFuzzyFallback())
	assert.Equal(t, 8, out.Index.GetWorkers())

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestResolvePathsWithOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHomeOverride, home)
	t.Setenv(EnvCWDOverride, "/projects/api")

	p, err := ResolvePaths()
	require.NoError(t, err)

	assert.Equal(t, home, p.Home)
	assert.Equal(t, filepath.Join(home, ".cache", "recall"), p.CacheDir)
	assert.Equal(t, filepath.Join(home, ".cache", "recall", "index"), p.IndexDir)
	assert.Equal(t, filepath.Join(home, ".cache", "recall", "state.json"), p.StatePath)
	assert.Equal(t, filepath.Join(home, ".config", "recall", FileName), p.ConfigPath)
	assert.Equal(t, "/projects/api", p.LaunchCWD)
	assert.Equal(t, filepath.Join(home, ".claude", "projects"), p.ClaudeDir(nil))

	require.NoError(t, p.Ensure())
	assert.DirExists(t, p.IndexDir)
}

func TestExpandHome(t *testing.T) {
	p := NewPaths("/home/u", "", "", "")
	assert.Equal(t, "/home/u", p.ExpandHome("~"))
	assert.Equal(t, "/home/u/x/y", p.ExpandHome("~/x/y"))
	assert.Equal(t, "/abs/path", p.ExpandHome("/abs/path"))
	assert.Equal(t, "~other/x", p.ExpandHome("~other/x"))
}

func TestDebugEnabled(t *testing.T) {
	t.Setenv(EnvDebug, "")
	assert.False(t, DebugEnabled(nil))
	assert.True(t, DebugEnabled(&UserConfig{Logs: LogSettings{Debug: true}}))

	t.Setenv(EnvDebug, "1")
	assert.True(t, DebugEnabled(nil))

	t.Setenv(EnvDebug, "false")
	assert.False(t, DebugEnabled(nil))
}
