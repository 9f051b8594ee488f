package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment overrides. The two *_OVERRIDE variables exist for tests and
// sandboxed runs; RECALL_DEBUG turns on the debug log.
const (
	EnvHomeOverride = "RECALL_HOME_OVERRIDE"
	EnvCWDOverride  = "RECALL_CWD_OVERRIDE"
	EnvDebug        = "RECALL_DEBUG"
)

// Paths is every filesystem location recall touches, resolved once at startup
// and passed down explicitly.
type Paths struct {
	Home       string
	CacheDir   string
	IndexDir   string
	StatePath  string
	ConfigPath string
	LogDir     string
	LaunchCWD  string
}

// ResolvePaths computes Paths from the environment.
func ResolvePaths() (*Paths, error) {
	var home, cacheRoot, configRoot string

	if override := os.Getenv(EnvHomeOverride); override != "" {
		home = override
		cacheRoot = filepath.Join(override, ".cache")
		configRoot = filepath.Join(override, ".config")
	} else {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		if cacheRoot, err = os.UserCacheDir(); err != nil {
			cacheRoot = filepath.Join(home, ".cache")
		}
		if configRoot, err = os.UserConfigDir(); err != nil {
			configRoot = filepath.Join(home, ".config")
		}
	}

	cwd := os.Getenv(EnvCWDOverride)
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}

	return NewPaths(home, filepath.Join(cacheRoot, "recall"), filepath.Join(configRoot, "recall"), cwd), nil
}

// NewPaths lays out the recall directories under explicit roots.
func NewPaths(home, cacheDir, configDir, launchCWD string) *Paths {
	return &Paths{
		Home:       home,
		CacheDir:   cacheDir,
		IndexDir:   filepath.Join(cacheDir, "index"),
		StatePath:  filepath.Join(cacheDir, "state.json"),
		ConfigPath: filepath.Join(configDir, FileName),
		LogDir:     cacheDir,
		LaunchCWD:  launchCWD,
	}
}

// Ensure creates the cache directories.
func (p *Paths) Ensure() error {
	for _, dir := range []string{p.CacheDir, p.IndexDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// ClaudeDir returns the Claude Code projects directory.
func (p *Paths) ClaudeDir(cfg *UserConfig) string {
	if cfg != nil && cfg.Sources.ClaudeDir != "" {
		return p.ExpandHome(cfg.Sources.ClaudeDir)
	}
	return filepath.Join(p.Home, ".claude", "projects")
}

// CodexDir returns the Codex CLI sessions directory.
func (p *Paths) CodexDir(cfg *UserConfig) string {
	if cfg != nil && cfg.Sources.CodexDir != "" {
		return p.ExpandHome(cfg.Sources.CodexDir)
	}
	return filepath.Join(p.Home, ".codex", "sessions")
}

// ExpandHome replaces a leading ~ with the resolved home directory.
func (p *Paths) ExpandHome(path string) string {
	if path == "~" {
		return p.Home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(p.Home, path[2:])
	}
	return path
}

// DebugEnabled reports whether the debug log should be written.
func DebugEnabled(cfg *UserConfig) bool {
	if v := os.Getenv(EnvDebug); v != "" && v != "0" && strings.ToLower(v) != "false" {
		return true
	}
	return cfg != nil && cfg.Logs.Debug
}
