package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/asheshgoplani/recall/internal/config"
	"github.com/asheshgoplani/recall/internal/logging"
)

const Version = "0.4.0"

// initColorProfile picks the lipgloss color profile. RECALL_COLOR wins;
// otherwise TrueColor is assumed for terminals that are known to support it.
func initColorProfile() {
	// RECALL_COLOR: truecolor, 256, 16, none
	if colorEnv := os.Getenv("RECALL_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}

	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	term := os.Getenv("TERM")
	trueColorTerms := []string{
		"xterm-256color",
		"screen-256color",
		"tmux-256color",
		"xterm-direct",
		"alacritty",
		"kitty",
		"wezterm",
	}
	for _, t := range trueColorTerms {
		if strings.Contains(term, t) {
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		}
	}

	if os.Getenv("WT_SESSION") != "" || // Windows Terminal
		os.Getenv("ITERM_SESSION_ID") != "" || // iTerm2
		os.Getenv("TERMINAL_EMULATOR") != "" || // JetBrains terminals
		os.Getenv("KONSOLE_VERSION") != "" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// SSH sessions and older emulators
	lipgloss.SetColorProfile(termenv.ANSI256)
}

// logConfig builds the logging setup from the [logs] section. Without debug
// mode every record is discarded so stdout and the TUI stay clean.
func logConfig(paths *config.Paths, cfg *config.UserConfig) logging.Config {
	logCfg := logging.Config{
		Debug:                 config.DebugEnabled(cfg),
		LogDir:                paths.LogDir,
		Level:                 "debug",
		Format:                "json",
		MaxSizeMB:             10,
		MaxBackups:            3,
		MaxAgeDays:            10,
		RingBufferSize:        4 * 1024 * 1024,
		AggregateIntervalSecs: 30,
	}

	ls := cfg.Logs
	if ls.Level != "" {
		logCfg.Level = ls.Level
	}
	if ls.Format != "" {
		logCfg.Format = ls.Format
	}
	if ls.MaxMB > 0 {
		logCfg.MaxSizeMB = ls.MaxMB
	}
	if ls.Backups > 0 {
		logCfg.MaxBackups = ls.Backups
	}
	if ls.RetentionDays > 0 {
		logCfg.MaxAgeDays = ls.RetentionDays
	}
	if ls.Compress {
		logCfg.Compress = true
	}
	if ls.RingBufferMB > 0 {
		logCfg.RingBufferSize = ls.RingBufferMB * 1024 * 1024
	}
	if ls.PprofEnabled {
		logCfg.PprofEnabled = true
	}
	if ls.AggregateIntervalS > 0 {
		logCfg.AggregateIntervalSecs = ls.AggregateIntervalS
	}
	return logCfg
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, true)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, interactive bool) int {
	c := &cli{
		stdout:      stdout,
		stderr:      stderr,
		interactive: interactive,
	}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	logging.Shutdown()
	if err != nil {
		c.output().Fail(err)
		return 1
	}
	return c.exitCode
}
