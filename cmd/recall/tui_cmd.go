package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/asheshgoplani/recall/internal/app"
	"github.com/asheshgoplani/recall/internal/index"
	"github.com/asheshgoplani/recall/internal/indexer"
	"github.com/asheshgoplani/recall/internal/platform"
	"github.com/asheshgoplani/recall/internal/session"
	"github.com/asheshgoplani/recall/internal/ui"
)

func tuiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tui [query]",
		Short: "Open the interactive search screen",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runTUI(cmd.Context(), strings.Join(args, " "))
		},
	}
}

// runTUI opens the search screen and, once it exits, resumes the session the
// user picked.
func (c *cli) runTUI(ctx context.Context, query string) error {
	initColorProfile()
	ui.InitTheme(c.cfg.ResolveTheme())

	s, err := c.searchScreen(ctx, query)
	if err != nil {
		return err
	}
	if s != nil {
		c.exitCode = c.resume(s)
	}
	return nil
}

// searchScreen runs the TUI until it quits and returns the session chosen
// for resuming, if any. The index is closed before it returns.
func (c *cli) searchScreen(ctx context.Context, query string) (*session.Session, error) {
	idx, err := index.OpenOrCreate(c.paths.IndexDir)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := ui.Options{Indexer: indexer.NewCoordinator(c.pipeline(idx))}
	if c.cfg.Watch.GetEnabled() {
		changes, stopWatching, warning := c.watchTranscripts()
		defer stopWatching()
		opts.Changes, opts.Warning = changes, warning
	}
	if c.cfg.GetTheme() == "system" {
		if tw := ui.NewThemeWatcher(ctx); tw != nil {
			defer tw.Close()
			opts.ThemeChanges = tw.Changes()
		}
	}

	o := app.New(idx, app.Options{
		LaunchCWD:     c.paths.LaunchCWD,
		Home:          c.paths.Home,
		InitialQuery:  query,
		FolderScope:   c.cfg.Search.StartInFolderScope(),
		Debounce:      c.cfg.Search.Debounce(),
		Limit:         c.cfg.Search.GetLimit(),
		FuzzyFallback: c.cfg.Search.GetFuzzyFallback(),
	})
	model := ui.NewModel(ctx, o, opts)

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, fmt.Errorf("run tui: %w", err)
	}

	if msg := o.IndexErrText(); msg != "" {
		fmt.Fprintln(c.stderr, msg)
	}
	return model.Resume(), nil
}

// watchTranscripts starts change detection on the discovery roots. Event
// based watching is used unless a root sits on a filesystem that does not
// deliver events, in which case the roots are polled.
func (c *cli) watchTranscripts() (<-chan struct{}, func(), string) {
	roots := c.roots()
	for _, dir := range roots.Dirs() {
		if warning := platform.CheckFsnotifySupport(dir); warning != "" {
			p := indexer.NewPoller(roots, indexer.DefaultPollInterval)
			p.Start()
			cliLog.Info("watch_polling", slog.String("dir", dir), slog.String("reason", warning))
			return p.Changes(), func() { p.Close() }, warning
		}
	}

	w, err := indexer.NewWatcher(roots, c.cfg.Watch.Debounce())
	if err != nil {
		cliLog.Warn("watcher_unavailable", slog.String("error", err.Error()))
		return nil, func() {}, ""
	}
	w.Start()
	return w.Changes(), func() { w.Close() }, ""
}

// resume runs the session's resume command from its working directory with
// the terminal attached and returns its exit code.
func (c *cli) resume(s *session.Session) int {
	name, args := s.ResumeCommand()
	cmd := exec.Command(name, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr

	if s.CWD != "" {
		if info, err := os.Stat(s.CWD); err == nil && info.IsDir() {
			cmd.Dir = s.CWD
		} else {
			fmt.Fprintf(c.stderr, "Warning: %s no longer exists, resuming from the current directory\n", s.CWD)
		}
	}

	cliLog.Info("resume_session",
		slog.String("id", s.ID),
		slog.String("source", string(s.Source)),
		slog.String("dir", cmd.Dir))
	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	default:
		fmt.Fprintf(c.stderr, "Error: could not run %s: %v\n", session.ResumeCommandLine(s.Source, s.ID), err)
		return 1
	}
}
