package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/asheshgoplani/recall/internal/config"
	"github.com/asheshgoplani/recall/internal/index"
	"github.com/asheshgoplani/recall/internal/indexer"
	"github.com/asheshgoplani/recall/internal/logging"
	"github.com/asheshgoplani/recall/internal/parser"
	"github.com/asheshgoplani/recall/internal/session"
	"github.com/asheshgoplani/recall/internal/timefilter"
)

var cliLog = logging.ForComponent(logging.CompCLI)

// cli carries what every subcommand shares: where output goes and the
// resolved paths and config.
type cli struct {
	stdout      io.Writer
	stderr      io.Writer
	interactive bool
	jsonErrors  bool
	exitCode    int
	now         func() time.Time

	paths *config.Paths
	cfg   *config.UserConfig
}

func (c *cli) output() *CLIOutput {
	return NewCLIOutput(c.stdout, c.stderr, c.jsonErrors)
}

func (c *cli) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "recall [query]",
		Short: "Search and resume Claude Code and Codex conversations",
		Long: `recall indexes the transcripts Claude Code and Codex keep on disk and
lets you search them, read them, and jump back into a conversation.

Without a subcommand it opens the interactive search screen.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runTUI(cmd.Context(), strings.Join(args, " "))
		},
	}
	root.PersistentFlags().BoolVar(&c.jsonErrors, "json-errors", false, "Report errors as JSON on stdout")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", session.ErrInvalidInput, err)
	})

	root.AddCommand(
		searchCmd(c),
		listCmd(c),
		readCmd(c),
		tuiCmd(c),
		versionCmd(c),
	)
	return root
}

// setup resolves paths, loads config and starts logging.
func (c *cli) setup() error {
	paths, err := config.ResolvePaths()
	if err != nil {
		return fmt.Errorf("%w: %w", session.ErrIO, err)
	}
	if err := paths.Ensure(); err != nil {
		return fmt.Errorf("%w: %w", session.ErrIO, err)
	}
	cfg, err := config.Load(paths.ConfigPath)
	if err != nil {
		fmt.Fprintf(c.stderr, "Warning: %v (using defaults)\n", err)
	}
	c.paths, c.cfg = paths, cfg

	logging.Init(logConfig(paths, cfg))
	if c.interactive {
		watchDumpSignal(paths.LogDir)
	}
	return nil
}

func (c *cli) roots() parser.Roots {
	return parser.Roots{
		Claude: c.paths.ClaudeDir(c.cfg),
		Codex:  c.paths.CodexDir(c.cfg),
	}
}

func (c *cli) pipeline(idx *index.SessionIndex) *indexer.Pipeline {
	return indexer.New(idx, indexer.Options{
		Roots:     c.roots(),
		StatePath: c.paths.StatePath,
		BatchSize: c.cfg.Index.GetBatchSize(),
		Workers:   c.cfg.Index.GetWorkers(),
		RateLimit: c.cfg.Index.GetRateLimit(),
	})
}

// openIndex opens the index and brings it up to date before any query, so
// the non-interactive commands always see what is on disk.
func (c *cli) openIndex(ctx context.Context) (*index.SessionIndex, error) {
	idx, err := index.OpenOrCreate(c.paths.IndexDir)
	if err != nil {
		return nil, err
	}
	res, err := c.pipeline(idx).Run(ctx, newProgressSink(c.stderr))
	if err == nil {
		err = idx.Reload()
	}
	if err != nil {
		idx.Close()
		return nil, err
	}
	cliLog.Debug("index_synced",
		slog.Int("discovered", res.Discovered),
		slog.Int("indexed", res.Indexed),
		slog.Int("failed", res.Failed))
	return idx, nil
}

// filterFlags are the --source, --since and --until flags shared by search
// and list.
type filterFlags struct {
	source string
	since  string
	until  string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.source, "source", "", "Only sessions from this tool (claude or codex)")
	cmd.Flags().StringVar(&f.since, "since", "", `Only sessions at or after this time ("2 days ago", "yesterday", 2025-01-31, RFC3339)`)
	cmd.Flags().StringVar(&f.until, "until", "", "Only sessions at or before this time")
}

type sessionFilter struct {
	source session.Source
	window timefilter.Window
}

func (f *filterFlags) compile(now time.Time) (sessionFilter, error) {
	var sf sessionFilter
	if f.source != "" {
		src, err := session.ParseSource(f.source)
		if err != nil {
			return sf, err
		}
		sf.source = src
	}
	w, err := timefilter.ParseWindow(f.since, f.until, now)
	if err != nil {
		return sf, err
	}
	sf.window = w
	return sf, nil
}

func (f sessionFilter) match(s session.SessionSummary) bool {
	if f.source != "" && s.Source != f.source {
		return false
	}
	return f.window.Contains(s.Timestamp)
}

// apply keeps at most limit results that pass the filter, in order.
func (f sessionFilter) apply(results []session.SearchResult, limit int) []session.SearchResult {
	out := make([]session.SearchResult, 0, min(limit, len(results)))
	for _, r := range results {
		if len(out) >= limit {
			break
		}
		if f.match(r.Session) {
			out = append(out, r)
		}
	}
	return out
}

// withInvalidInput marks cobra's argument-count errors as user errors.
func withInvalidInput(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", session.ErrInvalidInput, err)
		}
		return nil
	}
}

func checkLimit(name string, v int) error {
	if v < 0 {
		return fmt.Errorf("%w: --%s must not be negative", session.ErrInvalidInput, name)
	}
	return nil
}

func versionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  withInvalidInput(cobra.NoArgs),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(c.stdout, "recall v%s\n", Version)
			return err
		},
	}
}
