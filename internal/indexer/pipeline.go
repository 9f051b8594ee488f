package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/recall/internal/index"
	"github.com/asheshgoplani/recall/internal/logging"
	"github.com/asheshgoplani/recall/internal/parser"
	"github.com/asheshgoplani/recall/internal/session"
)

var indexLog = logging.ForComponent(logging.CompIndex)

const (
	defaultBatchSize = 200
	defaultWorkers   = 4
)

// Sink receives progress from a pipeline run. Every successful run ends
// with exactly one Done.
type Sink interface {
	Progress(indexed, total int)
	NeedsReload()
	Done(totalSessions int)
}

// Options configure a Pipeline.
type Options struct {
	Roots     parser.Roots
	StatePath string
	BatchSize int // files per commit; 0 means 200
	Workers   int // concurrent parses; 0 means 4
	RateLimit int // files parsed per second; 0 means unlimited
}

// Result summarizes one run.
type Result struct {
	Discovered int
	Indexed    int
	Failed     int
	Removed    int
	Commits    int
}

// Pipeline brings the index up to date with the transcripts on disk. Only
// new or changed files are parsed; files that disappeared are removed.
type Pipeline struct {
	index   *index.SessionIndex
	opts    Options
	limiter *rate.Limiter

	// state is carried between runs and dropped after a failed run, so the
	// next run starts from what is on disk.
	state       *index.IndexState
	stateLoaded bool

	discover func(parser.Roots) []parser.SessionFile
	parse    func(path string) (*session.Session, error)
}

// New returns a pipeline writing into idx.
func New(idx *index.SessionIndex, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	p := &Pipeline{
		index:    idx,
		opts:     opts,
		discover: parser.Discover,
		parse:    parser.ParseFile,
	}
	if opts.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 5)
	}
	return p
}

func (p *Pipeline) loadState() (*index.IndexState, error) {
	if p.state != nil {
		return p.state, nil
	}
	var (
		st  *index.IndexState
		err error
	)
	if !p.stateLoaded {
		st, err = index.LoadStateFor(p.index, p.opts.StatePath)
	} else {
		st, err = index.LoadState(p.opts.StatePath)
	}
	if err != nil {
		return nil, err
	}
	p.state, p.stateLoaded = st, true
	return st, nil
}

// unreachableRoots lists the roots that cannot be read right now, such as
// a network mount that dropped. Their sessions are kept until they return.
func unreachableRoots(roots parser.Roots) []string {
	var out []string
	for _, dir := range roots.Dirs() {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			out = append(out, filepath.Clean(dir))
		}
	}
	return out
}

type parsed struct {
	session *session.Session
	err     error
}

// Run performs one indexing pass. Parse failures are skipped and retried on
// a later run; any index failure aborts the run, rolls back the open batch
// and is returned.
func (p *Pipeline) Run(ctx context.Context, sink Sink) (Result, error) {
	var res Result
	start := time.Now()

	st, err := p.loadState()
	if err != nil {
		return res, err
	}

	files := p.discover(p.opts.Roots)
	res.Discovered = len(files)

	var delta []parser.SessionFile
	for _, f := range files {
		if st.NeedsReindex(f) {
			delta = append(delta, f)
		}
	}
	unreachable := unreachableRoots(p.opts.Roots)
	if len(unreachable) > 0 {
		indexLog.Debug("roots_unreachable", slog.Any("roots", unreachable))
	}
	gone := st.Prune(files, unreachable...)
	res.Removed = len(gone)

	if len(delta) == 0 && len(gone) == 0 {
		sink.Done(len(files))
		return res, nil
	}

	w, err := p.index.Writer()
	if err != nil {
		p.state = nil
		return res, fmt.Errorf("indexer: open writer: %w", err)
	}
	abort := func(err error) (Result, error) {
		_ = w.Rollback()
		p.state = nil
		indexLog.Error("pipeline_aborted",
			slog.String("error", err.Error()),
			slog.Int("indexed", res.Indexed),
			slog.Int("commits", res.Commits))
		return res, err
	}

	for _, path := range gone {
		if err := p.index.DeleteSession(w, path); err != nil {
			return abort(err)
		}
	}

	done := 0
	for lo := 0; lo < len(delta); lo += p.opts.BatchSize {
		hi := min(lo+p.opts.BatchSize, len(delta))
		batch := delta[lo:hi]

		results, err := p.parseBatch(ctx, batch)
		if err != nil {
			return abort(err)
		}

		for i, f := range batch {
			if err := p.index.DeleteSession(w, f.Path); err != nil {
				return abort(err)
			}
			r := results[i]
			if r.err != nil {
				res.Failed++
				logging.Aggregate(logging.CompIndex, "parse_failed", slog.String("path", f.Path))
				indexLog.Debug("parse_failed", slog.String("path", f.Path), slog.String("error", r.err.Error()))
			} else {
				if len(r.session.Messages) > 0 {
					if err := p.index.IndexSession(w, r.session); err != nil {
						return abort(err)
					}
				}
				st.MarkIndexed(f)
				res.Indexed++
			}
			done++
			sink.Progress(done, len(delta))
		}

		if hi < len(delta) {
			if err := p.index.Commit(w); err != nil {
				return abort(err)
			}
			res.Commits++
			indexLog.Debug("pipeline_commit", slog.Int("indexed", done), slog.Int("total", len(delta)))
			if w, err = p.index.Writer(); err != nil {
				p.state = nil
				return res, fmt.Errorf("indexer: reopen writer: %w", err)
			}
			sink.NeedsReload()
		}
	}

	if err := p.index.Commit(w); err != nil {
		return abort(err)
	}
	res.Commits++
	if err := st.Save(p.opts.StatePath); err != nil {
		p.state = nil
		return res, err
	}

	indexLog.Info("pipeline_done",
		slog.Int("discovered", res.Discovered),
		slog.Int("indexed", res.Indexed),
		slog.Int("failed", res.Failed),
		slog.Int("removed", res.Removed),
		slog.Duration("elapsed", time.Since(start)))
	sink.Done(len(files))
	return res, nil
}

// parseBatch parses files concurrently. Results line up with files; the
// only error is a cancelled context while waiting on the rate limiter.
func (p *Pipeline) parseBatch(ctx context.Context, files []parser.SessionFile) ([]parsed, error) {
	out := make([]parsed, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, f := range files {
		g.Go(func() error {
			if p.limiter != nil {
				if err := p.limiter.Wait(gctx); err != nil {
					return fmt.Errorf("indexer: rate limit: %w", err)
				}
			}
			s, err := p.parse(f.Path)
			out[i] = parsed{session: s, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
