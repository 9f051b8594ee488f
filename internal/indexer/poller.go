package indexer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/asheshgoplani/recall/internal/index"
	"github.com/asheshgoplani/recall/internal/parser"
)

// DefaultPollInterval is how often a Poller rescans the roots.
const DefaultPollInterval = 2 * time.Second

// Poller signals transcript changes by rescanning the roots on an interval.
// It stands in for Watcher on filesystems that deliver no change events
// (9p, NFS, SSHFS).
type Poller struct {
	roots    parser.Roots
	interval time.Duration
	discover func(parser.Roots) []parser.SessionFile
	changes  chan struct{}

	last map[string]index.Signature

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPoller snapshots the roots so only later changes are signalled.
func NewPoller(roots parser.Roots, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p := &Poller{
		roots:    roots,
		interval: interval,
		discover: parser.Discover,
		changes:  make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
	}
	p.last = p.snapshot()
	return p
}

func (p *Poller) snapshot() map[string]index.Signature {
	files := p.discover(p.roots)
	sigs := make(map[string]index.Signature, len(files))
	for _, f := range files {
		sigs[f.Path] = index.SignatureOf(f)
	}
	return sigs
}

// Start begins polling (non-blocking).
func (p *Poller) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Changes returns the channel that signals a new indexing run is due.
func (p *Poller) Changes() <-chan struct{} {
	return p.changes
}

func (p *Poller) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.closeCh:
			return
		case <-ticker.C:
			p.check()
		}
	}
}

// check rescans once and signals if any transcript appeared, changed or
// disappeared since the previous scan.
func (p *Poller) check() bool {
	next := p.snapshot()
	changed := len(next) != len(p.last)
	if !changed {
		for path, sig := range next {
			if prev, ok := p.last[path]; !ok || prev != sig {
				changed = true
				break
			}
		}
	}
	p.last = next
	if !changed {
		return false
	}

	watchLog.Debug("poller_changes_detected", slog.Int("files", len(next)))
	// Non-blocking send (drop if a signal is already pending)
	select {
	case p.changes <- struct{}{}:
	default:
	}
	return true
}

// Close stops polling. Safe to call multiple times.
func (p *Poller) Close() error {
	p.closeOnce.Do(func() {
		close(p.closeCh)
		p.wg.Wait()
	})
	return nil
}
