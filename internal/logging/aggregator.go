package logging

import (
	"log/slog"
	"sync"
	"time"
)

type aggregateKey struct {
	component string
	event     string
}

type aggregateEntry struct {
	count     int64
	firstSeen time.Time
	fields    []slog.Attr
}

// Aggregator batches repetitive events and emits one event_summary record
// per (component, event) each interval. Indexing a large history can fail to
// parse hundreds of half-written files; one line per file would drown the log.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	entries map[aggregateKey]*aggregateEntry

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAggregator creates an aggregator that flushes every intervalSecs.
// A nil logger drops everything.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		entries:  make(map[aggregateKey]*aggregateEntry),
		done:     make(chan struct{}),
	}
}

// Start launches the periodic flush goroutine.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Flush()
			case <-a.done:
				return
			}
		}
	}()
}

// Stop ends the flush goroutine and writes whatever is pending.
// Safe to call more than once, and safe without Start.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.done) })
	a.wg.Wait()
	a.Flush()
}

// Record counts one occurrence. The most recent fields win.
func (a *Aggregator) Record(component, event string, fields ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := aggregateKey{component: component, event: event}
	entry, ok := a.entries[key]
	if !ok {
		entry = &aggregateEntry{firstSeen: time.Now()}
		a.entries[key] = entry
	}
	entry.count++
	if len(fields) > 0 {
		entry.fields = fields
	}
}

// Pending reports the count recorded for an event since the last flush.
func (a *Aggregator) Pending(component, event string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entries[aggregateKey{component: component, event: event}]; ok {
		return e.count
	}
	return 0
}

// Flush emits one summary per pending event and resets the counters.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	if len(a.entries) == 0 {
		a.mu.Unlock()
		return
	}
	entries := a.entries
	a.entries = make(map[aggregateKey]*aggregateEntry)
	a.mu.Unlock()

	if a.logger == nil {
		return
	}
	for key, e := range entries {
		attrs := []any{
			slog.String("component", key.component),
			slog.String("event", key.event),
			slog.Int64("count", e.count),
			slog.Duration("window", time.Since(e.firstSeen).Round(time.Millisecond)),
		}
		for _, f := range e.fields {
			attrs = append(attrs, f)
		}
		a.logger.Info("event_summary", attrs...)
	}
}
