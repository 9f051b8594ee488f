package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Msg is a notification from a background indexing run.
type Msg interface {
	isMsg()
}

// MsgProgress reports files processed so far out of the run's delta.
type MsgProgress struct {
	Indexed int
	Total   int
}

// MsgNeedsReload means a batch was committed and readers should Reload.
type MsgNeedsReload struct{}

// MsgDone ends a successful run.
type MsgDone struct {
	TotalSessions int
}

// MsgError ends a failed run.
type MsgError struct {
	Err error
}

func (MsgProgress) isMsg()    {}
func (MsgNeedsReload) isMsg() {}
func (MsgDone) isMsg()        {}
func (MsgError) isMsg()       {}

// Runner is one indexing pass; *Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, sink Sink) (Result, error)
}

const msgBuffer = 64

// Coordinator runs indexing in the background and reports over a channel.
type Coordinator struct {
	runner Runner
}

// NewCoordinator returns a coordinator for r.
func NewCoordinator(r Runner) *Coordinator {
	return &Coordinator{runner: r}
}

// Start launches one run. The returned channel carries its messages and is
// closed when the goroutine exits: after exactly one MsgDone or MsgError,
// or with neither if the run panicked.
func (c *Coordinator) Start(ctx context.Context) <-chan Msg {
	ch := make(chan Msg, msgBuffer)
	go func() {
		defer close(ch)
		defer func() {
			if r := recover(); r != nil {
				indexLog.Error("indexer_panic",
					slog.String("panic", fmt.Sprint(r)),
					slog.String("stack", string(debug.Stack())))
			}
		}()

		if _, err := c.runner.Run(ctx, chanSink{ch: ch}); err != nil {
			ch <- MsgError{Err: err}
		}
	}()
	return ch
}

type chanSink struct {
	ch chan<- Msg
}

// Progress is dropped rather than blocking the run when the consumer is
// behind; the next one supersedes it anyway.
func (s chanSink) Progress(indexed, total int) {
	select {
	case s.ch <- MsgProgress{Indexed: indexed, Total: total}:
	default:
	}
}

func (s chanSink) NeedsReload() {
	s.ch <- MsgNeedsReload{}
}

func (s chanSink) Done(totalSessions int) {
	s.ch <- MsgDone{TotalSessions: totalSessions}
}

// Drain returns every message already queued on ch without blocking, and
// whether ch has been closed.
func Drain(ch <-chan Msg) ([]Msg, bool) {
	var msgs []Msg
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return msgs, true
			}
			msgs = append(msgs, m)
		default:
			return msgs, false
		}
	}
}
