package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/asheshgoplani/recall/internal/session"
)

// CLIOutput handles consistent output formatting across all CLI commands.
// Results are always JSON on stdout; errors are human-readable on stderr
// unless jsonErrors is set.
type CLIOutput struct {
	stdout     io.Writer
	stderr     io.Writer
	jsonErrors bool
}

// NewCLIOutput creates a new CLI output handler
func NewCLIOutput(stdout, stderr io.Writer, jsonErrors bool) *CLIOutput {
	return &CLIOutput{
		stdout:     stdout,
		stderr:     stderr,
		jsonErrors: jsonErrors,
	}
}

// Print writes data as indented JSON.
func (c *CLIOutput) Print(data any) error {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("format JSON: %w", err)
	}
	_, err = fmt.Fprintln(c.stdout, string(output))
	return err
}

// Error prints an error message or JSON error response
func (c *CLIOutput) Error(message string, code string) {
	if c.jsonErrors {
		if err := c.Print(map[string]any{
			"success": false,
			"error":   message,
			"code":    code,
		}); err == nil {
			return
		}
	}
	fmt.Fprintf(c.stderr, "Error: %s\n", message)
}

// Fail reports err with the code its kind maps to.
func (c *CLIOutput) Fail(err error) {
	c.Error(err.Error(), ErrorCode(err))
}

// Error codes
const (
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeIndexError   = "INDEX_ERROR"
	ErrCodeIOError      = "IO_ERROR"
)

// ErrorCode classifies err for the JSON error document.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, session.ErrInvalidInput):
		return ErrCodeInvalidInput
	case errors.Is(err, session.ErrIO), errors.Is(err, session.ErrParse):
		return ErrCodeIOError
	default:
		return ErrCodeIndexError
	}
}

const progressEvery = 50

// progressSink reports a CLI indexing pass on stderr. On a terminal the
// counter redraws in place; otherwise each update is its own line.
type progressSink struct {
	w       io.Writer
	tty     bool
	started bool
	indexed int
}

func newProgressSink(w io.Writer) *progressSink {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &progressSink{w: w, tty: tty}
}

func (p *progressSink) Progress(indexed, total int) {
	if !p.started {
		p.started = true
		fmt.Fprintf(p.w, "Indexing %d files...\n", total)
	}
	p.indexed = indexed
	if indexed%progressEvery != 0 && indexed != total {
		return
	}
	if p.tty {
		fmt.Fprintf(p.w, "\rIndexing %d/%d...", indexed, total)
	} else {
		fmt.Fprintf(p.w, "Indexing %d/%d...\n", indexed, total)
	}
}

func (p *progressSink) NeedsReload() {}

func (p *progressSink) Done(int) {
	if !p.started {
		return
	}
	if p.tty {
		fmt.Fprintln(p.w)
	}
	fmt.Fprintf(p.w, "Processed %d file(s).\n", p.indexed)
}
