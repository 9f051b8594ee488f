package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asheshgoplani/recall/internal/session"
)

// ParseError reports a transcript that could not be turned into a Session.
// It matches session.ErrParse and also unwraps to the underlying cause.
type ParseError struct {
	Path string
	Line int // 1-based; 0 when the failure is not tied to a line
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{session.ErrParse, e.Err}
}

var (
	errPartialLine = errors.New("final line is incomplete (file still being written?)")
	errNoRecords   = errors.New("no valid records")
)

// codexRecordTypes are top-level record types only Codex writes.
var codexRecordTypes = map[string]bool{
	"session_meta":  true,
	"response_item": true,
	"event_msg":     true,
	"turn_context":  true,
}

// ParseFile reads one transcript. The format is detected from the first
// record, so files can live anywhere.
func ParseFile(path string) (*session.Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &ParseError{Path: abs, Err: err}
	}

	var b builder
	if err := readJSONL(abs, b.dispatch); err != nil {
		return nil, err
	}
	s := b.finish(abs, info.ModTime())
	return s, nil
}

// readJSONL calls fn for each non-blank line. Lines that fail to decode are
// skipped, except an unterminated last line, which means a writer is still
// appending and the file should be retried later.
func readJSONL(path string, fn func(raw []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	lineNo, valid, malformed := 0, 0, 0
	for {
		line, readErr := r.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			terminated := line[len(line)-1] == '\n'
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				if err := fn(trimmed); err != nil {
					if !terminated {
						return &ParseError{Path: path, Line: lineNo, Err: errPartialLine}
					}
					malformed++
				} else {
					valid++
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &ParseError{Path: path, Line: lineNo, Err: readErr}
		}
	}

	if valid == 0 && malformed > 0 {
		return &ParseError{Path: path, Err: errNoRecords}
	}
	if malformed > 0 {
		parserLog.Debug("malformed_lines_skipped", slog.String("path", path), slog.Int("count", malformed))
	}
	return nil
}

// builder accumulates messages from either format.
type builder struct {
	format   session.Source
	id       string
	cwd      string
	summary  string
	latest   time.Time
	messages []session.Message
}

func (b *builder) dispatch(raw []byte) error {
	if b.format == "" {
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return err
		}
		if codexRecordTypes[probe.Type] {
			b.format = session.SourceCodex
		} else {
			b.format = session.SourceClaude
		}
	}
	if b.format == session.SourceCodex {
		return b.codexLine(raw)
	}
	return b.claudeLine(raw)
}

func (b *builder) observe(ts time.Time) {
	if ts.After(b.latest) {
		b.latest = ts
	}
}

// appendMessage adds a message, folding consecutive assistant turns into one.
func (b *builder) appendMessage(role session.Role, text string, ts time.Time) {
	if role == session.RoleAssistant && len(b.messages) > 0 {
		prev := &b.messages[len(b.messages)-1]
		if prev.Role == session.RoleAssistant {
			prev.Content += "\n" + text
			return
		}
	}
	b.messages = append(b.messages, session.Message{Role: role, Content: text, Timestamp: ts})
}

func (b *builder) finish(path string, modTime time.Time) *session.Session {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id := b.id
	if id == "" {
		id = idFromStem(stem, b.format)
	}
	ts := b.latest
	if ts.IsZero() {
		ts = modTime
	}
	summary := b.summary
	if summary == "" {
		for _, m := range b.messages {
			if m.Role == session.RoleUser {
				summary = summarize(m.Content)
				break
			}
		}
	}
	source := b.format
	if source == "" {
		source = session.SourceClaude
	}
	return &session.Session{
		ID:        id,
		Source:    source,
		CWD:       b.cwd,
		Timestamp: ts.UTC(),
		FilePath:  path,
		Summary:   summary,
		Messages:  b.messages,
	}
}

// idFromStem recovers a session id from the file name. Codex names files
// rollout-<timestamp>-<uuid>.jsonl.
func idFromStem(stem string, format session.Source) string {
	const uuidLen = 36
	if format == session.SourceCodex && len(stem) > uuidLen {
		tail := stem[len(stem)-uuidLen:]
		if strings.Count(tail, "-") == 4 {
			return tail
		}
	}
	return stem
}

const summaryMaxRunes = 100

// summarize flattens text to one line of at most summaryMaxRunes runes.
func summarize(text string) string {
	line := strings.Join(strings.Fields(text), " ")
	runes := []rune(line)
	if len(runes) <= summaryMaxRunes {
		return line
	}
	return string(runes[:summaryMaxRunes-3]) + "..."
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
