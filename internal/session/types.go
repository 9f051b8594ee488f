package session

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies which assistant tool wrote a transcript.
type Source string

const (
	SourceClaude Source = "claude"
	SourceCodex  Source = "codex"
)

// ParseSource validates a user-supplied source name.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceClaude:
		return SourceClaude, nil
	case SourceCodex:
		return SourceCodex, nil
	}
	return "", fmt.Errorf("%w: unknown source %q (use claude or codex)", ErrInvalidInput, s)
}

// Role is the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a transcript. Its position within Session.Messages
// is its identity for navigation and expansion.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Session is a fully parsed transcript. Immutable once returned by the parser.
type Session struct {
	ID        string
	Source    Source
	CWD       string
	Timestamp time.Time
	FilePath  string
	Summary   string
	Messages  []Message
}

// ResumeCommand returns the program and arguments that reopen the session
// in its tool. The command is meant to run from Session.CWD.
func (s *Session) ResumeCommand() (string, []string) {
	return ResumeCommandFor(s.Source, s.ID)
}

// ResumeCommandFor builds the resume invocation for a source and id.
func ResumeCommandFor(src Source, id string) (string, []string) {
	switch src {
	case SourceCodex:
		return "codex", []string{"resume", id}
	default:
		return "claude", []string{"--resume", id}
	}
}

// ResumeCommandLine joins ResumeCommandFor into a single shell-ready line.
func ResumeCommandLine(src Source, id string) string {
	cmd, args := ResumeCommandFor(src, id)
	return strings.Join(append([]string{cmd}, args...), " ")
}

// ToSummary returns the index-level view of the session.
func (s *Session) ToSummary() SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Source:       s.Source,
		CWD:          s.CWD,
		Timestamp:    s.Timestamp,
		FilePath:     s.FilePath,
		Summary:      s.Summary,
		MessageCount: len(s.Messages),
	}
}

// SessionSummary is what the index stores about a session, enough to render
// a result row without reparsing the file.
type SessionSummary struct {
	ID           string
	Source       Source
	CWD          string
	Timestamp    time.Time
	FilePath     string
	Summary      string
	MessageCount int
}

// SearchResult is one row of a query. Results keep the order the engine
// returned them in.
type SearchResult struct {
	Session             SessionSummary
	MatchedMessageIndex int
	Score               float64
	Snippet             string
}
