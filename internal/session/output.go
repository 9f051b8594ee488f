package session

import "time"

// JSON documents emitted by the non-interactive subcommands.

// SearchOutput is the result of `recall search`.
type SearchOutput struct {
	Query   string               `json:"query"`
	Results []SearchResultOutput `json:"results"`
}

// SearchResultOutput is one session in a search response.
type SearchResultOutput struct {
	SessionID        string    `json:"session_id"`
	Source           Source    `json:"source"`
	CWD              string    `json:"cwd"`
	Timestamp        time.Time `json:"timestamp"`
	RelevantMessages []Message `json:"relevant_messages"`
	ResumeCommand    string    `json:"resume_command"`
}

// ListOutput is the result of `recall list`.
type ListOutput struct {
	Sessions []SummaryOutput `json:"sessions"`
}

// SummaryOutput is one session in a list response.
type SummaryOutput struct {
	SessionID     string    `json:"session_id"`
	Source        Source    `json:"source"`
	CWD           string    `json:"cwd"`
	Timestamp     time.Time `json:"timestamp"`
	Summary       string    `json:"summary"`
	MessageCount  int       `json:"message_count"`
	ResumeCommand string    `json:"resume_command"`
}

// ReadOutput is the result of `recall read`.
type ReadOutput struct {
	SessionID     string    `json:"session_id"`
	Source        Source    `json:"source"`
	CWD           string    `json:"cwd"`
	Timestamp     time.Time `json:"timestamp"`
	Messages      []Message `json:"messages"`
	ResumeCommand string    `json:"resume_command"`
}

// ToSummaryOutput converts an index summary for JSON output.
func (s SessionSummary) ToSummaryOutput() SummaryOutput {
	return SummaryOutput{
		SessionID:     s.ID,
		Source:        s.Source,
		CWD:           s.CWD,
		Timestamp:     s.Timestamp,
		Summary:       s.Summary,
		MessageCount:  s.MessageCount,
		ResumeCommand: ResumeCommandLine(s.Source, s.ID),
	}
}

// ToReadOutput converts a parsed session for `recall read`.
func (s *Session) ToReadOutput() ReadOutput {
	msgs := s.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	return ReadOutput{
		SessionID:     s.ID,
		Source:        s.Source,
		CWD:           s.CWD,
		Timestamp:     s.Timestamp,
		Messages:      msgs,
		ResumeCommand: ResumeCommandLine(s.Source, s.ID),
	}
}
