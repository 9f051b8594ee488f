package parser

import (
	"encoding/json"
	"strings"

	"github.com/asheshgoplani/recall/internal/session"
)

// claudeRecord is one line of a Claude Code transcript
// (~/.claude/projects/<project>/<session>.jsonl).
type claudeRecord struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	CWD       string `json:"cwd"`
	Timestamp string `json:"timestamp"`
	Summary   string `json:"summary"`
	IsMeta    bool   `json:"isMeta"`
	Message   struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type claudeBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (b *builder) claudeLine(raw []byte) error {
	var rec claudeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return err
	}

	if rec.SessionID != "" && b.id == "" {
		b.id = rec.SessionID
	}
	if rec.CWD != "" && b.cwd == "" {
		b.cwd = rec.CWD
	}
	ts := parseTimestamp(rec.Timestamp)
	b.observe(ts)

	switch rec.Type {
	case "summary":
		if b.summary == "" {
			b.summary = summarize(rec.Summary)
		}
	case "user":
		if rec.IsMeta {
			return nil
		}
		if text := claudeText(rec.Message.Content); text != "" {
			b.appendMessage(session.RoleUser, text, ts)
		}
	case "assistant":
		if text := claudeText(rec.Message.Content); text != "" {
			b.appendMessage(session.RoleAssistant, text, ts)
		}
	}
	return nil
}

// claudeText extracts the human-visible text of a message. Content is either
// a plain string or a list of blocks; tool calls, tool results and thinking
// blocks are dropped, as is text injected by the harness.
func claudeText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if isClaudeSystemContent(str) {
			return ""
		}
		return strings.TrimSpace(str)
	}

	var blocks []claudeBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var texts []string
	for _, blk := range blocks {
		if blk.Type != "text" {
			continue
		}
		text := strings.TrimSpace(blk.Text)
		if text == "" || isClaudeSystemContent(text) {
			continue
		}
		texts = append(texts, text)
	}
	return strings.Join(texts, "\n")
}

func isClaudeSystemContent(text string) bool {
	return strings.HasPrefix(text, "<local-command-") ||
		strings.HasPrefix(text, "<command-name>") ||
		strings.HasPrefix(text, "<command-message>") ||
		strings.Contains(text, "<system-reminder>") ||
		strings.HasPrefix(text, "<environment_context>")
}
