package parser

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/asheshgoplani/recall/internal/session"
)

// codexRecord is one line of a Codex CLI rollout
// (~/.codex/sessions/YYYY/MM/DD/rollout-*.jsonl).
type codexRecord struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type codexMeta struct {
	ID        string `json:"id"`
	CWD       string `json:"cwd"`
	Timestamp string `json:"timestamp"`
}

type codexItem struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (b *builder) codexLine(raw []byte) error {
	var rec codexRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return err
	}
	ts := parseTimestamp(rec.Timestamp)
	b.observe(ts)

	switch rec.Type {
	case "session_meta":
		var meta codexMeta
		if err := json.Unmarshal(rec.Payload, &meta); err != nil {
			return err
		}
		if b.id == "" {
			b.id = meta.ID
		}
		if b.cwd == "" {
			b.cwd = meta.CWD
		}
		b.observe(parseTimestamp(meta.Timestamp))
	case "response_item":
		var item codexItem
		if err := json.Unmarshal(rec.Payload, &item); err != nil {
			return err
		}
		b.codexMessage(item, ts)
	}
	return nil
}

func (b *builder) codexMessage(item codexItem, ts time.Time) {
	if item.Type != "message" {
		return
	}
	var role session.Role
	switch item.Role {
	case "user":
		role = session.RoleUser
	case "assistant":
		role = session.RoleAssistant
	default:
		return
	}

	var texts []string
	for _, c := range item.Content {
		if c.Type != "input_text" && c.Type != "output_text" {
			continue
		}
		text := strings.TrimSpace(c.Text)
		if text == "" || (role == session.RoleUser && isCodexSystemContent(text)) {
			continue
		}
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return
	}
	b.appendMessage(role, strings.Join(texts, "\n"), ts)
}

// isCodexSystemContent matches the context blocks Codex sends as user turns.
func isCodexSystemContent(text string) bool {
	return strings.Contains(text, "<environment_context>") ||
		strings.Contains(text, "<user_instructions>") ||
		strings.Contains(text, "<permissions")
}
