package parser

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/recall/internal/session"
)

func TestParseClaudeTranscript(t *testing.T) {
	path := writeLines(t, filepath.Join(t.TempDir(), "proj", "abc.jsonl"),
		`{"type":"summary","summary":"Fix flaky login test"}`,
		`{"type":"user","sessionId":"sess-1","cwd":"/work/api","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"why does login fail?"}}`,
		`{"type":"assistant","sessionId":"sess-1","timestamp":"2025-06-01T10:00:05Z","message":{"role":"assistant","content":[{"type":"thinking","thinking":"hmm"},{"type":"text","text":"Let me look."},{"type":"tool_use","name":"Read","input":{"file_path":"/x"}}]}}`,
		`{"type":"user","sessionId":"sess-1","timestamp":"2025-06-01T10:00:06Z","message":{"role":"user","content":[{"type":"tool_result","content":"file body"}]}}`,
		`{"type":"assistant","sessionId":"sess-1","timestamp":"2025-06-01T10:00:09Z","message":{"role":"assistant","content":[{"type":"text","text":"The token expires early."}]}}`,
		`{"type":"user","sessionId":"sess-1","isMeta":true,"timestamp":"2025-06-01T10:00:10Z","message":{"role":"user","content":"<local-command-caveat>ignore</local-command-caveat>"}}`,
		`{"type":"user","sessionId":"sess-1","timestamp":"2025-06-01T10:01:00Z","message":{"role":"user","content":"<command-name>/clear</command-name>"}}`,
		`{"type":"user","sessionId":"sess-1","timestamp":"2025-06-01T10:02:00Z","message":{"role":"user","content":[{"type":"text","text":"thanks"}]}}`,
	)

	s, err := ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, session.SourceClaude, s.Source)
	assert.Equal(t, "/work/api", s.CWD)
	assert.Equal(t, "Fix flaky login test", s.Summary)
	assert.Equal(t, path, s.FilePath)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 2, 0, 0, time.UTC), s.Timestamp)

	require.Len(t, s.Messages, 3)
	assert.Equal(t, session.RoleUser, s.Messages[0].Role)
	assert.Equal(t, "why does login fail?", s.Messages[0].Content)
	assert.Equal(t, session.RoleAssistant, s.Messages[1].Role)
	assert.Equal(t, "Let me look.\nThe token expires early.", s.Messages[1].Content)
	assert.Equal(t, "thanks", s.Messages[2].Content)
}

func TestParseClaudeFallsBackToFileStemAndFirstUserMessage(t *testing.T) {
	path := writeLines(t, filepath.Join(t.TempDir(), "d41d8cd9.jsonl"),
		`{"type":"user","message":{"role":"user","content":"  refactor   the\nparser  "}}`,
	)
	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	setMtime(t, path, mtime)

	s, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "d41d8cd9", s.ID)
	assert.Equal(t, "refactor the parser", s.Summary)
	assert.True(t, s.Timestamp.Equal(mtime), "timestamp should fall back to mtime, got %v", s.Timestamp)
}

func TestParseCodexRollout(t *testing.T) {
	name := "rollout-2025-05-04T09-00-00-0196a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b.jsonl"
	path := writeLines(t, filepath.Join(t.TempDir(), "2025", "05", "04", name),
		`{"timestamp":"2025-05-04T09:00:00Z","type":"session_meta","payload":{"id":"0196a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b","cwd":"/src/cli","timestamp":"2025-05-04T09:00:00Z"}}`,
		`{"timestamp":"2025-05-04T09:00:01Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"<environment_context>cwd</environment_context>"}]}}`,
		`{"timestamp":"2025-05-04T09:00:02Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"add a --json flag"}]}}`,
		`{"timestamp":"2025-05-04T09:00:03Z","type":"response_item","payload":{"type":"reasoning","summary":[]}}`,
		`{"timestamp":"2025-05-04T09:00:04Z","type":"response_item","payload":{"type":"message","role":"assistant","content":[{"type":"output_text","text":"Adding it."}]}}`,
		`{"timestamp":"2025-05-04T09:00:05Z","type":"response_item","payload":{"type":"message","role":"assistant","content":[{"type":"output_text","text":"Done."}]}}`,
		`{"timestamp":"2025-05-04T09:00:06Z","type":"event_msg","payload":{"type":"token_count"}}`,
	)

	s, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, session.SourceCodex, s.Source)
	assert.Equal(t, "0196a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b", s.ID)
	assert.Equal(t, "/src/cli", s.CWD)
	assert.Equal(t, "add a --json flag", s.Summary)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "Adding it.\nDone.", s.Messages[1].Content)
	assert.Equal(t, time.Date(2025, 5, 4, 9, 0, 6, 0, time.UTC), s.Timestamp)
}

func TestIDFromStem(t *testing.T) {
	tests := []struct {
		stem   string
		format session.Source
		want   string
	}{
		{"rollout-2025-05-04T09-00-00-0196a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b", session.SourceCodex, "0196a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b"},
		{"short", session.SourceCodex, "short"},
		{"0196a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b", session.SourceClaude, "0196a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, idFromStem(tt.stem, tt.format), tt.stem)
	}
}

func TestParseEmptyFileIsValidAndEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	s, err := ParseFile(path)
	require.NoError(t, err)
	assert.Empty(t, s.Messages)
	assert.Equal(t, "empty", s.ID)
}

func TestParseSkipsMalformedMiddleLines(t *testing.T) {
	path := writeLines(t, filepath.Join(t.TempDir(), "m.jsonl"),
		`{"type":"user","message":{"role":"user","content":"first"}}`,
		`{not json`,
		`{"type":"user","message":{"role":"user","content":"second"}}`,
	)

	s, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
}

func TestParseIncompleteFinalLineIsParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.jsonl")
	content := `{"type":"user","message":{"role":"user","content":"first"}}` + "\n" + `{"type":"assistant","mess`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := ParseFile(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrParse))

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
}

func TestParseGarbageFileIsParseError(t *testing.T) {
	path := writeLines(t, filepath.Join(t.TempDir(), "garbage.jsonl"), "not json", "still not json")

	_, err := ParseFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrParse)
	assert.ErrorIs(t, err, errNoRecords)
}

func TestParseMissingFile(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "gone.jsonl"))
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrParse)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestSummarizeTruncates(t *testing.T) {
	long := ""
	for range 30 {
		long += "word "
	}
	got := summarize(long)
	assert.Equal(t, summaryMaxRunes, len([]rune(got)))
	assert.True(t, len(got) > 3 && got[len(got)-3:] == "...")
}
