package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/asheshgoplani/recall/internal/index"
	"github.com/asheshgoplani/recall/internal/parser"
	"github.com/asheshgoplani/recall/internal/ranker"
	"github.com/asheshgoplani/recall/internal/session"
)

// topMatches is how many messages each search result carries when no
// context is requested.
const topMatches = 5

type searchFlags struct {
	filterFlags
	sessionID string
	limit     int
	context   int
}

func searchCmd(c *cli) *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search conversations and print matches as JSON",
		Example: `  recall search "auth middleware" --since "1 week ago"
  recall search retry --source codex --context 1
  recall search "race condition" --session 5f1c2a9e-...`,
		Args: withInvalidInput(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.search(cmd.Context(), strings.Join(args, " "), f)
			if err != nil {
				return err
			}
			return c.output().Print(out)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.sessionID, "session", "", "Search inside one session and return every matching message")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 10, "Maximum number of sessions")
	cmd.Flags().IntVarP(&f.context, "context", "C", 0, "Messages of context around each match")
	return cmd
}

func (c *cli) search(ctx context.Context, query string, f searchFlags) (session.SearchOutput, error) {
	out := session.SearchOutput{Query: query, Results: []session.SearchResultOutput{}}
	if strings.TrimSpace(query) == "" {
		return out, fmt.Errorf("%w: query must not be empty", session.ErrInvalidInput)
	}
	if err := checkLimit("limit", f.limit); err != nil {
		return out, err
	}
	if err := checkLimit("context", f.context); err != nil {
		return out, err
	}
	filter, err := f.compile(c.clock())
	if err != nil {
		return out, err
	}

	idx, err := c.openIndex(ctx)
	if err != nil {
		return out, err
	}
	defer idx.Close()

	if f.sessionID != "" {
		r, err := searchInSession(idx, query, f.sessionID, f.context)
		if err != nil {
			return out, err
		}
		out.Results = append(out.Results, r)
		return out, nil
	}

	if f.limit == 0 {
		return out, nil
	}
	// Filters run after the engine, so fetch extra to still fill the limit.
	hits, err := idx.Search(query, f.limit*2)
	if err != nil {
		return out, err
	}
	for _, r := range filter.apply(hits, f.limit) {
		s, err := parser.ParseFile(r.Session.FilePath)
		if err != nil {
			cliLog.Debug("result_parse_failed",
				slog.String("path", r.Session.FilePath),
				slog.String("error", err.Error()))
			s = summaryOnly(r.Session)
		}
		extracted := ranker.Extract(s.Messages, query, ranker.Options{Context: f.context, Limit: topMatches})
		out.Results = append(out.Results, resultOutput(r.Session, ranker.Messages(extracted)))
	}
	return out, nil
}

// searchInSession returns every message of one session that matches query.
func searchInSession(idx *index.SessionIndex, query, id string, around int) (session.SearchResultOutput, error) {
	path, err := idx.GetByID(id)
	if err != nil {
		return session.SearchResultOutput{}, err
	}
	s, err := parser.ParseFile(path)
	if err != nil {
		return session.SearchResultOutput{}, err
	}
	extracted := ranker.Extract(s.Messages, query, ranker.Options{Context: around, Limit: -1})
	return resultOutput(s.ToSummary(), ranker.Messages(extracted)), nil
}

// summaryOnly stands in for a transcript that can no longer be parsed.
func summaryOnly(sum session.SessionSummary) *session.Session {
	return &session.Session{
		ID:        sum.ID,
		Source:    sum.Source,
		CWD:       sum.CWD,
		Timestamp: sum.Timestamp,
		FilePath:  sum.FilePath,
		Summary:   sum.Summary,
	}
}

func resultOutput(sum session.SessionSummary, msgs []session.Message) session.SearchResultOutput {
	if msgs == nil {
		msgs = []session.Message{}
	}
	return session.SearchResultOutput{
		SessionID:        sum.ID,
		Source:           sum.Source,
		CWD:              sum.CWD,
		Timestamp:        sum.Timestamp,
		RelevantMessages: msgs,
		ResumeCommand:    session.ResumeCommandLine(sum.Source, sum.ID),
	}
}
