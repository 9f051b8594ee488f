// Package ranker picks the messages of a session that best explain why it
// matched a query, optionally widened with surrounding context.
package ranker

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/asheshgoplani/recall/internal/session"
)

// DefaultLimit is how many top messages are kept per session.
const DefaultLimit = 5

// Scored is a message position with its term score.
type Scored struct {
	Index int
	Score int
}

// Options control Extract.
type Options struct {
	Context int // messages kept on each side of a match
	Limit   int // top matches kept; 0 means DefaultLimit, negative means all
}

// Extracted is a message together with its position in the session.
type Extracted struct {
	Index   int
	Message session.Message
}

// Terms case-folds the query and splits it on whitespace.
func Terms(query string) []string {
	return strings.Fields(cases.Fold().String(query))
}

// Score sums how often each term occurs in content, case-insensitively.
func Score(content string, terms []string) int {
	if len(terms) == 0 {
		return 0
	}
	folded := cases.Fold().String(content)
	total := 0
	for _, t := range terms {
		total += strings.Count(folded, t)
	}
	return total
}

// Rank scores every message and returns those with a non-zero score, best
// first. Equal scores favor the later message.
func Rank(messages []session.Message, terms []string) []Scored {
	var out []Scored
	for i, m := range messages {
		if s := Score(m.Content, terms); s > 0 {
			out = append(out, Scored{Index: i, Score: s})
		}
	}
	slices.SortFunc(out, func(a, b Scored) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return b.Index - a.Index
	})
	return out
}

// Extract returns the messages most relevant to query. Without context they
// come in rank order; with context each match is widened to its neighbors
// and the union is returned in conversation order.
func Extract(messages []session.Message, query string, opts Options) []Extracted {
	ranked := Rank(messages, Terms(query))

	limit := opts.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	if opts.Context <= 0 {
		out := make([]Extracted, len(ranked))
		for i, r := range ranked {
			out[i] = Extracted{Index: r.Index, Message: messages[r.Index]}
		}
		return out
	}

	keep := make([]bool, len(messages))
	for _, r := range ranked {
		lo := max(r.Index-opts.Context, 0)
		hi := min(r.Index+opts.Context, len(messages)-1)
		for i := lo; i <= hi; i++ {
			keep[i] = true
		}
	}
	var out []Extracted
	for i, k := range keep {
		if k {
			out = append(out, Extracted{Index: i, Message: messages[i]})
		}
	}
	return out
}

// Messages drops the positions from extracted.
func Messages(extracted []Extracted) []session.Message {
	out := make([]session.Message, len(extracted))
	for i, e := range extracted {
		out[i] = e.Message
	}
	return out
}
