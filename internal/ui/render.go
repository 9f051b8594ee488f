package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/recall/internal/app"
	"github.com/asheshgoplani/recall/internal/session"
)

const (
	// collapsedLines is how much of a long message the preview shows until
	// it is expanded.
	collapsedLines = 6
	minListWidth   = 24
	timeColWidth   = 8
)

// layout is where each region sits on screen. Both panes have a rounded
// border and one cell of horizontal padding.
type layout struct {
	listOuter    int
	previewOuter int
	listW        int // content width inside the list pane
	previewW     int
	previewX     int // screen column of the first preview content cell
	bodyY        int // screen row of the first content row of both panes
	bodyH        int
}

func computeLayout(width, height int) layout {
	listOuter := width * 35 / 100
	if listOuter < minListWidth {
		listOuter = min(minListWidth, width)
	}
	previewOuter := max(width-listOuter, 0)
	return layout{
		listOuter:    listOuter,
		previewOuter: previewOuter,
		listW:        max(listOuter-4, 1),
		previewW:     max(previewOuter-4, 1),
		previewX:     listOuter + 2,
		bodyY:        2, // header row, then the top border
		bodyH:        max(height-4, 1),
	}
}

func (l layout) inList(x, y int) bool {
	return x < l.listOuter && y >= l.bodyY && y < l.bodyY+l.bodyH
}

func (l layout) inPreview(x int) bool {
	return x >= l.listOuter
}

// wrapText breaks text into lines no wider than width cells, on word
// boundaries where possible.
func wrapText(text string, width int) []string {
	width = max(width, 1)
	var out []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\t", "    "), "\n") {
		para = strings.TrimRight(para, " \r")
		if runewidth.StringWidth(para) <= width {
			out = append(out, para)
			continue
		}

		var line strings.Builder
		lineW := 0
		flush := func() {
			if lineW > 0 {
				out = append(out, line.String())
				line.Reset()
				lineW = 0
			}
		}
		for _, word := range strings.Fields(para) {
			ww := runewidth.StringWidth(word)
			for ww > width {
				flush()
				head := runewidth.Truncate(word, width, "")
				if head == "" {
					_, size := utf8.DecodeRuneInString(word)
					head = word[:size]
				}
				out = append(out, head)
				word = word[len(head):]
				ww = runewidth.StringWidth(word)
			}
			switch {
			case ww == 0:
			case lineW == 0:
				line.WriteString(word)
				lineW = ww
			case lineW+1+ww <= width:
				line.WriteByte(' ')
				line.WriteString(word)
				lineW += 1 + ww
			default:
				flush()
				line.WriteString(word)
				lineW = ww
			}
		}
		flush()
	}
	return out
}

// oneLine flattens s and truncates it to width cells.
func oneLine(s string, width int) string {
	return runewidth.Truncate(strings.Join(strings.Fields(s), " "), max(width, 0), "…")
}

// highlight marks every case-insensitive occurrence of any term in text.
func highlight(text string, terms []string) string {
	if text == "" || len(terms) == 0 {
		return text
	}
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		return text
	}

	type span struct{ start, end int }
	var spans []span
	for _, term := range terms {
		term = strings.ToLower(term)
		if term == "" {
			continue
		}
		for from := 0; ; {
			i := strings.Index(lower[from:], term)
			if i < 0 {
				break
			}
			spans = append(spans, span{from + i, from + i + len(term)})
			from += i + len(term)
		}
	}
	if len(spans) == 0 {
		return text
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	last := 0
	for _, s := range spans {
		if s.end <= last {
			continue
		}
		start := max(s.start, last)
		b.WriteString(text[last:start])
		b.WriteString(MatchStyle.Render(text[start:s.end]))
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String()
}

// relativeTime formats t as "5m ago", "3d ago" and so on.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	case diff < 30*24*time.Hour:
		return fmt.Sprintf("%dw ago", int(diff.Hours()/(24*7)))
	default:
		return t.Local().Format("Jan 2")
	}
}

// renderList draws the visible window of result rows, exactly height lines.
func renderList(results []session.SearchResult, selected, scroll, width, height int, now time.Time, empty string) []string {
	lines := make([]string, 0, height)
	if len(results) == 0 {
		lines = append(lines, EmptyStyle.Render(oneLine(empty, width)))
	}
	for i := scroll; i < len(results) && len(lines) < height; i++ {
		r := results[i].Session
		title := r.Summary
		if title == "" {
			title = r.ID
		}
		when := runewidth.FillRight(relativeTime(r.Timestamp, now), timeColWidth)
		title = oneLine(title, width-timeColWidth-8)

		if i == selected {
			row := runewidth.FillRight(when+" "+string(r.Source)+" "+title, width)
			lines = append(lines, RowSelectedStyle.Render(row))
			continue
		}
		lines = append(lines, TimestampStyle.Render(when)+" "+SourceTag(r.Source)+" "+RowStyle.Render(title))
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return lines
}

// previewDoc is the full, unscrolled preview of one session.
type previewDoc struct {
	lines    []string
	ranges   []app.LineRange
	messages int
}

type previewInput struct {
	result   session.SearchResult
	session  *session.Session
	err      error
	width    int
	focused  int
	expanded func(int) bool
	terms    []string
}

func roleLabel(m session.Message, src session.Source) string {
	if m.Role == session.RoleUser {
		return "You"
	}
	if src == session.SourceCodex {
		return "Codex"
	}
	return "Claude"
}

// renderPreview lays out the selected session's messages and records which
// lines each one occupies. A blank line separates messages and belongs to
// none of them.
func renderPreview(in previewInput) previewDoc {
	var doc previewDoc
	add := func(s string) { doc.lines = append(doc.lines, s) }

	r := in.result.Session
	add(PreviewMetaStyle.Render(oneLine("📁 "+r.CWD, in.width)))
	meta := r.ID + " · " + string(r.Source)
	if !r.Timestamp.IsZero() {
		meta += " · " + r.Timestamp.Local().Format("2006-01-02 15:04")
	}
	add(PreviewMetaStyle.Render(oneLine(meta, in.width)))
	add(DimStyle.Render(oneLine("↩ "+session.ResumeCommandLine(r.Source, r.ID), in.width)))
	add("")

	if in.session == nil {
		msg := "(no messages)"
		if in.err != nil {
			msg = "(preview unavailable: " + in.err.Error() + ")"
		}
		for _, l := range wrapText(msg, in.width) {
			add(EmptyStyle.Render(l))
		}
		return doc
	}

	doc.messages = len(in.session.Messages)
	bodyW := max(in.width-2, 1)
	for i, m := range in.session.Messages {
		start := len(doc.lines)
		focused := i == in.focused
		bar := "  "
		if focused {
			bar = FocusBarStyle.Render("┃ ")
		}

		label := roleLabel(m, in.session.Source)
		if !m.Timestamp.IsZero() {
			label += " · " + m.Timestamp.Local().Format("15:04")
		}
		switch {
		case focused:
			add(bar + FocusHeaderStyle.Render(" "+label+" "))
		case m.Role == session.RoleUser:
			add(bar + UserHeaderStyle.Render(label))
		default:
			add(bar + AssistantHeaderStyle.Render(label))
		}

		body := wrapText(m.Content, bodyW)
		hidden := 0
		if len(body) > collapsedLines && !in.expanded(i) {
			hidden = len(body) - collapsedLines
			body = body[:collapsedLines]
		}
		for _, l := range body {
			add(bar + highlight(l, in.terms))
		}
		if hidden > 0 {
			add(bar + MoreLinesStyle.Render(fmt.Sprintf("… %d more lines (^o to expand)", hidden)))
		}

		doc.ranges = append(doc.ranges, app.LineRange{Start: start, End: len(doc.lines)})
		add("")
	}
	return doc
}

// window returns exactly height lines of doc starting at scroll.
func window(lines []string, scroll, height int) []string {
	out := make([]string, 0, height)
	for i := scroll; i < len(lines) && len(out) < height; i++ {
		out = append(out, lines[i])
	}
	for len(out) < height {
		out = append(out, "")
	}
	return out
}
