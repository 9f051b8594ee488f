// Package app holds the interactive search state: the query being edited,
// the result list, the preview focus and the indexing status. It knows
// nothing about terminals; internal/ui renders it and feeds it input.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sahilm/fuzzy"

	"github.com/asheshgoplani/recall/internal/indexer"
	"github.com/asheshgoplani/recall/internal/logging"
	"github.com/asheshgoplani/recall/internal/parser"
	"github.com/asheshgoplani/recall/internal/session"
)

var searchLog = logging.ForComponent(logging.CompSearch)

const (
	DefaultDebounce = 50 * time.Millisecond
	DefaultLimit    = 50

	fuzzyPool        = 200
	previewCacheSize = 32
	scopePathMax     = 25

	StatusIndexError = "Index error • Ctrl+C for details"
)

// Index is the read side of the session index.
type Index interface {
	Search(query string, limit int) ([]session.SearchResult, error)
	Recent(limit int) ([]session.SearchResult, error)
	Reload() error
}

// Rect is a screen region in cells.
type Rect struct {
	X, Y, W, H int
}

func (r Rect) contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// LineRange is the half-open span of preview lines a message occupies.
type LineRange struct {
	Start, End int
}

// Options configure an Orchestrator. Zero values take defaults.
type Options struct {
	LaunchCWD     string
	Home          string
	InitialQuery  string
	FolderScope   bool
	Debounce      time.Duration
	Limit         int
	FuzzyFallback bool
	Clock         func() time.Time
	Parse         func(path string) (*session.Session, error)
}

// Orchestrator is the search screen's state machine.
type Orchestrator struct {
	index Index
	opts  Options

	query     []rune
	cursor    int
	pending   bool
	lastInput time.Time

	results    []session.SearchResult
	selected   int
	listScroll int
	fuzzyHits  bool

	folderScope bool

	previewScroll     int
	focused           int // -1 follows the matched message
	expanded          map[int]bool
	previewCount      int
	lineRanges        []LineRange
	previewArea       Rect
	pendingAutoScroll bool

	previews *lru.Cache[string, previewEntry]

	status        string
	totalSessions int
	indexing      bool
	indexErr      error
}

// New builds the orchestrator and runs the first search.
func New(idx Index, opts Options) *Orchestrator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Parse == nil {
		opts.Parse = parser.ParseFile
	}
	previews, _ := lru.New[string, previewEntry](previewCacheSize)

	o := &Orchestrator{
		index:       idx,
		opts:        opts,
		query:       []rune(opts.InitialQuery),
		folderScope: opts.FolderScope,
		focused:     -1,
		expanded:    make(map[int]bool),
		previews:    previews,
		lastInput:   opts.Clock(),
	}
	o.cursor = len(o.query)
	_ = o.Search()
	return o
}

// --- Query editing ---

// Query returns the current query text.
func (o *Orchestrator) Query() string { return string(o.query) }

// Cursor returns the cursor position in runes.
func (o *Orchestrator) Cursor() int { return o.cursor }

// InsertRune inserts r at the cursor.
func (o *Orchestrator) InsertRune(r rune) {
	o.InsertText(string(r))
}

// InsertText inserts s at the cursor, as typed or pasted.
func (o *Orchestrator) InsertText(s string) {
	rs := []rune(s)
	if len(rs) == 0 {
		return
	}
	q := make([]rune, 0, len(o.query)+len(rs))
	q = append(q, o.query[:o.cursor]...)
	q = append(q, rs...)
	q = append(q, o.query[o.cursor:]...)
	o.query = q
	o.cursor += len(rs)
	o.markPending()
}

// Backspace deletes the rune before the cursor.
func (o *Orchestrator) Backspace() {
	if o.cursor == 0 {
		return
	}
	o.query = append(o.query[:o.cursor-1], o.query[o.cursor:]...)
	o.cursor--
	o.markPending()
}

// Delete deletes the rune under the cursor.
func (o *Orchestrator) Delete() {
	if o.cursor >= len(o.query) {
		return
	}
	o.query = append(o.query[:o.cursor], o.query[o.cursor+1:]...)
	o.markPending()
}

// Clear empties the query.
func (o *Orchestrator) Clear() {
	if len(o.query) == 0 {
		return
	}
	o.query = o.query[:0]
	o.cursor = 0
	o.markPending()
}

// Escape clears a non-empty query. On an empty query it reports that the
// user wants to quit.
func (o *Orchestrator) Escape() (quit bool) {
	if len(o.query) == 0 {
		return true
	}
	o.Clear()
	return false
}

func (o *Orchestrator) CursorLeft() {
	if o.cursor > 0 {
		o.cursor--
	}
}

func (o *Orchestrator) CursorRight() {
	if o.cursor < len(o.query) {
		o.cursor++
	}
}

func (o *Orchestrator) CursorHome() { o.cursor = 0 }

func (o *Orchestrator) CursorEnd() { o.cursor = len(o.query) }

func (o *Orchestrator) markPending() {
	o.pending = true
	o.lastInput = o.opts.Clock()
}

// SearchPending reports whether an edit is waiting out the debounce.
func (o *Orchestrator) SearchPending() bool { return o.pending }

// Tick runs the pending search once input has been quiet for the debounce
// interval. It reports whether a search ran.
func (o *Orchestrator) Tick(now time.Time) bool {
	if !o.pending || now.Sub(o.lastInput) < o.opts.Debounce {
		return false
	}
	o.pending = false
	_ = o.Search()
	return true
}

// FlushPendingSearch runs a pending search immediately.
func (o *Orchestrator) FlushPendingSearch() {
	if o.pending {
		o.pending = false
		_ = o.Search()
	}
}

// --- Searching ---

// Search refreshes the results for the current query and scope, keeping the
// selected session selected when it is still present. On error the previous
// results stay and the error is returned for logging only.
func (o *Orchestrator) Search() error {
	var prevID string
	if r, ok := o.SelectedResult(); ok {
		prevID = r.Session.ID
	}

	q := string(o.query)
	var (
		results []session.SearchResult
		err     error
		fuzzed  bool
	)
	if q == "" {
		results, err = o.index.Recent(o.opts.Limit)
	} else {
		results, err = o.index.Search(q, o.opts.Limit)
		if err == nil && len(results) == 0 && o.opts.FuzzyFallback {
			results, err = o.fuzzySearch(q)
			fuzzed = true
		}
	}
	if err != nil {
		logging.Aggregate(logging.CompSearch, "search_failed")
		searchLog.Debug("search_failed", slog.String("query", q), slog.String("error", err.Error()))
		return err
	}

	if o.folderScope {
		kept := make([]session.SearchResult, 0, len(results))
		for _, r := range results {
			if r.Session.CWD == o.opts.LaunchCWD {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	o.results = results
	o.fuzzyHits = fuzzed && len(results) > 0
	o.selected, o.listScroll = 0, 0
	if prevID != "" {
		for i, r := range o.results {
			if r.Session.ID == prevID {
				o.selected, o.listScroll = i, i
				break
			}
		}
	}
	o.resetPreview()
	return nil
}

type fuzzySource []session.SearchResult

func (s fuzzySource) String(i int) string {
	return s[i].Session.Summary + " " + s[i].Session.CWD
}

func (s fuzzySource) Len() int { return len(s) }

// fuzzySearch matches the query loosely against recent session summaries,
// for typos the full-text engine cannot forgive.
func (o *Orchestrator) fuzzySearch(q string) ([]session.SearchResult, error) {
	pool, err := o.index.Recent(fuzzyPool)
	if err != nil {
		return nil, err
	}
	matches := fuzzy.FindFrom(q, fuzzySource(pool))
	out := make([]session.SearchResult, 0, min(len(matches), o.opts.Limit))
	for _, m := range matches {
		if len(out) == o.opts.Limit {
			break
		}
		r := pool[m.Index]
		r.Score = float64(m.Score)
		out = append(out, r)
	}
	return out, nil
}

// Results returns the displayed results.
func (o *Orchestrator) Results() []session.SearchResult { return o.results }

// FuzzyResults reports whether the displayed results came from the fuzzy
// fallback rather than the full-text engine.
func (o *Orchestrator) FuzzyResults() bool { return o.fuzzyHits }

// Selected returns the selected row.
func (o *Orchestrator) Selected() int { return o.selected }

// ListScroll returns the first visible row of the result list.
func (o *Orchestrator) ListScroll() int { return o.listScroll }

// SelectedResult returns the selected result, if any.
func (o *Orchestrator) SelectedResult() (session.SearchResult, bool) {
	if o.selected < 0 || o.selected >= len(o.results) {
		return session.SearchResult{}, false
	}
	return o.results[o.selected], true
}

// MoveUp selects the previous result.
func (o *Orchestrator) MoveUp() {
	if len(o.results) == 0 {
		return
	}
	if o.selected > 0 {
		o.selected--
	}
	o.resetPreview()
}

// MoveDown selects the next result.
func (o *Orchestrator) MoveDown() {
	if len(o.results) == 0 {
		return
	}
	if o.selected < len(o.results)-1 {
		o.selected++
	}
	o.resetPreview()
}

// Select jumps to row i, as from a mouse click on the list.
func (o *Orchestrator) Select(i int) bool {
	if i < 0 || i >= len(o.results) {
		return false
	}
	o.selected = i
	o.resetPreview()
	return true
}

// EnsureListVisible scrolls the list so the selection is on screen.
func (o *Orchestrator) EnsureListVisible(height int) {
	if height <= 0 {
		return
	}
	if o.selected < o.listScroll {
		o.listScroll = o.selected
	} else if o.selected >= o.listScroll+height {
		o.listScroll = o.selected - height + 1
	}
	if maxScroll := max(len(o.results)-height, 0); o.listScroll > maxScroll {
		o.listScroll = maxScroll
	}
}

// --- Scope ---

// InFolderScope reports whether results are limited to the launch folder.
func (o *Orchestrator) InFolderScope() bool { return o.folderScope }

// ToggleScope switches between the launch folder and everything, and
// searches again right away.
func (o *Orchestrator) ToggleScope() {
	o.folderScope = !o.folderScope
	o.pending = false
	_ = o.Search()
}

// ScopeDisplayPath returns a compact form of the folder scope for the
// header, or false when searching everything.
func (o *Orchestrator) ScopeDisplayPath() (string, bool) {
	if !o.folderScope {
		return "", false
	}
	path := o.opts.LaunchCWD
	display := path
	if home := o.opts.Home; home != "" && (path == home || strings.HasPrefix(path, home+string(filepath.Separator))) {
		display = "~" + path[len(home):]
	}
	if len(display) <= scopePathMax {
		return display, true
	}
	last := path
	if i := strings.LastIndexByte(path, filepath.Separator); i >= 0 {
		last = path[i+1:]
	}
	prefix := ""
	if strings.HasPrefix(display, "~") {
		prefix = "~"
	}
	return prefix + "/.../" + last, true
}

// --- Preview ---

// previewEntry is a parsed transcript or the error parsing it gave. Failures
// are cached too so an unreadable selection is not re-read every frame.
type previewEntry struct {
	s   *session.Session
	err error
}

func (o *Orchestrator) resetPreview() {
	o.pendingAutoScroll = true
	o.previewScroll = 0
	o.focused = -1
	clear(o.expanded)
	// A new selection retries transcripts that failed to parse.
	for _, path := range o.previews.Keys() {
		if e, ok := o.previews.Peek(path); ok && e.err != nil {
			o.previews.Remove(path)
		}
	}
}

// Preview returns the parsed transcript of the selected result.
func (o *Orchestrator) Preview() (*session.Session, error) {
	r, ok := o.SelectedResult()
	if !ok {
		return nil, nil
	}
	path := r.Session.FilePath
	if e, ok := o.previews.Get(path); ok {
		return e.s, e.err
	}
	s, err := o.opts.Parse(path)
	if err != nil {
		s = nil
	}
	o.previews.Add(path, previewEntry{s: s, err: err})
	return s, err
}

// SetPreviewLayout records where the renderer put the preview and which
// lines each message took, for focus navigation and mouse hit-testing.
func (o *Orchestrator) SetPreviewLayout(area Rect, ranges []LineRange, messageCount int) {
	o.previewArea = area
	o.lineRanges = ranges
	o.previewCount = messageCount
}

// PreviewScroll returns the first visible preview line.
func (o *Orchestrator) PreviewScroll() int { return o.previewScroll }

// SetPreviewScroll positions the preview, as the renderer does when it
// follows the focused message.
func (o *Orchestrator) SetPreviewScroll(line int) { o.previewScroll = max(line, 0) }

// ScrollPreview moves the preview by delta lines, stopping at the top.
func (o *Orchestrator) ScrollPreview(delta int) {
	o.previewScroll = max(o.previewScroll+delta, 0)
}

// TakeAutoScroll reports, once, that the preview should jump to the
// focused message.
func (o *Orchestrator) TakeAutoScroll() bool {
	v := o.pendingAutoScroll
	o.pendingAutoScroll = false
	return v
}

func (o *Orchestrator) matchedIndex() int {
	if r, ok := o.SelectedResult(); ok {
		return r.MatchedMessageIndex
	}
	return 0
}

// FocusedMessage is the message the preview highlights: the explicitly
// focused one, or else the one that matched the query.
func (o *Orchestrator) FocusedMessage() int {
	if o.focused >= 0 {
		return o.focused
	}
	return o.matchedIndex()
}

// HasExplicitFocus reports whether the user moved focus off the match.
func (o *Orchestrator) HasExplicitFocus() bool { return o.focused >= 0 }

// FocusPrev moves focus to the previous message.
func (o *Orchestrator) FocusPrev() {
	if o.previewCount == 0 {
		return
	}
	if cur := o.FocusedMessage(); cur > 0 {
		o.focused = cur - 1
		o.pendingAutoScroll = true
	}
}

// FocusNext moves focus to the next message.
func (o *Orchestrator) FocusNext() {
	if o.previewCount == 0 {
		return
	}
	if cur := o.FocusedMessage(); cur+1 < o.previewCount {
		o.focused = cur + 1
		o.pendingAutoScroll = true
	}
}

// ToggleExpansion shows the focused message in full, or truncates it again.
func (o *Orchestrator) ToggleExpansion() {
	if o.previewCount == 0 {
		return
	}
	i := o.FocusedMessage()
	if o.expanded[i] {
		delete(o.expanded, i)
	} else {
		o.expanded[i] = true
	}
}

// IsExpanded reports whether message i is shown in full.
func (o *Orchestrator) IsExpanded(i int) bool { return o.expanded[i] }

// ClickPreview focuses the message under screen cell (x, y). It reports
// whether a message was hit.
func (o *Orchestrator) ClickPreview(x, y int) bool {
	if !o.previewArea.contains(x, y) {
		return false
	}
	line := (y - o.previewArea.Y) + o.previewScroll
	for i, r := range o.lineRanges {
		if line >= r.Start && line < r.End {
			o.focused = i
			return true
		}
	}
	return false
}

// --- Actions ---

// CopyTarget returns the session id to put on the clipboard.
func (o *Orchestrator) CopyTarget() (string, bool) {
	r, ok := o.SelectedResult()
	if !ok {
		return "", false
	}
	return r.Session.ID, true
}

// ResumeTarget parses the selected transcript so it can be resumed.
func (o *Orchestrator) ResumeTarget() (*session.Session, error) {
	r, ok := o.SelectedResult()
	if !ok {
		return nil, fmt.Errorf("%w: nothing selected", session.ErrNotFound)
	}
	return o.opts.Parse(r.Session.FilePath)
}

// --- Indexing status ---

// BeginIndexing marks a background run as started.
func (o *Orchestrator) BeginIndexing() {
	o.indexing = true
}

// Indexing reports whether a background run is in flight.
func (o *Orchestrator) Indexing() bool { return o.indexing }

// Status is the status-line text; empty when idle.
func (o *Orchestrator) Status() string { return o.status }

// TotalSessions is the number of sessions the last run reported.
func (o *Orchestrator) TotalSessions() int { return o.totalSessions }

// IndexErr is the error that ended indexing, kept for printing on exit.
func (o *Orchestrator) IndexErr() error { return o.indexErr }

// IndexErrText is IndexErr as shown to the user.
func (o *Orchestrator) IndexErrText() string {
	switch {
	case o.indexErr == nil:
		return ""
	case errors.Is(o.indexErr, session.ErrCoordinator):
		return "Indexer stopped unexpectedly (possible crash)"
	default:
		return "Indexing failed: " + o.indexErr.Error()
	}
}

// ApplyIndexMessages folds a drained batch of indexer messages into the
// state. closed means the channel has been closed. It reports whether the
// caller should stop listening.
func (o *Orchestrator) ApplyIndexMessages(msgs []indexer.Msg, closed bool) (stop bool) {
	var reload bool
	for _, m := range msgs {
		switch m := m.(type) {
		case indexer.MsgProgress:
			o.status = fmt.Sprintf("Indexing %d/%d...", m.Indexed, m.Total)
			o.totalSessions = m.Indexed
		case indexer.MsgNeedsReload:
			reload = true
		case indexer.MsgDone:
			o.totalSessions = m.TotalSessions
			o.status = ""
			o.indexing = false
			stop, reload = true, true
		case indexer.MsgError:
			o.indexErr = m.Err
			o.status = StatusIndexError
			o.indexing = false
			stop = true
		}
	}

	if closed && o.indexing {
		o.indexErr = session.ErrCoordinator
		o.status = StatusIndexError
		o.indexing = false
		stop = true
	}

	if reload {
		o.previews.Purge()
		if err := o.index.Reload(); err != nil {
			searchLog.Warn("reload_failed", slog.String("error", err.Error()))
		}
		_ = o.Search()
	}
	return stop || closed
}
