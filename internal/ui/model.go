// Package ui is the interactive search screen. It renders an
// app.Orchestrator and translates terminal events into its operations.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/recall/internal/app"
	"github.com/asheshgoplani/recall/internal/clipboard"
	"github.com/asheshgoplani/recall/internal/indexer"
	"github.com/asheshgoplani/recall/internal/logging"
	"github.com/asheshgoplani/recall/internal/ranker"
	"github.com/asheshgoplani/recall/internal/session"
)

var uiLog = logging.ForComponent(logging.CompUI)

const (
	tickInterval   = 50 * time.Millisecond
	noticeDuration = 2 * time.Second
	pageLines      = 10
	wheelLines     = 3
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Starter launches a background indexing run; *indexer.Coordinator
// implements it.
type Starter interface {
	Start(ctx context.Context) <-chan indexer.Msg
}

// Options wire the model to the rest of the program.
type Options struct {
	Indexer Starter
	// Changes signals that transcripts changed on disk. May be nil.
	Changes <-chan struct{}
	// Warning is shown in the status line while nothing else is.
	Warning string
	// ThemeChanges carries OS dark mode switches. May be nil.
	ThemeChanges <-chan bool
	Now          func() time.Time
	Copy         func(text string) (string, error)
}

type tickMsg time.Time

type copyResultMsg struct {
	id     string
	method string
	err    error
}

// Model is the bubbletea model for the search screen.
type Model struct {
	ctx   context.Context
	o     *app.Orchestrator
	opts  Options
	keys  keyMap
	input textinput.Model
	help  help.Model

	width, height int
	layout        layout

	indexCh <-chan indexer.Msg
	rerun   bool

	frame       int
	notice      string
	noticeUntil time.Time

	preview []string
	resume  *session.Session
}

// NewModel builds the search screen around o.
func NewModel(ctx context.Context, o *app.Orchestrator, opts Options) *Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Copy == nil {
		opts.Copy = func(text string) (string, error) {
			res, err := clipboard.Copy(text, true)
			if err != nil {
				return "", err
			}
			return res.Method, nil
		}
	}

	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = "Search conversations..."
	ti.Cursor.SetMode(cursor.CursorStatic)
	ti.Focus()

	m := &Model{
		ctx:    ctx,
		o:      o,
		opts:   opts,
		keys:   defaultKeyMap(),
		input:  ti,
		help:   help.New(),
		width:  80,
		height: 24,
	}
	m.layout = computeLayout(m.width, m.height)
	m.applyTheme()
	m.syncInput()
	return m
}

// applyTheme restyles the widgets that keep their own copy of the palette.
func (m *Model) applyTheme() {
	m.help.Styles.ShortKey = lipgloss.NewStyle().Foreground(colors.Accent).Bold(true)
	m.help.Styles.ShortDesc = lipgloss.NewStyle().Foreground(colors.Comment)
	m.help.Styles.ShortSeparator = lipgloss.NewStyle().Foreground(colors.Border)
	m.input.PlaceholderStyle = lipgloss.NewStyle().Foreground(colors.Comment)
	m.input.TextStyle = lipgloss.NewStyle().Foreground(colors.Text)
}

// Resume returns the session the user chose to resume, if any, once the
// program has exited.
func (m *Model) Resume() *session.Session { return m.resume }

// Init starts the first indexing run and the tick loop.
func (m *Model) Init() tea.Cmd {
	m.startIndexing()
	m.refresh()
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) startIndexing() {
	if m.opts.Indexer == nil {
		return
	}
	m.indexCh = m.opts.Indexer.Start(m.ctx)
	m.o.BeginIndexing()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout = computeLayout(m.width, m.height)

	case tickMsg:
		m.frame++
		m.o.Tick(time.Time(msg))
		m.pollIndex()
		m.pollChanges()
		m.pollTheme()
		cmd = tick()

	case copyResultMsg:
		if msg.err != nil {
			uiLog.Warn("copy_failed", slog.String("error", msg.err.Error()))
			m.setNotice("Copy failed: " + msg.err.Error())
		} else {
			m.setNotice(fmt.Sprintf("Copied %s (%s)", msg.id, msg.method))
		}

	case tea.MouseMsg:
		m.handleMouse(msg)

	case tea.KeyMsg:
		cmd = m.handleKey(msg)
	}

	m.syncInput()
	m.refresh()
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	o := m.o
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Escape):
		if o.Escape() {
			return tea.Quit
		}
	case key.Matches(msg, m.keys.Resume):
		o.FlushPendingSearch()
		s, err := o.ResumeTarget()
		if err != nil {
			uiLog.Debug("resume_unavailable", slog.String("error", err.Error()))
			m.setNotice("Cannot resume: " + err.Error())
			return nil
		}
		m.resume = s
		return tea.Quit
	case key.Matches(msg, m.keys.Copy):
		o.FlushPendingSearch()
		id, ok := o.CopyTarget()
		if !ok {
			return nil
		}
		copyFn := m.opts.Copy
		return func() tea.Msg {
			method, err := copyFn(id)
			return copyResultMsg{id: id, method: method, err: err}
		}
	case key.Matches(msg, m.keys.Up):
		o.FlushPendingSearch()
		o.MoveUp()
	case key.Matches(msg, m.keys.Down):
		o.FlushPendingSearch()
		o.MoveDown()
	case key.Matches(msg, m.keys.FocusPrev):
		o.FocusPrev()
	case key.Matches(msg, m.keys.FocusNext):
		o.FocusNext()
	case key.Matches(msg, m.keys.Expand):
		o.ToggleExpansion()
	case key.Matches(msg, m.keys.PageUp):
		o.ScrollPreview(-pageLines)
	case key.Matches(msg, m.keys.PageDown):
		o.ScrollPreview(pageLines)
	case key.Matches(msg, m.keys.Scope):
		o.ToggleScope()
	case key.Matches(msg, m.keys.Left):
		o.CursorLeft()
	case key.Matches(msg, m.keys.Right):
		o.CursorRight()
	case key.Matches(msg, m.keys.Home):
		o.CursorHome()
	case key.Matches(msg, m.keys.End):
		o.CursorEnd()
	case key.Matches(msg, m.keys.Backspace):
		o.Backspace()
	case key.Matches(msg, m.keys.Delete):
		o.Delete()
	case key.Matches(msg, m.keys.ClearQuery):
		o.Clear()
	case msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace:
		o.InsertText(string(msg.Runes))
	}
	return nil
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	l := m.layout
	switch {
	case msg.Button == tea.MouseButtonWheelUp:
		if l.inPreview(msg.X) {
			m.o.ScrollPreview(-wheelLines)
		} else {
			m.o.MoveUp()
		}
	case msg.Button == tea.MouseButtonWheelDown:
		if l.inPreview(msg.X) {
			m.o.ScrollPreview(wheelLines)
		} else {
			m.o.MoveDown()
		}
	case msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
		if l.inList(msg.X, msg.Y) {
			m.o.Select(m.o.ListScroll() + msg.Y - l.bodyY)
			return
		}
		m.o.ClickPreview(msg.X, msg.Y)
	}
}

// pollIndex drains the coordinator channel without blocking.
func (m *Model) pollIndex() {
	if m.indexCh == nil {
		return
	}
	msgs, closed := indexer.Drain(m.indexCh)
	if len(msgs) == 0 && !closed {
		return
	}
	if !m.o.ApplyIndexMessages(msgs, closed) {
		return
	}
	m.indexCh = nil
	if m.rerun && m.o.IndexErr() == nil {
		m.rerun = false
		m.startIndexing()
	}
}

// pollChanges starts a new run when the watcher reports changes, or queues
// one behind the run in flight.
func (m *Model) pollChanges() {
	select {
	case <-m.opts.Changes:
	default:
		return
	}
	switch {
	case m.o.IndexErr() != nil:
	case m.indexCh != nil:
		m.rerun = true
	default:
		m.startIndexing()
	}
}

// pollTheme follows OS dark mode switches while the theme is "system".
func (m *Model) pollTheme() {
	select {
	case isDark := <-m.opts.ThemeChanges:
		InitTheme(themeFor(isDark))
		m.applyTheme()
		m.refresh()
		uiLog.Debug("theme_changed", slog.String("theme", string(GetCurrentTheme())))
	default:
	}
}

func (m *Model) setNotice(s string) {
	m.notice = s
	m.noticeUntil = m.opts.Now().Add(noticeDuration)
}

func (m *Model) syncInput() {
	m.input.SetValue(m.o.Query())
	m.input.SetCursor(m.o.Cursor())
}

// refresh recomputes the preview for the current state and hands its
// geometry back to the orchestrator for focus and hit-testing.
func (m *Model) refresh() {
	l := m.layout
	m.o.EnsureListVisible(l.bodyH)

	r, ok := m.o.SelectedResult()
	if !ok {
		m.o.SetPreviewLayout(app.Rect{}, nil, 0)
		m.preview = nil
		return
	}
	s, err := m.o.Preview()
	if err != nil {
		uiLog.Debug("preview_failed", slog.String("path", r.Session.FilePath), slog.String("error", err.Error()))
	}
	doc := renderPreview(previewInput{
		result:   r,
		session:  s,
		err:      err,
		width:    l.previewW,
		focused:  m.o.FocusedMessage(),
		expanded: m.o.IsExpanded,
		terms:    ranker.Terms(m.o.Query()),
	})
	m.o.SetPreviewLayout(app.Rect{X: l.previewX, Y: l.bodyY, W: l.previewW, H: l.bodyH}, doc.ranges, doc.messages)

	if m.o.TakeAutoScroll() {
		target := 0
		if f := m.o.FocusedMessage(); f < len(doc.ranges) {
			target = max(doc.ranges[f].Start-1, 0)
		}
		m.o.SetPreviewScroll(target)
	}
	if maxScroll := max(len(doc.lines)-l.bodyH, 0); m.o.PreviewScroll() > maxScroll {
		m.o.SetPreviewScroll(maxScroll)
	}
	m.preview = doc.lines
}

// View implements tea.Model.
func (m *Model) View() string {
	l := m.layout
	now := m.opts.Now()

	empty := "No results"
	switch {
	case m.o.Query() == "" && m.o.Indexing():
		empty = "Indexing sessions..."
	case m.o.Query() == "":
		empty = "No sessions found"
	}
	list := renderList(m.o.Results(), m.o.Selected(), m.o.ListScroll(), l.listW, l.bodyH, now, empty)

	var preview []string
	if m.preview == nil {
		preview = window([]string{EmptyStyle.Render("Select a result to preview")}, 0, l.bodyH)
	} else {
		preview = window(m.preview, m.o.PreviewScroll(), l.bodyH)
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		ListPaneStyle.Width(max(l.listOuter-2, 0)).Height(l.bodyH).Render(strings.Join(list, "\n")),
		PreviewPaneStyle.Width(max(l.previewOuter-2, 0)).Height(l.bodyH).Render(strings.Join(preview, "\n")),
	)
	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), body, m.footerView(now))
}

func (m *Model) headerView() string {
	scope := "everything"
	if p, ok := m.o.ScopeDisplayPath(); ok {
		scope = "📁 " + p
	}
	count := fmt.Sprintf("%d results", len(m.o.Results()))
	if m.o.FuzzyResults() {
		count += " (fuzzy)"
	}
	if n := m.o.TotalSessions(); n > 0 {
		count += fmt.Sprintf(" · %d sessions", n)
	}
	right := ScopeStyle.Render(scope) + CountStyle.Render("  "+count)
	rightW := lipgloss.Width(right)

	prompt := SearchPromptStyle.Render("🔍 ")
	m.input.Width = max(m.width-rightW-lipgloss.Width(prompt)-2, 1)
	left := prompt + m.input.View()
	gap := max(m.width-lipgloss.Width(left)-rightW, 1)
	return left + strings.Repeat(" ", gap) + right
}

func (m *Model) footerView(now time.Time) string {
	var status string
	switch {
	case m.o.Indexing():
		text := m.o.Status()
		if text == "" {
			text = "Indexing..."
		}
		status = SpinnerStyle.Render(spinnerFrames[m.frame%len(spinnerFrames)]) + " " + StatusStyle.Render(text)
	case m.o.IndexErr() != nil:
		status = ErrorStyle.Render(m.o.Status())
	case m.notice != "" && now.Before(m.noticeUntil):
		status = NoticeStyle.Render(m.notice)
	case m.opts.Warning != "":
		status = WarningStyle.Render(runewidth.Truncate(m.opts.Warning, max(m.width/2, 10), "…"))
	}

	m.help.Width = max(m.width-lipgloss.Width(status)-2, 0)
	helpView := m.help.View(m.keys)
	gap := max(m.width-lipgloss.Width(status)-lipgloss.Width(helpView), 1)
	return status + strings.Repeat(" ", gap) + helpView
}
