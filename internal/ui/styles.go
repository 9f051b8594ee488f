package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/asheshgoplani/recall/internal/session"
)

// Theme represents the current color scheme
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

var currentTheme = ThemeDark

type palette struct {
	Bg, Surface, Border, Text, TextDim  lipgloss.Color
	Accent, Purple, Cyan, Green, Yellow lipgloss.Color
	Orange, Red, Comment                lipgloss.Color
}

// Dark Theme - Tokyo Night
var darkColors = palette{
	Bg:      lipgloss.Color("#1a1b26"),
	Surface: lipgloss.Color("#24283b"),
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Purple:  lipgloss.Color("#bb9af7"),
	Cyan:    lipgloss.Color("#7dcfff"),
	Green:   lipgloss.Color("#9ece6a"),
	Yellow:  lipgloss.Color("#e0af68"),
	Orange:  lipgloss.Color("#ff9e64"),
	Red:     lipgloss.Color("#f7768e"),
	Comment: lipgloss.Color("#787fa0"),
}

// Light Theme - Tokyo Night Light variant
var lightColors = palette{
	Bg:      lipgloss.Color("#d5d6db"),
	Surface: lipgloss.Color("#e9e9ec"),
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Purple:  lipgloss.Color("#7847bd"),
	Cyan:    lipgloss.Color("#166775"),
	Green:   lipgloss.Color("#485e30"),
	Yellow:  lipgloss.Color("#8f5e15"),
	Orange:  lipgloss.Color("#965027"),
	Red:     lipgloss.Color("#8c4351"),
	Comment: lipgloss.Color("#6a6d7c"),
}

// colors is the active palette (set by InitTheme)
var colors palette

var themeMu sync.Mutex

// InitTheme sets the active palette. Must be called before rendering.
func InitTheme(theme string) {
	themeMu.Lock()
	defer themeMu.Unlock()
	if theme == string(ThemeLight) {
		currentTheme = ThemeLight
		colors = lightColors
	} else {
		currentTheme = ThemeDark
		colors = darkColors
	}
	initStyles()
}

// GetCurrentTheme returns the active theme
func GetCurrentTheme() Theme {
	return currentTheme
}

func init() {
	InitTheme(string(ThemeDark))
}

var (
	ListPaneStyle    lipgloss.Style
	PreviewPaneStyle lipgloss.Style

	SearchPromptStyle lipgloss.Style
	ScopeStyle        lipgloss.Style
	CountStyle        lipgloss.Style

	RowStyle         lipgloss.Style
	RowSelectedStyle lipgloss.Style
	TimestampStyle   lipgloss.Style
	DimStyle         lipgloss.Style
	EmptyStyle       lipgloss.Style

	PreviewMetaStyle     lipgloss.Style
	UserHeaderStyle      lipgloss.Style
	AssistantHeaderStyle lipgloss.Style
	FocusHeaderStyle     lipgloss.Style
	FocusBarStyle        lipgloss.Style
	MoreLinesStyle       lipgloss.Style
	MatchStyle           lipgloss.Style

	StatusStyle  lipgloss.Style
	NoticeStyle  lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
	SpinnerStyle lipgloss.Style
)

func initStyles() {
	ListPaneStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colors.Accent).
		Padding(0, 1)
	PreviewPaneStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colors.Cyan).
		Padding(0, 1)

	SearchPromptStyle = lipgloss.NewStyle().Foreground(colors.Cyan).Bold(true)
	ScopeStyle = lipgloss.NewStyle().Foreground(colors.Purple)
	CountStyle = lipgloss.NewStyle().Foreground(colors.Comment)

	RowStyle = lipgloss.NewStyle().Foreground(colors.Text)
	RowSelectedStyle = lipgloss.NewStyle().
		Foreground(colors.Bg).
		Background(colors.Accent).
		Bold(true)
	TimestampStyle = lipgloss.NewStyle().Foreground(colors.Comment)
	DimStyle = lipgloss.NewStyle().Foreground(colors.TextDim)
	EmptyStyle = lipgloss.NewStyle().Foreground(colors.Comment).Italic(true)

	PreviewMetaStyle = lipgloss.NewStyle().Foreground(colors.Comment)
	UserHeaderStyle = lipgloss.NewStyle().Foreground(colors.Green).Bold(true)
	AssistantHeaderStyle = lipgloss.NewStyle().Foreground(colors.Cyan).Bold(true)
	FocusHeaderStyle = lipgloss.NewStyle().
		Foreground(colors.Bg).
		Background(colors.Accent).
		Bold(true)
	FocusBarStyle = lipgloss.NewStyle().Foreground(colors.Accent)
	MoreLinesStyle = lipgloss.NewStyle().Foreground(colors.Comment).Italic(true)
	MatchStyle = lipgloss.NewStyle().
		Background(colors.Yellow).
		Foreground(colors.Bg).
		Bold(true)

	StatusStyle = lipgloss.NewStyle().Foreground(colors.Yellow)
	NoticeStyle = lipgloss.NewStyle().Foreground(colors.Green)
	ErrorStyle = lipgloss.NewStyle().Foreground(colors.Red).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(colors.Orange)
	SpinnerStyle = lipgloss.NewStyle().Foreground(colors.Accent)
}

// SourceTag renders the short colored label for a transcript's tool.
func SourceTag(src session.Source) string {
	switch src {
	case session.SourceCodex:
		return lipgloss.NewStyle().Foreground(colors.Green).Render("codex ")
	default:
		return lipgloss.NewStyle().Foreground(colors.Orange).Render("claude")
	}
}
