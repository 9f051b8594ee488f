package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up, Down          key.Binding
	FocusPrev         key.Binding
	FocusNext         key.Binding
	Expand            key.Binding
	PageUp, PageDown  key.Binding
	Scope             key.Binding
	Resume            key.Binding
	Copy              key.Binding
	Left, Right       key.Binding
	Home, End         key.Binding
	Backspace, Delete key.Binding
	ClearQuery        key.Binding
	Escape            key.Binding
	Quit              key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("up", "ctrl+p"), key.WithHelp("↑↓", "select")),
		Down:       key.NewBinding(key.WithKeys("down", "ctrl+n")),
		FocusPrev:  key.NewBinding(key.WithKeys("shift+up", "alt+up"), key.WithHelp("⇧↑↓", "message")),
		FocusNext:  key.NewBinding(key.WithKeys("shift+down", "alt+down")),
		Expand:     key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("^o", "expand")),
		PageUp:     key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup/dn", "scroll")),
		PageDown:   key.NewBinding(key.WithKeys("pgdown")),
		Scope:      key.NewBinding(key.WithKeys("ctrl+f"), key.WithHelp("^f", "scope")),
		Resume:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "resume")),
		Copy:       key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "copy id")),
		Left:       key.NewBinding(key.WithKeys("left", "ctrl+b")),
		Right:      key.NewBinding(key.WithKeys("right")),
		Home:       key.NewBinding(key.WithKeys("home", "ctrl+a")),
		End:        key.NewBinding(key.WithKeys("end", "ctrl+e")),
		Backspace:  key.NewBinding(key.WithKeys("backspace", "ctrl+h")),
		Delete:     key.NewBinding(key.WithKeys("delete", "ctrl+d")),
		ClearQuery: key.NewBinding(key.WithKeys("ctrl+u")),
		Escape:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear/quit")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+c")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Resume, k.Copy, k.FocusPrev, k.Expand, k.PageUp, k.Scope, k.Escape}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
