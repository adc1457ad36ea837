package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of both screens.
type KeyMap struct {
	Next     key.Binding
	Previous key.Binding
	Submit   key.Binding
	Dismiss  key.Binding
	Logout   key.Binding
	Quit     key.Binding

	// Filter keys only apply while the history pane has focus.
	FilterAll   key.Binding
	FilterToday key.Binding
	FilterWeek  key.Binding
	FilterMonth key.Binding
	FilterRange key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Next: key.NewBinding(
		key.WithKeys("tab", "down"),
		key.WithHelp("tab", "next field"),
	),
	Previous: key.NewBinding(
		key.WithKeys("shift+tab", "up"),
		key.WithHelp("S-tab", "previous field"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "submit"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("enter", "esc"),
		key.WithHelp("enter", "close"),
	),
	Logout: key.NewBinding(
		key.WithKeys("ctrl+o"),
		key.WithHelp("C-o", "log out"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "quit"),
	),
	FilterAll: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "all"),
	),
	FilterToday: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "today"),
	),
	FilterWeek: key.NewBinding(
		key.WithKeys("w"),
		key.WithHelp("w", "this week"),
	),
	FilterMonth: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "this month"),
	),
	FilterRange: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "range"),
	),
}
