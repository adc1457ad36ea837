package tui

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors of the login and registration screens. All
// colors are ANSI 256-color codes.
type Theme struct {
	NormalText       lipgloss.Color
	FaintText        lipgloss.Color
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	AccentForeground lipgloss.Color
	ErrorForeground  lipgloss.Color
	HelpText         lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText:       lipgloss.Color("252"),
	FaintText:        lipgloss.Color("243"),
	HeaderForeground: lipgloss.Color("75"),
	BorderColor:      lipgloss.Color("238"),
	AccentForeground: lipgloss.Color("114"),
	ErrorForeground:  lipgloss.Color("203"),
	HelpText:         lipgloss.Color("241"),
}

type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	faint   lipgloss.Style
	accent  lipgloss.Style
	help    lipgloss.Style
	modal   lipgloss.Style
	tableHd lipgloss.Style
}

func newStyles(theme Theme) styles {
	return styles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(theme.HeaderForeground),
		label:  lipgloss.NewStyle().Foreground(theme.NormalText),
		faint:  lipgloss.NewStyle().Foreground(theme.FaintText),
		accent: lipgloss.NewStyle().Bold(true).Foreground(theme.AccentForeground),
		help:   lipgloss.NewStyle().Foreground(theme.HelpText),
		modal: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.ErrorForeground).
			Padding(0, 1),
		tableHd: lipgloss.NewStyle().Bold(true).Foreground(theme.FaintText),
	}
}
