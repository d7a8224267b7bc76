// Package render formats collections, rows and formula expressions for the
// terminal. Every visual element references a lipgloss.Style held in a Theme
// so the look can be swapped from config.
package render

import "github.com/charmbracelet/lipgloss"

// Theme holds lipgloss.Style values for every element the CLI prints.
type Theme struct {
	Name string

	// Tables
	Border lipgloss.Style
	Header lipgloss.Style
	Cell   lipgloss.Style
	Null   lipgloss.Style
	Title  lipgloss.Style

	// Formula syntax highlighting
	Keyword    lipgloss.Style
	String     lipgloss.Style
	Number     lipgloss.Style
	Operator   lipgloss.Style
	Function   lipgloss.Style
	Identifier lipgloss.Style

	// General
	ErrorText   lipgloss.Style
	SuccessText lipgloss.Style
	MutedText   lipgloss.Style
}

// newDefaultTheme builds the Default dark theme.
func newDefaultTheme() *Theme {
	return &Theme{
		Name: "default",

		Border: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3C3C3C")),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#569CD6")).
			Padding(0, 1),
		Cell: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D4D4D4")).
			Padding(0, 1),
		Null: lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("#808080")),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#DCDCAA")),

		Keyword: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#569CD6")),
		String: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CE9178")),
		Number: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#B5CEA8")),
		Operator: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D4D4D4")),
		Function: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#DCDCAA")),
		Identifier: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CDCFE")),

		ErrorText: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F44747")),
		SuccessText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6A9955")),
		MutedText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#808080")),
	}
}

// newLightTheme builds a light theme for bright terminals.
func newLightTheme() *Theme {
	return &Theme{
		Name: "light",

		Border: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D4D4D4")),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0451A5")).
			Padding(0, 1),
		Cell: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1E1E1E")).
			Padding(0, 1),
		Null: lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("#A0A0A0")),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#795E26")),

		Keyword: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0000FF")),
		String: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A31515")),
		Number: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#098658")),
		Operator: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1E1E1E")),
		Function: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#795E26")),
		Identifier: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#001080")),

		ErrorText: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#E51400")),
		SuccessText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#16825D")),
		MutedText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A0A0A0")),
	}
}

// Themes is the registry of all built-in themes keyed by name.
var Themes = map[string]*Theme{
	"default": newDefaultTheme(),
	"light":   newLightTheme(),
}

// Default returns the default dark theme.
func Default() *Theme {
	return Themes["default"]
}

// Get returns the theme identified by name. If no theme with that name exists
// it falls back to the default theme.
func Get(name string) *Theme {
	if t, ok := Themes[name]; ok {
		return t
	}
	return Default()
}
