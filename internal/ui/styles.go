// Package ui holds terminal styles shared by the CLI commands.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent    = lipgloss.Color("#7c3aed")
	secondary = lipgloss.Color("#888888")
	success   = lipgloss.Color("#22c55e")
	warning   = lipgloss.Color("#eab308")
	danger    = lipgloss.Color("#ef4444")
	border    = lipgloss.Color("#5a5a70")
)

// Styles is the set of styles used for CLI output. On a non-terminal writer
// lipgloss renders plain text.
type Styles struct {
	Title   lipgloss.Style
	Section lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	OK      lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Rule    lipgloss.Style
}

// Default returns the standard style set.
func Default() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(accent),
		Section: lipgloss.NewStyle().Bold(true),
		Label:   lipgloss.NewStyle().Foreground(secondary),
		Dim:     lipgloss.NewStyle().Foreground(secondary).Faint(true),
		OK:      lipgloss.NewStyle().Foreground(success),
		Warn:    lipgloss.NewStyle().Foreground(warning),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(danger),
		Rule:    lipgloss.NewStyle().Foreground(border),
	}
}

// Divider renders a horizontal rule of the given width.
func (s Styles) Divider(width int) string {
	if width < 1 {
		width = 1
	}
	return s.Rule.Render(strings.Repeat("─", width))
}
