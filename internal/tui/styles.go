// Package tui renders styled terminal output for contentloader commands.
package tui

import "github.com/charmbracelet/lipgloss"

// Palette shared by all views.
const (
	ColorHeader  = lipgloss.Color("39")
	ColorLabel   = lipgloss.Color("245")
	ColorValue   = lipgloss.Color("255")
	ColorMuted   = lipgloss.Color("240")
	ColorOK      = lipgloss.Color("42")
	ColorWarning = lipgloss.Color("214")
	ColorBorder  = lipgloss.Color("63")
)

// Styler renders text with lipgloss styles, or unchanged when disabled.
// Disable it when output is not a terminal.
type Styler struct {
	Enabled bool
}

func (s Styler) render(style lipgloss.Style, text string) string {
	if !s.Enabled {
		return text
	}
	return style.Render(text)
}

// Title renders a boxed title.
func (s Styler) Title(text string) string {
	return s.render(lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorHeader).
		Border(lipgloss.NormalBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1), text)
}

// Header renders a column header.
func (s Styler) Header(text string) string {
	return s.render(lipgloss.NewStyle().Foreground(ColorHeader).Bold(true), text)
}

// Label renders a field label.
func (s Styler) Label(text string) string {
	return s.render(lipgloss.NewStyle().Foreground(ColorLabel), text)
}

// Value renders a field value.
func (s Styler) Value(text string) string {
	return s.render(lipgloss.NewStyle().Foreground(ColorValue).Bold(true), text)
}

// Muted renders secondary text.
func (s Styler) Muted(text string) string {
	return s.render(lipgloss.NewStyle().Foreground(ColorMuted).Italic(true), text)
}

// OK renders a healthy status.
func (s Styler) OK(text string) string {
	return s.render(lipgloss.NewStyle().Foreground(ColorOK), text)
}

// Warning renders a status needing attention.
func (s Styler) Warning(text string) string {
	return s.render(lipgloss.NewStyle().Foreground(ColorWarning).Bold(true), text)
}
