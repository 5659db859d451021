package cli

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("81"))

	locationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	reasonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("203"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("61")).
			Padding(0, 1)
)

// styler renders shell output, degrading to plain text when color is off.
type styler struct {
	color bool
}

func newStyler(noColor bool) styler {
	return styler{color: !noColor}
}

func (s styler) render(style lipgloss.Style, text string) string {
	if !s.color {
		return text
	}
	return style.Render(text)
}

func (s styler) prompt(text string) string   { return s.render(promptStyle, text) }
func (s styler) location(text string) string { return s.render(locationStyle, text) }
func (s styler) reason(text string) string   { return s.render(reasonStyle, text) }
func (s styler) value(text string) string    { return s.render(valueStyle, text) }
func (s styler) dim(text string) string      { return s.render(dimStyle, text) }
func (s styler) errorf(text string) string   { return s.render(errorStyle, text) }
func (s styler) banner(text string) string   { return s.render(bannerStyle, text) }
