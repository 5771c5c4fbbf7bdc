// Package ui renders console output in the terminal: styled tables for the
// CLI commands and the interactive browser.
package ui

import "github.com/charmbracelet/lipgloss"

// LipGloss signature purple/pink palette
const (
	ColorHeader  = "#F780FF" // Bright pink/magenta
	ColorPrimary = "#BD93F9" // Purple
	ColorNumber  = "#FF79C6" // Pink
	ColorText    = "#E9E9F4" // Light purple/white
	ColorBorder  = "#6272A4" // Muted purple
	ColorSummary = "#8BE9FD" // Cyan accent
	ColorError   = "#FF5555" // Red
	ColorSuccess = "#50FA7B" // Green
)

// Styles holds the styles shared by tables and the browser.
type Styles struct {
	Header  lipgloss.Style
	Primary lipgloss.Style
	Number  lipgloss.Style
	Text    lipgloss.Style
	Border  lipgloss.Style
	Summary lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Dim     lipgloss.Style

	Panel       lipgloss.Style
	ActivePanel lipgloss.Style
	Tab         lipgloss.Style
	ActiveTab   lipgloss.Style
	Status      lipgloss.Style
}

// DefaultStyles returns the console styles.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHeader)).Bold(true),
		Primary: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimary)),
		Number:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorNumber)),
		Text:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorText)),
		Border:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBorder)),
		Summary: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSummary)).Italic(true),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Bold(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSuccess)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBorder)).Italic(true),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)),
		ActivePanel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorHeader)),
		Tab: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBorder)).
			Padding(0, 1),
		ActiveTab: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorHeader)).
			Bold(true).
			Underline(true).
			Padding(0, 1),
		Status: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorSummary)).
			Padding(0, 1),
	}
}
