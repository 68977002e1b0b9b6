// Package tui renders run outcomes for the terminal: verdict and history
// tables, score colouring and Markdown reports.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#06B6D4") // Cyan

	// Status colors
	ColorSuccess = lipgloss.Color("#10B981") // Green
	ColorWarning = lipgloss.Color("#F59E0B") // Amber
	ColorError   = lipgloss.Color("#EF4444") // Red

	// Neutral colors
	ColorText      = lipgloss.Color("#E5E7EB")
	ColorTextMuted = lipgloss.Color("#9CA3AF")
	ColorBorder    = lipgloss.Color("#374151")
)

// Score bands, as a fraction of the dimension's scale.
const (
	BandStrong = 0.7
	BandWeak   = 0.4
)

// ScoreColor picks the colour for a score at the given fraction of its scale.
func ScoreColor(fraction float64) lipgloss.Color {
	switch {
	case fraction >= BandStrong:
		return ColorSuccess
	case fraction >= BandWeak:
		return ColorWarning
	default:
		return ColorError
	}
}
