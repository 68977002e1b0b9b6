package tui

import "github.com/charmbracelet/lipgloss"

// Base styles
var (
	// HeaderStyle is the style for headers.
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// FooterStyle is the style for footers.
	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			MarginTop(1)

	// CellStyle pads table cells.
	CellStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Padding(0, 1)

	// Outcome styles
	VerdictStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true)

	PartialStyle = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	FailedStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	FlagStyle = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Italic(true)
)
