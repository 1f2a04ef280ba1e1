package ui

import "github.com/charmbracelet/lipgloss"

var (
	accent  = lipgloss.AdaptiveColor{Light: "#D7005F", Dark: "#FF5F87"}
	spotify = lipgloss.AdaptiveColor{Light: "#178A40", Dark: "#1DB954"}
	danger  = lipgloss.AdaptiveColor{Light: "#B3121F", Dark: "#E22134"}
	caution = lipgloss.AdaptiveColor{Light: "#C26A00", Dark: "#FFA500"}
	muted   = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#626262"}
)

var styles = newPalette()

// palette holds the named styles used by the views.
type palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	box   lipgloss.Style
}

func newPalette() *palette {
	fg := func(c lipgloss.TerminalColor) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	return &palette{
		title: fg(accent).Bold(true).MarginBottom(1),
		ok:    fg(spotify).Bold(true),
		err:   fg(danger).Bold(true),
		warn:  fg(caution),
		help:  fg(muted).Italic(true),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 2),
	}
}
