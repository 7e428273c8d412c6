package tui

import "github.com/charmbracelet/lipgloss"

const sidebarWidth = 32

var (
	accent = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	muted  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	danger = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
)

type Styles struct {
	Pane        lipgloss.Style
	FocusedPane lipgloss.Style
	Heading     lipgloss.Style
	Item        lipgloss.Style
	ActiveItem  lipgloss.Style
	Cursor      lipgloss.Style
	Badge       lipgloss.Style
	Muted       lipgloss.Style
	UserLabel   lipgloss.Style
	ModeLabel   lipgloss.Style
	Error       lipgloss.Style
	Welcome     lipgloss.Style
}

func DefaultStyles() Styles {
	pane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(muted)
	return Styles{
		Pane:        pane,
		FocusedPane: pane.BorderForeground(accent),
		Heading:     lipgloss.NewStyle().Bold(true).Foreground(accent),
		Item:        lipgloss.NewStyle().PaddingLeft(2),
		ActiveItem:  lipgloss.NewStyle().PaddingLeft(2).Bold(true),
		Cursor:      lipgloss.NewStyle().Foreground(accent),
		Badge:       lipgloss.NewStyle().Foreground(muted).Italic(true).PaddingLeft(4),
		Muted:       lipgloss.NewStyle().Foreground(muted),
		UserLabel:   lipgloss.NewStyle().Bold(true).Foreground(accent),
		ModeLabel:   lipgloss.NewStyle().Bold(true),
		Error:       lipgloss.NewStyle().Foreground(danger),
		Welcome:     lipgloss.NewStyle().Bold(true).Foreground(accent).MarginTop(1),
	}
}
