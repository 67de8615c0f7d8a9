package main

import "github.com/charmbracelet/lipgloss"

type theme struct {
	title      lipgloss.Style
	userLabel  lipgloss.Style
	botLabel   lipgloss.Style
	errorText  lipgloss.Style
	meta       lipgloss.Style
	statusBar  lipgloss.Style
	adminTitle lipgloss.Style
	adminPanel lipgloss.Style
	help       lipgloss.Style
	notice     lipgloss.Style
	spinner    lipgloss.Style
}

func newTheme() theme {
	var (
		mint   = lipgloss.Color("#05ffa1")
		pink   = lipgloss.Color("#ff71ce")
		yellow = lipgloss.Color("#ffd166")
		red    = lipgloss.Color("#ff5c57")
		muted  = lipgloss.Color("#8a86a3")
	)
	return theme{
		title:      lipgloss.NewStyle().Foreground(mint).Bold(true),
		userLabel:  lipgloss.NewStyle().Foreground(mint).Bold(true),
		botLabel:   lipgloss.NewStyle().Foreground(pink).Bold(true),
		errorText:  lipgloss.NewStyle().Foreground(red),
		meta:       lipgloss.NewStyle().Foreground(muted),
		statusBar:  lipgloss.NewStyle().Foreground(muted),
		adminTitle: lipgloss.NewStyle().Foreground(yellow).Bold(true),
		adminPanel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(yellow).
			Padding(0, 1),
		help:    lipgloss.NewStyle().Foreground(muted),
		notice:  lipgloss.NewStyle().Foreground(yellow),
		spinner: lipgloss.NewStyle().Foreground(mint),
	}
}
