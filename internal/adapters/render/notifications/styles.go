package notifications

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title   lipgloss.Style
	badge   lipgloss.Style
	header  lipgloss.Style
	item    lipgloss.Style
	heading lipgloss.Style
	message lipgloss.Style
	meta    lipgloss.Style
	link    lipgloss.Style
	empty   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true),
		badge:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160")).Padding(0, 1),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		item:    lipgloss.NewStyle().MarginTop(1),
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		message: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		meta:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		link:    lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		empty:   lipgloss.NewStyle().Faint(true),
	}
}
