package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run launches the dashboard and blocks until the user quits.
func Run() error {
	p := tea.NewProgram(
		NewModel(),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := p.Run()
	return err
}
