// Package oneshot runs a bubbletea program that renders a single frame and
// quits, so static views share the terminal styling of interactive ones.
package oneshot

import (
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

var ErrUnexpectedModel = errors.New("unexpected final bubbletea model type")

type readyMsg struct{}

type model struct {
	draw   func() string
	output string
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		return readyMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case readyMsg:
		m.output = m.draw()
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m model) View() string {
	return m.output
}

// Render runs draw inside a program detached from the terminal and returns
// the frame it produced.
func Render(draw func() string) (string, error) {
	p := tea.NewProgram(
		model{draw: draw},
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	rendered, ok := finalModel.(model)
	if !ok {
		return "", ErrUnexpectedModel
	}

	return rendered.View(), nil
}
