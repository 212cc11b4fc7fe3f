package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Update implements the tea.Model interface.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case TickMsg:
		return m, tea.Batch(pollLatestRun(m.Client), tickCmd())
	case RunUpdateMsg:
		return m.handleRunUpdate(msg)
	case GenerateDoneMsg:
		return m.handleGenerateDone(msg)
	}
	return m, nil
}

// handleKeyPress processes keyboard input.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "g", "G":
		if !m.Generating {
			m.Generating = true
			m.Result = nil
			m.Err = nil
			return m, triggerGenerate(m.Client, false)
		}
	case "f", "F":
		if !m.Generating {
			m.Generating = true
			m.Result = nil
			m.Err = nil
			return m, triggerGenerate(m.Client, true)
		}
	}
	return m, nil
}

// handleRunUpdate syncs the latest checkpoint state from the server.
func (m Model) handleRunUpdate(msg RunUpdateMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.Connected = false
		return m, nil
	}
	m.Connected = true
	m.Run = msg.Run
	return m, nil
}

// handleGenerateDone records the pipeline outcome.
func (m Model) handleGenerateDone(msg GenerateDoneMsg) (tea.Model, tea.Cmd) {
	m.Generating = false
	if msg.Err != nil {
		m.Err = msg.Err
		return m, nil
	}
	m.Result = msg.Result
	return m, nil
}
