package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// pollLatestRun creates a command to poll the latest run state.
func pollLatestRun(client *Client) tea.Cmd {
	return func() tea.Msg {
		run, err := client.LatestRun()
		return RunUpdateMsg{Run: run, Err: err}
	}
}

// triggerGenerate creates a command that runs the pipeline to completion.
func triggerGenerate(client *Client, forceNew bool) tea.Cmd {
	return func() tea.Msg {
		result, err := client.Generate(forceNew)
		return GenerateDoneMsg{Result: result, Err: err}
	}
}

// tickCmd creates a command that ticks every second for polling.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
