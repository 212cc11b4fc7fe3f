package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"marketbrief/types"
)

// Model represents the TUI client state (thin client: all pipeline state
// lives on the server, we just render the latest checkpoint).
type Model struct {
	Client *Client

	// Synced from the server.
	Run    *types.RunState
	Result *types.RunResult

	Generating bool
	Connected  bool
	Err        error
}

// NewModel creates a new TUI model.
func NewModel(serverURL string) Model {
	return Model{
		Client: NewClient(serverURL),
	}
}

// Init implements the tea.Model interface.
func (m Model) Init() tea.Cmd {
	// Start polling immediately
	return tea.Batch(
		pollLatestRun(m.Client),
		tickCmd(),
	)
}
