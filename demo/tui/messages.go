package tui

import (
	"time"

	"marketbrief/types"
)

// TickMsg drives the status polling loop.
type TickMsg struct {
	Time time.Time
}

// RunUpdateMsg carries the latest run state from a status poll.
type RunUpdateMsg struct {
	Run *types.RunState
	Err error
}

// GenerateDoneMsg carries the outcome of a generate request.
type GenerateDoneMsg struct {
	Result *types.RunResult
	Err    error
}
