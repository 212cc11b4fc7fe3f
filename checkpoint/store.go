package checkpoint

import (
	"context"
	"time"

	"marketbrief/types"
)

// Store persists run state incrementally so an interrupted run can be
// resumed. All writes are single-record upserts keyed by (runID, stageKey)
// or runID; stages are independent until synthesis, so no cross-record
// transactions are needed. Implementations must survive process restarts
// to be useful (the in-memory store exists for tests and demos).
type Store interface {
	// CreateRun persists the initial run state and returns its ID,
	// assigning one if the caller left it empty.
	CreateRun(ctx context.Context, initial *types.RunState) (string, error)

	// UpdateStage upserts one stage record for a run.
	UpdateStage(ctx context.Context, runID, stageKey string, rec *types.StageRecord) error

	// UpdateComprehensive upserts the synthesis record for a run.
	UpdateComprehensive(ctx context.Context, runID string, rec *types.ComprehensiveRecord) error

	// GetRun loads a run's full state.
	GetRun(ctx context.Context, runID string) (*types.RunState, error)

	// LatestRun returns the most recently created run, if any.
	LatestRun(ctx context.Context) (*types.RunState, bool, error)

	// FindReusableRun returns the latest run if it is young enough and its
	// synthesis has not completed, meaning a retry should resume it.
	FindReusableRun(ctx context.Context, maxAge time.Duration) (*types.RunState, bool, error)

	// FinalizeRun writes the complete run state in one pass after the
	// pipeline finishes.
	FinalizeRun(ctx context.Context, run *types.RunState) error
}
