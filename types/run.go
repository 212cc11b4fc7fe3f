package types

import "time"

// Stage status values. A stage only ever moves running -> success or
// running -> failed; terminal states are final.
const (
	StageRunning = "running"
	StageSuccess = "success"
	StageFailed  = "failed"
)

// UsageStats accumulates oracle token/call counters for a stage or a run.
type UsageStats struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	Calls        int `json:"calls"`
}

// Add accumulates another usage sample into u.
func (u *UsageStats) Add(other UsageStats) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Calls += other.Calls
}

// StageResult is the canonical parsed output of one analytical stage.
type StageResult struct {
	Analysis   string            `json:"analysis"`
	Highlights []string          `json:"highlights,omitempty"`
	Bias       string            `json:"bias,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	KeyMetrics map[string]string `json:"key_metrics,omitempty"`
}

// StageRecord is the per-run, per-stage mutable state persisted after every
// transition. Result is present iff Status is success; Error iff failed.
type StageRecord struct {
	Key        string       `json:"key"`
	Title      string       `json:"title"`
	Status     string       `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at,omitzero"`
	Result     *StageResult `json:"result,omitempty"`
	Usage      UsageStats   `json:"usage"`
	Error      string       `json:"error,omitempty"`
}

// Scenario is one forward-looking path in the comprehensive result.
type Scenario struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability,omitempty"`
	Description string  `json:"description"`
}

// ComprehensiveResult is the consolidated output of the synthesis step.
type ComprehensiveResult struct {
	Bias             string     `json:"bias"`
	Confidence       float64    `json:"confidence"`
	Summary          string     `json:"summary"`
	KeySignals       []string   `json:"key_signals,omitempty"`
	PositionGuidance string     `json:"position_guidance,omitempty"`
	Scenarios        []Scenario `json:"scenarios,omitempty"`
}

// ComprehensiveRecord tracks the synthesis step's own status/result, in the
// same shape as a stage record.
type ComprehensiveRecord struct {
	Status     string               `json:"status"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at,omitzero"`
	Result     *ComprehensiveResult `json:"result,omitempty"`
	Usage      UsageStats           `json:"usage"`
	Error      string               `json:"error,omitempty"`
}

// RunState aggregates everything checkpointed for one pipeline run.
type RunState struct {
	RunID         string                  `json:"run_id"`
	GeneratedAt   time.Time               `json:"generated_at"`
	WindowStart   time.Time               `json:"window_start"`
	WindowEnd     time.Time               `json:"window_end"`
	HeadlineCount int                     `json:"headline_count"`
	Stages        map[string]*StageRecord `json:"stages"`
	Comprehensive *ComprehensiveRecord    `json:"comprehensive,omitempty"`
}

// Terminal reports whether the run finished (synthesis succeeded or failed).
func (r *RunState) Terminal() bool {
	return r.Comprehensive != nil &&
		(r.Comprehensive.Status == StageSuccess || r.Comprehensive.Status == StageFailed)
}

// Reusable reports whether the run may be resumed instead of starting a new
// one: synthesis has not completed and the run is young enough. A run that
// crashed mid-synthesis (status still running) counts as not-yet-attempted.
func (r *RunState) Reusable(now time.Time, maxAge time.Duration) bool {
	if r.Terminal() {
		return false
	}
	return now.Sub(r.GeneratedAt) <= maxAge
}

// StageOutcome is the caller-facing summary of one stage's execution within
// a run, including whether a checkpointed result was reused.
type StageOutcome struct {
	Key    string       `json:"key"`
	Title  string       `json:"title"`
	Status string       `json:"status"`
	Reused bool         `json:"reused,omitempty"`
	Result *StageResult `json:"result,omitempty"`
	Usage  UsageStats   `json:"usage"`
	Error  string       `json:"error,omitempty"`
}

// RunResult is what GenerateInsight returns to the caller: either a complete
// comprehensive result with the per-stage outcomes, or nothing (the run
// failed as a whole and an error was returned instead).
type RunResult struct {
	RunID         string               `json:"run_id"`
	GeneratedAt   time.Time            `json:"generated_at"`
	WindowStart   time.Time            `json:"window_start"`
	WindowEnd     time.Time            `json:"window_end"`
	HeadlineCount int                  `json:"headline_count"`
	Comprehensive *ComprehensiveResult `json:"comprehensive"`
	Stages        []StageOutcome       `json:"stages"`
	FailedStages  []string             `json:"failed_stages,omitempty"`
	Usage         UsageStats           `json:"usage"`
}

// ProgressEvent is a fire-and-forget orchestration progress notification.
type ProgressEvent struct {
	RunID    string    `json:"run_id"`
	Fraction float64   `json:"fraction"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}
