package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"marketbrief/candidates"
	"marketbrief/checkpoint"
	"marketbrief/config"
	"marketbrief/oracle"
	"marketbrief/progress"
	"marketbrief/selection"
	"marketbrief/types"
)

// Run-fatal errors. Stage-local failures never surface here; they are
// recorded on the stage and the pipeline continues.
var (
	// ErrNoCandidates means the window produced nothing to analyze.
	ErrNoCandidates = errors.New("no candidates selected for window")

	// ErrNoUsableStageResults means every stage failed, so synthesis has
	// nothing to consolidate and is not attempted.
	ErrNoUsableStageResults = errors.New("no usable stage results")
)

// GenerateParams controls one insight generation request.
type GenerateParams struct {
	// Lookback is the candidate window size ending now. Zero means the
	// default lookback.
	Lookback time.Duration

	// CandidateLimit caps how many candidates feed the stages. Zero means
	// the default limit.
	CandidateLimit int

	// ForceNewRun skips resumption and always starts a fresh run.
	ForceNewRun bool
}

// Archiver persists finalized runs to long-term storage. Archival is
// best-effort; failures are logged and never fail the run.
type Archiver interface {
	ArchiveRun(ctx context.Context, run *types.RunState) error
}

// Config carries the orchestrator's timing knobs. Zero values fall back to
// the package defaults.
type Config struct {
	StageTimeout     time.Duration
	SynthesisTimeout time.Duration
	MaxRunCacheAge   time.Duration
}

// Deps bundles the orchestrator's collaborators. Archiver may be nil.
type Deps struct {
	Candidates  candidates.Store
	Oracle      oracle.Oracle
	Checkpoints checkpoint.Store
	Reporter    progress.Reporter
	Archiver    Archiver
}

// Service runs the multi-stage insight pipeline: select candidates, run each
// analytical stage against the oracle with checkpointing after every state
// transition, then synthesize the surviving stage results into one
// comprehensive view.
type Service struct {
	candidates  candidates.Store
	oracle      oracle.Oracle
	checkpoints checkpoint.Store
	reporter    progress.Reporter
	archiver    Archiver
	stages      []StageDefinition
	cfg         Config
	now         func() time.Time
}

// NewService creates the pipeline service with the standard stage set.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = config.StageTimeout
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = config.SynthesisTimeout
	}
	if cfg.MaxRunCacheAge <= 0 {
		cfg.MaxRunCacheAge = config.MaxRunCacheAge
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = progress.NopReporter{}
	}
	return &Service{
		candidates:  deps.Candidates,
		oracle:      deps.Oracle,
		checkpoints: deps.Checkpoints,
		reporter:    reporter,
		archiver:    deps.Archiver,
		stages:      Definitions(),
		cfg:         cfg,
		now:         time.Now,
	}
}

// GenerateInsight executes one pipeline run end to end and returns the
// consolidated result. If a recent unfinished run exists it is resumed:
// checkpointed successful stages are reused verbatim (their usage still
// counts toward the run total) and only missing or failed stages execute.
func (s *Service) GenerateInsight(ctx context.Context, params GenerateParams) (*types.RunResult, error) {
	if params.Lookback <= 0 {
		params.Lookback = config.DefaultLookback
	}
	if params.CandidateLimit <= 0 {
		params.CandidateLimit = config.DefaultCandidateLimit
	}

	now := s.now()

	var run *types.RunState
	if !params.ForceNewRun {
		prev, ok, err := s.checkpoints.FindReusableRun(ctx, s.cfg.MaxRunCacheAge)
		if err != nil {
			log.Printf("Warning: reusable run lookup failed, starting fresh: %v", err)
		} else if ok {
			run = prev
			log.Printf("Resuming run %s (%d of %d stages already succeeded)",
				run.RunID, countSuccessful(run), len(s.stages))
		}
	}

	// A resumed run keeps its original window so reused and re-executed
	// stages see the same world.
	windowStart, windowEnd := now.Add(-params.Lookback), now
	if run != nil {
		windowStart, windowEnd = run.WindowStart, run.WindowEnd
	}

	pool, err := s.candidates.Query(ctx, windowStart, windowEnd, selection.PoolSize(params.CandidateLimit))
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	selected := selection.Select(pool, params.CandidateLimit, now)
	if len(selected) == 0 {
		return nil, ErrNoCandidates
	}
	log.Printf("Selected %d of %d candidates for window %s - %s",
		len(selected), len(pool), windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339))

	shared := BuildContext(selected, windowStart, windowEnd)

	if run == nil {
		run = &types.RunState{
			GeneratedAt:   now,
			WindowStart:   windowStart,
			WindowEnd:     windowEnd,
			HeadlineCount: len(selected),
			Stages:        make(map[string]*types.StageRecord, len(s.stages)),
		}
		runID, err := s.checkpoints.CreateRun(ctx, run)
		if err != nil {
			return nil, fmt.Errorf("create run checkpoint: %w", err)
		}
		run.RunID = runID
	}
	if run.Stages == nil {
		run.Stages = make(map[string]*types.StageRecord, len(s.stages))
	}

	// Synthesis occupies the final progress slot.
	totalSteps := len(s.stages) + 1

	outcomes := make([]types.StageOutcome, 0, len(s.stages))
	var totalUsage types.UsageStats
	var failed []string

	for i, def := range s.stages {
		s.report(run.RunID, float64(i)/float64(totalSteps),
			fmt.Sprintf("Stage %d/%d: %s", i+1, len(s.stages), def.Title))

		if prev, ok := run.Stages[def.Key]; ok && prev.Status == types.StageSuccess {
			outcomes = append(outcomes, types.StageOutcome{
				Key:    def.Key,
				Title:  def.Title,
				Status: types.StageSuccess,
				Reused: true,
				Result: prev.Result,
				Usage:  prev.Usage,
			})
			totalUsage.Add(prev.Usage)
			s.report(run.RunID, float64(i+1)/float64(totalSteps),
				fmt.Sprintf("Stage %s: reused checkpointed result", def.Title))
			continue
		}

		rec := s.runStage(ctx, run.RunID, def, shared)
		run.Stages[def.Key] = rec
		totalUsage.Add(rec.Usage)
		outcomes = append(outcomes, types.StageOutcome{
			Key:    def.Key,
			Title:  def.Title,
			Status: rec.Status,
			Result: rec.Result,
			Usage:  rec.Usage,
			Error:  rec.Error,
		})

		if rec.Status == types.StageFailed {
			failed = append(failed, def.Key)
			s.report(run.RunID, float64(i+1)/float64(totalSteps),
				fmt.Sprintf("Stage %s failed: %s", def.Title, rec.Error))
		} else {
			s.report(run.RunID, float64(i+1)/float64(totalSteps),
				fmt.Sprintf("Stage %s complete", def.Title))
		}
	}

	successful := make([]types.StageOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Status == types.StageSuccess {
			successful = append(successful, o)
		}
	}
	if len(successful) == 0 {
		// Leave the run non-terminal so a retry re-executes the failed
		// stages instead of starting over.
		s.report(run.RunID, 1, "All stages failed, aborting before synthesis")
		return nil, ErrNoUsableStageResults
	}

	s.report(run.RunID, float64(len(s.stages))/float64(totalSteps),
		fmt.Sprintf("Synthesizing comprehensive view from %d stage(s)", len(successful)))

	comp, compUsage, err := s.synthesize(ctx, run, successful)
	totalUsage.Add(compUsage)
	if err != nil {
		// Synthesis failure is terminal for the run; the record was already
		// checkpointed as failed inside synthesize.
		s.report(run.RunID, 1, "Synthesis failed")
		return nil, fmt.Errorf("synthesize comprehensive view: %w", err)
	}
	s.report(run.RunID, 1, "Run complete")

	if err := s.checkpoints.FinalizeRun(ctx, run); err != nil {
		log.Printf("Warning: failed to finalize run %s: %v", run.RunID, err)
	}
	if s.archiver != nil {
		if err := s.archiver.ArchiveRun(ctx, run); err != nil {
			log.Printf("Warning: failed to archive run %s: %v", run.RunID, err)
		}
	}

	return &types.RunResult{
		RunID:         run.RunID,
		GeneratedAt:   run.GeneratedAt,
		WindowStart:   run.WindowStart,
		WindowEnd:     run.WindowEnd,
		HeadlineCount: run.HeadlineCount,
		Comprehensive: comp,
		Stages:        outcomes,
		FailedStages:  failed,
		Usage:         totalUsage,
	}, nil
}

// runStage executes one stage: checkpoint running, invoke the oracle under
// the stage timeout, parse leniently, and checkpoint the terminal state.
// Never returns an error; failures land on the record.
func (s *Service) runStage(ctx context.Context, runID string, def StageDefinition, shared SharedContext) *types.StageRecord {
	rec := &types.StageRecord{
		Key:       def.Key,
		Title:     def.Title,
		Status:    types.StageRunning,
		StartedAt: s.now(),
	}
	s.checkpointStage(ctx, runID, def.Key, rec)

	prompt := renderPrompt(def, projectPayload(shared, def.InputKeys))
	raw, usage, err := s.invokeWithTimeout(ctx, prompt, s.cfg.StageTimeout)
	rec.Usage = usage
	rec.FinishedAt = s.now()

	if err != nil {
		rec.Status = types.StageFailed
		rec.Error = err.Error()
		s.checkpointStage(ctx, runID, def.Key, rec)
		return rec
	}

	result := oracle.ParseStageResult(raw)
	if oracle.IsPlaceholderAnalysis(result.Analysis) {
		if fallback := fallbackAnalysis(def, shared); fallback != "" {
			log.Printf("Stage %s returned a placeholder answer, substituting fact summary", def.Key)
			result.Analysis = fallback
		}
	}

	rec.Status = types.StageSuccess
	rec.Result = result
	s.checkpointStage(ctx, runID, def.Key, rec)
	return rec
}

// invokeWithTimeout calls the oracle in a goroutine and waits for the result
// or the deadline, whichever comes first. On timeout the in-flight call is
// abandoned (the derived context is also cancelled so a well-behaved oracle
// stops early) and its usage is unknowable, so zero usage is returned.
func (s *Service) invokeWithTimeout(ctx context.Context, prompt string, timeout time.Duration) (string, types.UsageStats, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type invokeResult struct {
		text  string
		usage types.UsageStats
		err   error
	}
	done := make(chan invokeResult, 1)

	go func() {
		text, usage, err := s.oracle.Invoke(callCtx, prompt)
		done <- invokeResult{text: text, usage: usage, err: err}
	}()

	select {
	case res := <-done:
		// An oracle that returns the deadline error itself gets the same
		// treatment as an abandoned call.
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return "", res.usage, fmt.Errorf("oracle call timed out after %s", timeout)
		}
		return res.text, res.usage, res.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", types.UsageStats{}, fmt.Errorf("oracle call timed out after %s", timeout)
		}
		return "", types.UsageStats{}, callCtx.Err()
	}
}

// checkpointStage persists a stage transition. A checkpoint write failure
// degrades resumability but must not fail the stage, so it is only logged.
func (s *Service) checkpointStage(ctx context.Context, runID, stageKey string, rec *types.StageRecord) {
	if err := s.checkpoints.UpdateStage(ctx, runID, stageKey, rec); err != nil {
		log.Printf("Warning: failed to checkpoint stage %s (run %s): %v", stageKey, runID, err)
	}
}

func (s *Service) report(runID string, fraction float64, message string) {
	s.reporter.OnProgress(types.ProgressEvent{
		RunID:    runID,
		Fraction: fraction,
		Message:  message,
		At:       s.now(),
	})
}

func countSuccessful(run *types.RunState) int {
	n := 0
	for _, rec := range run.Stages {
		if rec != nil && rec.Status == types.StageSuccess {
			n++
		}
	}
	return n
}
