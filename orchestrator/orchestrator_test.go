package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"marketbrief/candidates"
	"marketbrief/checkpoint"
	"marketbrief/types"
)

const validStageJSON = `{
	"analysis": "Positioning is stretched and breadth is thinning.",
	"highlights": ["Breadth thinning"],
	"bias": "bearish",
	"confidence": 0.6
}`

const validSynthesisJSON = `{
	"bias": "bearish",
	"confidence": 0.6,
	"summary": "Risk/reward skews lower into the data.",
	"key_signals": ["Stretched positioning"],
	"position_guidance": "Reduce gross exposure."
}`

// fakeOracle records every prompt and delegates to a scripted invoke func.
type fakeOracle struct {
	mu      sync.Mutex
	prompts []string
	invoke  func(ctx context.Context, prompt string) (string, error)
}

func (f *fakeOracle) Invoke(ctx context.Context, prompt string) (string, types.UsageStats, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	text, err := f.invoke(ctx, prompt)
	if err != nil {
		return "", types.UsageStats{}, err
	}
	return text, types.UsageStats{InputTokens: 100, OutputTokens: 50, Calls: 1}, nil
}

func (f *fakeOracle) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func alwaysValid(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "chief strategist") {
		return validSynthesisJSON, nil
	}
	return validStageJSON, nil
}

func seedCandidates(now time.Time) []*types.Candidate {
	mk := func(id, title, market, category string) *types.Candidate {
		return &types.Candidate{
			ID:           id,
			Title:        title,
			Summary:      "summary for " + title,
			MarketTags:   []string{market},
			CategoryTags: []string{category},
			Confidence:   0.7,
			PublishedAt:  now.Add(-3 * time.Hour),
			Metadata: &types.CandidateMetadata{
				Severity:      "high",
				MacroScore:    0.7,
				EventCategory: category,
				SubjectLevel:  "central_bank",
			},
		}
	}
	return []*types.Candidate{
		mk("c1", "Fed signals higher for longer", "rates", "policy"),
		mk("c2", "Tech megacaps slide on guidance", "equities", "earnings"),
		mk("c3", "Oil spikes on shipping attacks", "commodities", "geopolitical"),
		mk("c4", "Repo rates tighten into quarter end", "fx", "liquidity"),
	}
}

func newTestService(oracle *fakeOracle, store checkpoint.Store) *Service {
	now := time.Now()
	svc := NewService(Deps{
		Candidates:  candidates.NewMemoryStore(seedCandidates(now)...),
		Oracle:      oracle,
		Checkpoints: store,
	}, Config{})
	svc.now = func() time.Time { return now }
	return svc
}

func TestGenerateInsightHappyPath(t *testing.T) {
	oracle := &fakeOracle{invoke: alwaysValid}
	store := checkpoint.NewMemoryStore()
	svc := newTestService(oracle, store)

	result, err := svc.GenerateInsight(context.Background(), GenerateParams{})
	if err != nil {
		t.Fatalf("GenerateInsight() error: %v", err)
	}

	if len(result.Stages) != len(Definitions()) {
		t.Errorf("expected %d stage outcomes, got %d", len(Definitions()), len(result.Stages))
	}
	for _, o := range result.Stages {
		if o.Status != types.StageSuccess {
			t.Errorf("stage %s status = %s", o.Key, o.Status)
		}
		if o.Reused {
			t.Errorf("fresh run reported stage %s as reused", o.Key)
		}
	}
	if result.Comprehensive == nil || result.Comprehensive.Summary == "" {
		t.Fatal("missing comprehensive result")
	}
	if want := len(Definitions()) + 1; oracle.callCount() != want {
		t.Errorf("oracle calls = %d, want %d", oracle.callCount(), want)
	}
	if result.Usage.Calls != len(Definitions())+1 {
		t.Errorf("usage calls = %d, want %d", result.Usage.Calls, len(Definitions())+1)
	}

	run, ok, err := store.LatestRun(context.Background())
	if err != nil || !ok {
		t.Fatalf("no finalized run in store (ok=%v, err=%v)", ok, err)
	}
	if !run.Terminal() {
		t.Error("finalized run is not terminal")
	}
}

func TestGenerateInsightResumesCheckpointedStages(t *testing.T) {
	oracle := &fakeOracle{invoke: alwaysValid}
	store := checkpoint.NewMemoryStore()
	svc := newTestService(oracle, store)
	now := svc.now()

	// Simulate a crashed run with the first three stages already succeeded.
	defs := Definitions()
	prior := &types.RunState{
		GeneratedAt:   now.Add(-5 * time.Minute),
		WindowStart:   now.Add(-24 * time.Hour),
		WindowEnd:     now,
		HeadlineCount: 4,
		Stages:        map[string]*types.StageRecord{},
	}
	for _, def := range defs[:3] {
		prior.Stages[def.Key] = &types.StageRecord{
			Key:    def.Key,
			Title:  def.Title,
			Status: types.StageSuccess,
			Result: &types.StageResult{Analysis: "checkpointed analysis for " + def.Key},
			Usage:  types.UsageStats{InputTokens: 80, OutputTokens: 40, Calls: 1},
		}
	}
	runID, err := store.CreateRun(context.Background(), prior)
	if err != nil {
		t.Fatalf("seed run: %v", err)
	}

	result, err := svc.GenerateInsight(context.Background(), GenerateParams{})
	if err != nil {
		t.Fatalf("GenerateInsight() error: %v", err)
	}

	if result.RunID != runID {
		t.Errorf("expected resumed run %s, got %s", runID, result.RunID)
	}
	// Two remaining stages plus synthesis.
	if oracle.callCount() != 3 {
		t.Errorf("oracle calls = %d, want 3 (reused stages must not re-invoke)", oracle.callCount())
	}

	reused := 0
	for _, o := range result.Stages {
		if o.Reused {
			reused++
			if !strings.HasPrefix(o.Result.Analysis, "checkpointed analysis") {
				t.Errorf("reused stage %s lost its checkpointed result", o.Key)
			}
		}
	}
	if reused != 3 {
		t.Errorf("reused stages = %d, want 3", reused)
	}

	// Reused usage counts once, plus 3 fresh calls.
	if result.Usage.Calls != 6 {
		t.Errorf("usage calls = %d, want 6", result.Usage.Calls)
	}
	if result.Usage.InputTokens != 3*80+3*100 {
		t.Errorf("input tokens = %d, want %d", result.Usage.InputTokens, 3*80+3*100)
	}
}

func TestGenerateInsightForceNewRunSkipsResumption(t *testing.T) {
	oracle := &fakeOracle{invoke: alwaysValid}
	store := checkpoint.NewMemoryStore()
	svc := newTestService(oracle, store)
	now := svc.now()

	prior := &types.RunState{
		GeneratedAt: now.Add(-5 * time.Minute),
		WindowStart: now.Add(-24 * time.Hour),
		WindowEnd:   now,
		Stages: map[string]*types.StageRecord{
			Definitions()[0].Key: {
				Key:    Definitions()[0].Key,
				Status: types.StageSuccess,
				Result: &types.StageResult{Analysis: "stale"},
			},
		},
	}
	runID, _ := store.CreateRun(context.Background(), prior)

	result, err := svc.GenerateInsight(context.Background(), GenerateParams{ForceNewRun: true})
	if err != nil {
		t.Fatalf("GenerateInsight() error: %v", err)
	}
	if result.RunID == runID {
		t.Error("ForceNewRun reused the prior run")
	}
	if want := len(Definitions()) + 1; oracle.callCount() != want {
		t.Errorf("oracle calls = %d, want %d", oracle.callCount(), want)
	}
}

func TestGenerateInsightAllStagesFailed(t *testing.T) {
	oracle := &fakeOracle{invoke: func(context.Context, string) (string, error) {
		return "", errors.New("upstream unavailable")
	}}
	store := checkpoint.NewMemoryStore()
	svc := newTestService(oracle, store)

	_, err := svc.GenerateInsight(context.Background(), GenerateParams{})
	if !errors.Is(err, ErrNoUsableStageResults) {
		t.Fatalf("expected ErrNoUsableStageResults, got %v", err)
	}
	// Synthesis must not have been attempted.
	if oracle.callCount() != len(Definitions()) {
		t.Errorf("oracle calls = %d, want %d (no synthesis call)", oracle.callCount(), len(Definitions()))
	}

	run, ok, _ := store.LatestRun(context.Background())
	if !ok {
		t.Fatal("run state missing from store")
	}
	if run.Terminal() {
		t.Error("aborted run must stay non-terminal so a retry can resume it")
	}
	for key, rec := range run.Stages {
		if rec.Status != types.StageFailed {
			t.Errorf("stage %s status = %s, want failed", key, rec.Status)
		}
		if rec.Error == "" {
			t.Errorf("stage %s has no recorded error", key)
		}
	}
}

func TestGenerateInsightToleratesStageFailure(t *testing.T) {
	oracle := &fakeOracle{invoke: func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "risk analyst") {
			return "", errors.New("model overloaded")
		}
		return alwaysValid(ctx, prompt)
	}}
	store := checkpoint.NewMemoryStore()
	svc := newTestService(oracle, store)

	result, err := svc.GenerateInsight(context.Background(), GenerateParams{})
	if err != nil {
		t.Fatalf("GenerateInsight() error: %v", err)
	}

	if len(result.FailedStages) != 1 || result.FailedStages[0] != "risk_events" {
		t.Errorf("FailedStages = %v, want [risk_events]", result.FailedStages)
	}
	if result.Comprehensive == nil {
		t.Fatal("synthesis must still run on the surviving stages")
	}
}

func TestGenerateInsightStageTimeout(t *testing.T) {
	oracle := &fakeOracle{invoke: func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "flows and liquidity") {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return alwaysValid(ctx, prompt)
	}}
	store := checkpoint.NewMemoryStore()
	svc := newTestService(oracle, store)
	svc.cfg.StageTimeout = 25 * time.Millisecond

	result, err := svc.GenerateInsight(context.Background(), GenerateParams{})
	if err != nil {
		t.Fatalf("GenerateInsight() error: %v", err)
	}

	if len(result.FailedStages) != 1 || result.FailedStages[0] != "liquidity_flows" {
		t.Fatalf("FailedStages = %v, want [liquidity_flows]", result.FailedStages)
	}
	for _, o := range result.Stages {
		if o.Key == "liquidity_flows" {
			if !strings.Contains(o.Error, "timed out") {
				t.Errorf("timeout stage error = %q, want a timeout message", o.Error)
			}
			if o.Usage.Calls != 0 {
				t.Errorf("abandoned call usage = %+v, want zero", o.Usage)
			}
		}
	}
}

func TestGenerateInsightPlaceholderFallback(t *testing.T) {
	oracle := &fakeOracle{invoke: func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "sentiment analyst") {
			return `{"analysis": "Insufficient data to form a view.", "bias": "neutral"}`, nil
		}
		return alwaysValid(ctx, prompt)
	}}
	svc := newTestService(oracle, checkpoint.NewMemoryStore())

	result, err := svc.GenerateInsight(context.Background(), GenerateParams{})
	if err != nil {
		t.Fatalf("GenerateInsight() error: %v", err)
	}

	for _, o := range result.Stages {
		if o.Key != "market_sentiment" {
			continue
		}
		if o.Status != types.StageSuccess {
			t.Fatalf("placeholder stage status = %s, want success", o.Status)
		}
		if !strings.HasPrefix(o.Result.Analysis, "Notable items this window:") {
			t.Errorf("placeholder analysis not replaced with fact summary: %q", o.Result.Analysis)
		}
		if o.Result.Bias != "neutral" {
			t.Errorf("other parsed fields must survive the fallback, bias = %q", o.Result.Bias)
		}
	}
}

func TestGenerateInsightSynthesisFailureFailsRun(t *testing.T) {
	oracle := &fakeOracle{invoke: func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "chief strategist") {
			return "definitely not json", nil
		}
		return alwaysValid(ctx, prompt)
	}}
	store := checkpoint.NewMemoryStore()
	svc := newTestService(oracle, store)

	_, err := svc.GenerateInsight(context.Background(), GenerateParams{})
	if err == nil {
		t.Fatal("expected synthesis parse failure to fail the run")
	}

	run, ok, _ := store.LatestRun(context.Background())
	if !ok || run.Comprehensive == nil {
		t.Fatal("synthesis record missing from store")
	}
	if run.Comprehensive.Status != types.StageFailed {
		t.Errorf("synthesis status = %s, want failed", run.Comprehensive.Status)
	}
	if !run.Terminal() {
		t.Error("failed synthesis must make the run terminal")
	}
}

func TestGenerateInsightNoCandidates(t *testing.T) {
	svc := NewService(Deps{
		Candidates:  candidates.NewMemoryStore(),
		Oracle:      &fakeOracle{invoke: alwaysValid},
		Checkpoints: checkpoint.NewMemoryStore(),
	}, Config{})

	_, err := svc.GenerateInsight(context.Background(), GenerateParams{})
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}
