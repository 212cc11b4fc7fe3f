package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketbrief/types"
)

func newRun(age time.Duration) *types.RunState {
	now := time.Now()
	return &types.RunState{
		GeneratedAt: now.Add(-age),
		WindowStart: now.Add(-age - 24*time.Hour),
		WindowEnd:   now.Add(-age),
		Stages:      map[string]*types.StageRecord{},
	}
}

func TestMemoryStoreCreateAssignsID(t *testing.T) {
	store := NewMemoryStore()

	id, err := store.CreateRun(context.Background(), newRun(0))
	if err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}
	if id == "" {
		t.Fatal("CreateRun() returned empty run ID")
	}

	run, err := store.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if run.RunID != id {
		t.Errorf("stored RunID = %q, want %q", run.RunID, id)
	}
}

func TestMemoryStoreGetRunNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.GetRun(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestMemoryStoreStageUpsert(t *testing.T) {
	store := NewMemoryStore()
	id, _ := store.CreateRun(context.Background(), newRun(0))

	rec := &types.StageRecord{Key: "macro_policy", Status: types.StageRunning, StartedAt: time.Now()}
	if err := store.UpdateStage(context.Background(), id, rec.Key, rec); err != nil {
		t.Fatalf("UpdateStage() error: %v", err)
	}

	// Mutating the caller's record must not leak into the store.
	rec.Status = types.StageFailed

	run, _ := store.GetRun(context.Background(), id)
	if got := run.Stages["macro_policy"].Status; got != types.StageRunning {
		t.Errorf("stored stage status = %s, want running (store must copy records)", got)
	}

	rec.Status = types.StageSuccess
	rec.Result = &types.StageResult{Analysis: "done"}
	if err := store.UpdateStage(context.Background(), id, rec.Key, rec); err != nil {
		t.Fatalf("UpdateStage() upsert error: %v", err)
	}
	run, _ = store.GetRun(context.Background(), id)
	if got := run.Stages["macro_policy"].Status; got != types.StageSuccess {
		t.Errorf("upserted stage status = %s, want success", got)
	}
}

func TestMemoryStoreFindReusableRun(t *testing.T) {
	ctx := context.Background()
	maxAge := 45 * time.Minute

	store := NewMemoryStore()
	if _, ok, _ := store.FindReusableRun(ctx, maxAge); ok {
		t.Error("empty store reported a reusable run")
	}

	// Young, unfinished run: reusable.
	id, _ := store.CreateRun(ctx, newRun(5*time.Minute))
	run, ok, err := store.FindReusableRun(ctx, maxAge)
	if err != nil || !ok {
		t.Fatalf("expected reusable run (ok=%v, err=%v)", ok, err)
	}
	if run.RunID != id {
		t.Errorf("reusable run = %s, want %s", run.RunID, id)
	}

	// Crashed mid-synthesis (status running) still counts as unfinished.
	_ = store.UpdateComprehensive(ctx, id, &types.ComprehensiveRecord{Status: types.StageRunning})
	if _, ok, _ := store.FindReusableRun(ctx, maxAge); !ok {
		t.Error("run crashed mid-synthesis must remain reusable")
	}

	// Completed synthesis makes the run terminal and non-reusable.
	_ = store.UpdateComprehensive(ctx, id, &types.ComprehensiveRecord{
		Status: types.StageSuccess,
		Result: &types.ComprehensiveResult{Summary: "s"},
	})
	if _, ok, _ := store.FindReusableRun(ctx, maxAge); ok {
		t.Error("terminal run reported as reusable")
	}

	// Too-old unfinished run: not reusable.
	store2 := NewMemoryStore()
	_, _ = store2.CreateRun(ctx, newRun(2*time.Hour))
	if _, ok, _ := store2.FindReusableRun(ctx, maxAge); ok {
		t.Error("stale run reported as reusable")
	}
}

func TestMemoryStoreLatestRunTracksFinalize(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := newRun(10 * time.Minute)
	firstID, _ := store.CreateRun(ctx, first)
	second := newRun(0)
	secondID, _ := store.CreateRun(ctx, second)

	latest, ok, _ := store.LatestRun(ctx)
	if !ok || latest.RunID != secondID {
		t.Fatalf("latest run = %v, want %s", latest, secondID)
	}

	first.Comprehensive = &types.ComprehensiveRecord{Status: types.StageSuccess}
	if err := store.FinalizeRun(ctx, first); err != nil {
		t.Fatalf("FinalizeRun() error: %v", err)
	}
	latest, _, _ = store.LatestRun(ctx)
	if latest.RunID != firstID {
		t.Errorf("FinalizeRun did not move the latest pointer: got %s", latest.RunID)
	}
}
