package types

import (
	"testing"
	"time"
)

func TestUsageStatsAdd(t *testing.T) {
	total := UsageStats{InputTokens: 10, OutputTokens: 5, Calls: 1}
	total.Add(UsageStats{InputTokens: 90, OutputTokens: 45, Calls: 2})

	if total.InputTokens != 100 || total.OutputTokens != 50 || total.Calls != 3 {
		t.Errorf("Add() = %+v", total)
	}
}

func TestRunStateTerminal(t *testing.T) {
	run := &RunState{}
	if run.Terminal() {
		t.Error("run without synthesis record is terminal")
	}

	run.Comprehensive = &ComprehensiveRecord{Status: StageRunning}
	if run.Terminal() {
		t.Error("running synthesis is terminal")
	}

	run.Comprehensive.Status = StageFailed
	if !run.Terminal() {
		t.Error("failed synthesis is not terminal")
	}

	run.Comprehensive.Status = StageSuccess
	if !run.Terminal() {
		t.Error("successful synthesis is not terminal")
	}
}

func TestRunStateReusable(t *testing.T) {
	now := time.Now()
	maxAge := 45 * time.Minute

	young := &RunState{GeneratedAt: now.Add(-10 * time.Minute)}
	if !young.Reusable(now, maxAge) {
		t.Error("young unfinished run not reusable")
	}

	old := &RunState{GeneratedAt: now.Add(-2 * time.Hour)}
	if old.Reusable(now, maxAge) {
		t.Error("stale run reusable")
	}

	done := &RunState{
		GeneratedAt:   now.Add(-10 * time.Minute),
		Comprehensive: &ComprehensiveRecord{Status: StageSuccess},
	}
	if done.Reusable(now, maxAge) {
		t.Error("terminal run reusable")
	}
}

func TestGenerateID(t *testing.T) {
	a := GenerateID("https://example.com/story-1")
	b := GenerateID("https://example.com/story-1")
	c := GenerateID("https://example.com/story-2")

	if a != b {
		t.Error("GenerateID is not deterministic")
	}
	if a == c {
		t.Error("GenerateID collides on distinct input")
	}
	if len(a) != 16 {
		t.Errorf("GenerateID length = %d, want 16", len(a))
	}
}
