package orchestrator

import (
	"strings"
	"testing"
	"time"

	"marketbrief/types"
)

func scored(title, market, category, severity string) types.ScoredCandidate {
	c := &types.Candidate{
		ID:           types.GenerateID(title),
		Title:        title,
		Summary:      "summary of " + title,
		MarketTags:   []string{market},
		CategoryTags: []string{category},
		Confidence:   0.6,
	}
	if severity != "" {
		c.Metadata = &types.CandidateMetadata{
			Severity:      severity,
			MacroScore:    0.7,
			EventCategory: category,
		}
	}
	return types.ScoredCandidate{Candidate: c, Score: 1, PrimarySignature: market}
}

func testWindow() (time.Time, time.Time) {
	end := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return end.Add(-24 * time.Hour), end
}

func TestBuildContextClassifiesCandidates(t *testing.T) {
	start, end := testWindow()
	selected := []types.ScoredCandidate{
		scored("Fed holds rates steady", "rates", "policy", "high"),
		scored("Chipmaker beats estimates", "equities", "earnings", ""),
		scored("Strait shipping disrupted", "commodities", "geopolitical", "critical"),
	}

	shared := BuildContext(selected, start, end)

	headlines := shared.Fields[FieldHeadlines]
	for _, title := range []string{"Fed holds rates steady", "Chipmaker beats estimates", "Strait shipping disrupted"} {
		if !strings.Contains(headlines, title) {
			t.Errorf("headlines missing %q", title)
		}
	}

	if macro := shared.Fields[FieldMacro]; !strings.Contains(macro, "Fed holds") || strings.Contains(macro, "Chipmaker") {
		t.Errorf("macro section misclassified: %q", macro)
	}
	if risk := shared.Fields[FieldRisk]; !strings.Contains(risk, "Strait shipping") {
		t.Errorf("risk section missing geopolitical item: %q", risk)
	}
	// High severity routes to risk too, but only once per item.
	if risk := shared.Fields[FieldRisk]; strings.Count(risk, "Strait shipping") != 1 {
		t.Errorf("risk section duplicated an item: %q", risk)
	}
	if flow := shared.Fields[FieldFlow]; !strings.Contains(flow, "Fed holds") {
		t.Errorf("rates-tagged item missing from flow section: %q", flow)
	}
	if !strings.Contains(shared.Fields[FieldWindow], "2026-03-09") {
		t.Errorf("window field = %q", shared.Fields[FieldWindow])
	}
}

func TestProjectPayloadEnforcesStageIsolation(t *testing.T) {
	shared := SharedContext{Fields: map[string]string{
		FieldWindow:    "w",
		FieldHeadlines: "h",
		FieldMacro:     "m",
		FieldRisk:      "r",
	}}

	payload := projectPayload(shared, []string{FieldWindow, FieldMacro})

	if len(payload) != 2 {
		t.Fatalf("payload has %d fields, want 2: %v", len(payload), payload)
	}
	if _, leaked := payload[FieldHeadlines]; leaked {
		t.Error("payload leaked a field outside the stage's input keys")
	}
}

func TestRenderPromptMissingFieldYieldsEmptySection(t *testing.T) {
	def := Definitions()[0] // macro stage reads window + macro events
	shared := SharedContext{Fields: map[string]string{FieldWindow: "w"}}

	prompt := renderPrompt(def, projectPayload(shared, def.InputKeys))

	if !strings.Contains(prompt, "(no data for this window)") {
		t.Error("missing input key did not render as an empty section")
	}
	if !strings.Contains(prompt, "Respond with JSON only") {
		t.Error("prompt lost the output shape instruction")
	}
}

func TestFallbackAnalysis(t *testing.T) {
	def := Definitions()[1] // sentiment stage reads headlines
	shared := SharedContext{Fields: map[string]string{
		FieldWindow:    "w",
		FieldHeadlines: "1. First\n2. Second\n3. Third\n4. Fourth",
	}}

	got := fallbackAnalysis(def, shared)
	if !strings.HasPrefix(got, "Notable items this window:") {
		t.Fatalf("fallback = %q", got)
	}
	if strings.Contains(got, "Fourth") {
		t.Error("fallback should cap at three items")
	}

	if fallbackAnalysis(def, SharedContext{Fields: map[string]string{FieldWindow: "w"}}) != "" {
		t.Error("fallback with no content fields should be empty")
	}
}

func TestDefinitionsStableOrder(t *testing.T) {
	want := []string{"macro_policy", "market_sentiment", "sector_rotation", "risk_events", "liquidity_flows"}
	defs := Definitions()
	if len(defs) != len(want) {
		t.Fatalf("got %d stages, want %d", len(defs), len(want))
	}
	for i, def := range defs {
		if def.Key != want[i] {
			t.Errorf("stage %d = %s, want %s", i, def.Key, want[i])
		}
	}
}
