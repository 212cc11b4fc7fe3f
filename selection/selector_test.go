package selection

import (
	"fmt"
	"testing"
	"time"

	"marketbrief/config"
	"marketbrief/types"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// enriched builds a candidate that clears the relevance floor.
func enriched(id, marketTag string, macroScore, confidence float64) *types.Candidate {
	return &types.Candidate{
		ID:          id,
		Title:       "headline " + id,
		MarketTags:  []string{marketTag},
		Confidence:  confidence,
		PublishedAt: testNow.Add(-2 * time.Hour),
		Metadata: &types.CandidateMetadata{
			Severity:   "medium",
			MacroScore: macroScore,
		},
	}
}

// unenriched builds a tagged candidate with no metadata.
func unenriched(id, marketTag string, confidence float64) *types.Candidate {
	return &types.Candidate{
		ID:          id,
		Title:       "headline " + id,
		MarketTags:  []string{marketTag},
		Confidence:  confidence,
		PublishedAt: testNow.Add(-2 * time.Hour),
	}
}

func TestSelectExcludesUntaggedAndOrdersByScore(t *testing.T) {
	pool := make([]*types.Candidate, 0, 10)
	for i := 0; i < 6; i++ {
		pool = append(pool, enriched(fmt.Sprintf("tagged-%d", i), fmt.Sprintf("market-%d", i), 0.6, 0.5+float64(i)*0.05))
	}
	for i := 0; i < 4; i++ {
		pool = append(pool, &types.Candidate{
			ID:          fmt.Sprintf("untagged-%d", i),
			Title:       "no tags here",
			Confidence:  0.99,
			PublishedAt: testNow.Add(-time.Hour),
		})
	}

	selected := Select(pool, 5, testNow)

	if len(selected) != 5 {
		t.Fatalf("expected 5 selected, got %d", len(selected))
	}
	for _, sc := range selected {
		if len(sc.Candidate.MarketTags) == 0 {
			t.Errorf("untagged candidate %s selected", sc.Candidate.ID)
		}
	}
	for i := 1; i < len(selected); i++ {
		if selected[i].Score > selected[i-1].Score {
			t.Errorf("selection not ordered by descending score at index %d: %.3f > %.3f",
				i, selected[i].Score, selected[i-1].Score)
		}
	}
}

func TestSelectDeterministic(t *testing.T) {
	pool := []*types.Candidate{
		enriched("a", "equities", 0.6, 0.7),
		enriched("b", "rates", 0.8, 0.6),
		enriched("c", "fx", 0.5, 0.9),
		unenriched("d", "commodities", 0.8),
	}
	reversed := []*types.Candidate{pool[3], pool[2], pool[1], pool[0]}

	first := Select(pool, 3, testNow)
	second := Select(reversed, 3, testNow)

	if len(first) != len(second) {
		t.Fatalf("selection size differs across input orders: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Candidate.ID != second[i].Candidate.ID {
			t.Errorf("position %d differs across input orders: %s vs %s",
				i, first[i].Candidate.ID, second[i].Candidate.ID)
		}
	}
}

func TestSelectEnforcesSignatureDiversity(t *testing.T) {
	// Five strong candidates share one signature; two weaker ones have
	// distinct signatures. With limit 3 the distinct ones must make it.
	pool := []*types.Candidate{
		enriched("dup-1", "equities", 0.9, 0.9),
		enriched("dup-2", "equities", 0.9, 0.85),
		enriched("dup-3", "equities", 0.9, 0.8),
		enriched("dup-4", "equities", 0.9, 0.75),
		enriched("dup-5", "equities", 0.9, 0.7),
		enriched("other-1", "rates", 0.5, 0.4),
		enriched("other-2", "fx", 0.5, 0.4),
	}

	selected := Select(pool, 3, testNow)

	if len(selected) != 3 {
		t.Fatalf("expected 3 selected, got %d", len(selected))
	}
	signatures := map[string]int{}
	for _, sc := range selected {
		signatures[sc.PrimarySignature]++
	}
	if len(signatures) != 3 {
		t.Errorf("expected 3 distinct signatures, got %d (%v)", len(signatures), signatures)
	}
}

func TestSelectBackfillsWhenSignaturesRunOut(t *testing.T) {
	pool := []*types.Candidate{
		enriched("a-1", "equities", 0.9, 0.9),
		enriched("a-2", "equities", 0.9, 0.8),
		enriched("a-3", "equities", 0.9, 0.7),
		enriched("b-1", "rates", 0.9, 0.9),
	}

	selected := Select(pool, 4, testNow)

	if len(selected) != 4 {
		t.Fatalf("expected backfill to fill all 4 slots, got %d", len(selected))
	}
}

func TestSelectRelevanceFloor(t *testing.T) {
	belowFloor := enriched("below", "equities", 0.1, 0.9)
	belowFloor.Metadata.Severity = "nonsense" // falls back to zero severity score
	atFloor := enriched("at", "rates", config.MinMacroScore, 0.1)
	noMeta := unenriched("nometa", "fx", 0.1)

	selected := Select([]*types.Candidate{belowFloor, atFloor, noMeta}, 10, testNow)

	ids := map[string]bool{}
	for _, sc := range selected {
		ids[sc.Candidate.ID] = true
	}
	if ids["below"] {
		t.Error("enriched candidate below the relevance floor was selected")
	}
	if !ids["at"] {
		t.Error("enriched candidate at the floor was excluded")
	}
	if !ids["nometa"] {
		t.Error("unenriched candidate was excluded by the floor")
	}
}

func TestScoreConfidenceMonotonic(t *testing.T) {
	low := unenriched("low", "equities", 0.2)
	high := unenriched("high", "equities", 0.9)

	if Score(low, testNow) >= Score(high, testNow) {
		t.Error("higher confidence did not raise the score")
	}
}

func TestScoreMissingMetadataPenalty(t *testing.T) {
	with := enriched("with", "equities", 0.6, 0.5)
	without := unenriched("without", "equities", 0.5)

	if Score(without, testNow) >= Score(with, testNow) {
		t.Error("unenriched candidate outscored an otherwise identical enriched one")
	}
}

func TestScoreRecencyDecay(t *testing.T) {
	fresh := unenriched("fresh", "equities", 0.5)
	fresh.PublishedAt = testNow.Add(-1 * time.Hour)
	stale := unenriched("stale", "equities", 0.5)
	stale.PublishedAt = testNow.Add(-20 * time.Hour)
	ancient := unenriched("ancient", "equities", 0.5)
	ancient.PublishedAt = testNow.Add(-30 * time.Hour)

	if Score(fresh, testNow) <= Score(stale, testNow) {
		t.Error("fresher candidate did not outscore a staler one")
	}
	// Beyond the recency window the bonus bottoms out at zero rather than
	// going negative.
	veryAncient := unenriched("very-ancient", "equities", 0.5)
	veryAncient.PublishedAt = testNow.Add(-300 * time.Hour)
	if Score(ancient, testNow) != Score(veryAncient, testNow) {
		t.Error("recency term kept decaying past the window")
	}
}

func TestScoreBroadestTagLevelWins(t *testing.T) {
	market := unenriched("market", "equities", 0.5)
	narrow := &types.Candidate{
		ID:           "narrow",
		Title:        "headline narrow",
		IndustryTags: []string{"banking"},
		Confidence:   0.5,
		PublishedAt:  market.PublishedAt,
	}

	if Score(market, testNow) <= Score(narrow, testNow) {
		t.Error("market-level tagging did not outscore industry-only tagging")
	}
}

func TestPrimarySignature(t *testing.T) {
	tests := []struct {
		name string
		c    *types.Candidate
		want string
	}{
		{
			name: "market tag wins",
			c:    &types.Candidate{MarketTags: []string{" Equities "}, IndustryTags: []string{"banking"}},
			want: "equities",
		},
		{
			name: "falls through to category",
			c:    &types.Candidate{CategoryTags: []string{"policy"}},
			want: "policy",
		},
		{
			name: "title fallback is truncated",
			c:    &types.Candidate{Title: "A Very Long Headline That Keeps Going And Going Past The Signature Limit"},
			want: "a very long headline that keeps going and going ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrimarySignature(tt.c); got != tt.want {
				t.Errorf("PrimarySignature() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPoolSize(t *testing.T) {
	if got := PoolSize(10); got != 30 {
		t.Errorf("PoolSize(10) = %d, want 30", got)
	}
	if got := PoolSize(100); got != config.CandidatePoolHardCap {
		t.Errorf("PoolSize(100) = %d, want hard cap %d", got, config.CandidatePoolHardCap)
	}
}
