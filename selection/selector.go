package selection

import (
	"sort"
	"strings"
	"time"

	"marketbrief/config"
	"marketbrief/types"
)

// Select scores, deduplicates and ranks candidates into a bounded ordered
// list for the pipeline. Pure function: no side effects, deterministic for
// identical inputs and now.
//
// Candidates without any recognized tag are excluded. Enriched candidates
// must clear the minimum-relevance floor; unenriched candidates are retained
// but penalized rather than excluded. The sorted list is walked once: the
// first candidate per primary signature takes a primary slot, the rest form
// a backfill pool drawn from only when primary slots are insufficient.
func Select(candidates []*types.Candidate, limit int, now time.Time) []types.ScoredCandidate {
	if limit <= 0 {
		return nil
	}

	scored := make([]types.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || !c.HasTags() {
			continue
		}
		if c.HasMetadata() && !clearsRelevanceFloor(c.Metadata) {
			continue
		}
		scored = append(scored, types.ScoredCandidate{
			Candidate:        c,
			Score:            Score(c, now),
			PrimarySignature: PrimarySignature(c),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		// Stable order for equal scores, independent of input order.
		return scored[i].Candidate.ID < scored[j].Candidate.ID
	})

	selected := make([]types.ScoredCandidate, 0, limit)
	backfill := make([]types.ScoredCandidate, 0, len(scored))
	used := make(map[string]bool, len(scored))

	for _, sc := range scored {
		if !used[sc.PrimarySignature] {
			used[sc.PrimarySignature] = true
			selected = append(selected, sc)
			continue
		}
		backfill = append(backfill, sc)
	}

	if len(selected) > limit {
		selected = selected[:limit]
	}
	for _, sc := range backfill {
		if len(selected) >= limit {
			break
		}
		selected = append(selected, sc)
	}

	// Backfilled entries may outrank the tail of the primary walk.
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Score != selected[j].Score {
			return selected[i].Score > selected[j].Score
		}
		return selected[i].Candidate.ID < selected[j].Candidate.ID
	})

	return selected
}

// PoolSize returns how many candidates to request from the store for a
// selection of the given limit.
func PoolSize(limit int) int {
	size := limit * config.CandidatePoolMultiplier
	if size > config.CandidatePoolHardCap {
		return config.CandidatePoolHardCap
	}
	return size
}

// Score computes the additive rank score for one candidate. Each term is
// independently justified; weights live in config as tunables.
func Score(c *types.Candidate, now time.Time) float64 {
	var score float64

	if c.HasMetadata() {
		m := c.Metadata
		score += m.MacroScore * config.MacroScoreWeight
		score += severityWeight(m) * config.SeverityScoreWeight
		score += categoryBonus(m.EventCategory)
		score += authorityBonus(m.SubjectLevel)

		topics := distinctCount(m.FocusTopics)
		if topics > config.TopicBreadthCap {
			topics = config.TopicBreadthCap
		}
		score += float64(topics) * config.TopicBreadthStep
	} else {
		score += config.MissingMetadataPenalty
	}

	score += c.Confidence * config.ConfidenceWeight

	// Only the broadest applicable tag-level bonus counts.
	switch {
	case len(c.MarketTags) > 0:
		score += config.MarketTagBonus
	case len(c.IndustryTags) > 0 || len(c.ThemeTags) > 0:
		score += config.NarrowTagBonus
	}

	if len(c.MarketTags) > 0 {
		score += config.MarketImpactBonus
	}
	if len(c.IndustryTags) > 0 {
		score += config.IndustryImpactBonus
	}
	if len(c.ThemeTags) > 0 {
		score += config.ThemeImpactBonus
	}

	score += float64(distinctCount(c.MarketTags)) * config.MarketEntityBonus
	score += float64(distinctCount(c.IndustryTags)) * config.IndustryEntityBonus
	score += float64(distinctCount(c.ThemeTags)) * config.ThemeEntityBonus

	if !c.PublishedAt.IsZero() {
		ageHours := now.Sub(c.PublishedAt).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		if remaining := config.RecencyWindowHours - ageHours; remaining > 0 {
			score += remaining * config.RecencyStep
		}
	}

	return score
}

// PrimarySignature derives the dedup key enforcing topical diversity: the
// first non-empty value among market, industry, theme and category tags,
// falling back to a truncated title.
func PrimarySignature(c *types.Candidate) string {
	for _, tags := range [][]string{c.MarketTags, c.IndustryTags, c.ThemeTags, c.CategoryTags} {
		for _, t := range tags {
			if norm := normalize(t); norm != "" {
				return norm
			}
		}
	}
	title := normalize(c.Title)
	if len(title) > config.TitleSignatureLength {
		title = title[:config.TitleSignatureLength]
	}
	return title
}

// clearsRelevanceFloor applies the minimum-relevance threshold for enriched
// candidates.
func clearsRelevanceFloor(m *types.CandidateMetadata) bool {
	return m.MacroScore >= config.MinMacroScore || severityWeight(m) >= config.MinSeverityWeight
}

// severityWeight maps the severity label to its weight, falling back to the
// raw severity score for unknown labels.
func severityWeight(m *types.CandidateMetadata) float64 {
	if w, ok := config.SeverityWeights[normalize(m.Severity)]; ok {
		return w
	}
	return m.SeverityScore
}

func categoryBonus(category string) float64 {
	cat := normalize(category)
	switch {
	case cat == "":
		return 0
	case config.HighValueCategories[cat]:
		return config.HighValueCategoryBonus
	case config.RecognizedCategories[cat]:
		return config.OffCategoryPenalty
	}
	return 0
}

func authorityBonus(subjectLevel string) float64 {
	level := normalize(subjectLevel)
	switch {
	case level == "":
		return 0
	case config.HighAuthoritySubjects[level]:
		return config.HighAuthorityBonus
	}
	return config.NamedAuthorityBonus
}

func distinctCount(values []string) int {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if norm := normalize(v); norm != "" {
			seen[norm] = true
		}
	}
	return len(seen)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
