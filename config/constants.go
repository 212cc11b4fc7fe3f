package config

import "time"

// Candidate scoring weights. These values mirror the observed behavior of the
// upstream ranker; treat them as tunable parameters, not physical constants.
const (
	// MacroScoreWeight scales the enrichment macro relevance score.
	MacroScoreWeight = 5.0

	// SeverityScoreWeight scales the mapped severity weight.
	SeverityScoreWeight = 5.0

	// MissingMetadataPenalty applies when a candidate has no enrichment
	// fields at all. Keeps such candidates selectable but de-prioritized.
	MissingMetadataPenalty = -1.5

	// HighValueCategoryBonus applies when the primary event category is in
	// the high-value allow-list; OffCategoryPenalty applies to recognized
	// categories outside it. Uncategorized candidates get neither.
	HighValueCategoryBonus = 1.8
	OffCategoryPenalty     = -0.8

	// HighAuthorityBonus applies to curated high-authority subject levels
	// (central-bank/ministry tier); NamedAuthorityBonus to any other named
	// subject level.
	HighAuthorityBonus  = 1.4
	NamedAuthorityBonus = 0.3

	// TopicBreadthStep is awarded per distinct focus topic, capped at
	// TopicBreadthCap topics.
	TopicBreadthStep = 0.25
	TopicBreadthCap  = 4

	// ConfidenceWeight scales the analyzer confidence in [0,1].
	ConfidenceWeight = 4.0

	// MarketTagBonus applies when tagged at the broadest (market) level;
	// NarrowTagBonus when tagged only at a narrower level. Only the
	// broadest applicable bonus counts.
	MarketTagBonus = 3.0
	NarrowTagBonus = 1.0

	// Breadth-of-impact bonuses, each counted once if the level's entity
	// list is non-empty.
	MarketImpactBonus   = 1.2
	IndustryImpactBonus = 0.6
	ThemeImpactBonus    = 0.5

	// Recency bonus: max(0, RecencyWindowHours - ageHours) * RecencyStep.
	RecencyWindowHours = 24.0
	RecencyStep        = 0.15

	// Per-entity micro-bonuses, uncapped by design (intentionally small).
	MarketEntityBonus   = 0.15
	IndustryEntityBonus = 0.10
	ThemeEntityBonus    = 0.05
)

// Minimum-relevance floor for enriched candidates. An enriched candidate
// must clear at least one of these to stay in the pool.
const (
	MinMacroScore     = 0.45
	MinSeverityWeight = 0.5
)

// Candidate pool sizing: request limit*multiplier candidates (bounded by the
// hard cap) since filtering and dedup shrink the pool.
const (
	CandidatePoolMultiplier = 3
	CandidatePoolHardCap    = 150
)

// TitleSignatureLength bounds the truncated-title fallback dedup signature.
const TitleSignatureLength = 48

// SeverityWeights maps severity labels to their scoring weight. Unknown
// labels fall back to the raw severity score if provided.
var SeverityWeights = map[string]float64{
	"critical": 1.0,
	"high":     0.8,
	"medium":   0.55,
	"low":      0.25,
}

// HighValueCategories is the allow-list of event categories that earn the
// high-value bonus.
var HighValueCategories = map[string]bool{
	"policy":       true,
	"macro":        true,
	"liquidity":    true,
	"regulatory":   true,
	"geopolitical": true,
}

// RecognizedCategories is the full set of event categories the ranker knows
// about. Recognized categories outside the high-value list are penalized;
// anything else is treated as uncategorized.
var RecognizedCategories = map[string]bool{
	"policy":       true,
	"macro":        true,
	"liquidity":    true,
	"regulatory":   true,
	"geopolitical": true,
	"earnings":     true,
	"corporate":    true,
	"markets":      true,
	"technology":   true,
	"commodities":  true,
	"credit":       true,
	"fx":           true,
}

// HighAuthoritySubjects is the curated set of subject levels treated as
// high-authority sources.
var HighAuthoritySubjects = map[string]bool{
	"central_bank": true,
	"ministry":     true,
	"treasury":     true,
	"regulator":    true,
	"government":   true,
}

// Pipeline execution defaults.
const (
	// StageTimeout bounds a single stage oracle call; SynthesisTimeout
	// bounds the final consolidation call.
	StageTimeout     = 90 * time.Second
	SynthesisTimeout = 2 * time.Minute

	// MaxRunCacheAge is how old a non-finalized run may be and still get
	// resumed instead of starting a fresh one.
	MaxRunCacheAge = 45 * time.Minute

	// CheckpointTTL is how long finished and abandoned run state stays in
	// the checkpoint store.
	CheckpointTTL = 7 * 24 * time.Hour

	// DefaultCandidateLimit is the number of headlines fed to the pipeline
	// when the caller doesn't specify one.
	DefaultCandidateLimit = 12

	// DefaultLookback is the candidate window when the caller doesn't
	// specify one.
	DefaultLookback = 24 * time.Hour
)
