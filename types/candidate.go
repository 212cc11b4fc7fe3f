package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Candidate represents one unit of input evidence (a news-like record)
// considered for inclusion in a brief run. Candidates are immutable once
// fetched; the pipeline only reads them.
type Candidate struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Analysis    string    `json:"analysis,omitempty"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	FetchedAt   time.Time `json:"fetched_at"`

	// Tag lists from broadest (market) to narrowest (theme), plus broad
	// event categories. A candidate with no tags at any level is not
	// eligible for selection.
	MarketTags   []string `json:"market_tags,omitempty"`
	IndustryTags []string `json:"industry_tags,omitempty"`
	ThemeTags    []string `json:"theme_tags,omitempty"`
	CategoryTags []string `json:"category_tags,omitempty"`

	// Confidence reported by the upstream analyzer, in [0,1].
	Confidence float64 `json:"confidence"`

	// Metadata carries enrichment fields. Nil means the candidate has not
	// been enriched yet; it stays selectable but is penalized in scoring.
	Metadata *CandidateMetadata `json:"metadata,omitempty"`
}

// CandidateMetadata holds the enrichment fields an upstream analyzer may
// attach to a candidate. All fields are optional.
type CandidateMetadata struct {
	Severity      string   `json:"severity,omitempty"` // critical|high|medium|low
	SeverityScore float64  `json:"severity_score,omitempty"`
	MacroScore    float64  `json:"macro_score,omitempty"` // [0,1]
	EventCategory string   `json:"event_category,omitempty"`
	SubjectLevel  string   `json:"subject_level,omitempty"`
	FocusTopics   []string `json:"focus_topics,omitempty"`
}

// HasMetadata reports whether any enrichment fields are present.
func (c *Candidate) HasMetadata() bool {
	return c.Metadata != nil
}

// HasTags reports whether the candidate carries at least one tag at any level.
func (c *Candidate) HasTags() bool {
	return len(c.MarketTags) > 0 || len(c.IndustryTags) > 0 ||
		len(c.ThemeTags) > 0 || len(c.CategoryTags) > 0
}

// ScoredCandidate pairs a candidate with its computed rank score and the
// signature used to enforce topical diversity during selection. Created per
// run by the selector and discarded after selection.
type ScoredCandidate struct {
	Candidate        *Candidate `json:"candidate"`
	Score            float64    `json:"score"`
	PrimarySignature string     `json:"primary_signature"`
}

// GenerateID creates a stable short ID from a source URL or title.
func GenerateID(seed string) string {
	hash := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(hash[:])[:16]
}
