package candidates

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"marketbrief/types"
)

const (
	extractWorkerCount = 5
	extractorTimeout   = 30 * time.Second
	maxExcerptLength   = 600
)

// FeedPresets maps friendly names to market news RSS feed URLs.
var FeedPresets = map[string]string{
	"cnbc":        "https://www.cnbc.com/id/100003114/device/rss/rss.html",
	"marketwatch": "https://feeds.marketwatch.com/marketwatch/topstories/",
	"investing":   "https://www.investing.com/rss/news.rss",
	"ft":          "https://www.ft.com/markets?format=rss",
}

// ResolveFeedURL resolves a feed identifier to a URL. Preset names map to
// their configured URL; anything else is assumed to be a direct URL.
func ResolveFeedURL(feedInput string) string {
	if url, exists := FeedPresets[feedInput]; exists {
		return url
	}
	return feedInput
}

// RSSStore is a Store implementation that pulls candidates from RSS/Atom
// feeds. Feed items carry no enrichment metadata, so the resulting
// candidates take the unenriched scoring path; tags are derived from item
// categories and title keywords so selection still has signal to work with.
type RSSStore struct {
	feeds       []string
	maxPerFeed  int
	extractText bool
}

// NewRSSStore creates a store over the given feed URLs or preset names.
// When extractText is true, full article text is fetched with readability
// and used as the candidate's analysis excerpt.
func NewRSSStore(feeds []string, maxPerFeed int, extractText bool) *RSSStore {
	resolved := make([]string, 0, len(feeds))
	for _, f := range feeds {
		if f = strings.TrimSpace(f); f != "" {
			resolved = append(resolved, ResolveFeedURL(f))
		}
	}
	if maxPerFeed <= 0 {
		maxPerFeed = 50
	}
	return &RSSStore{feeds: resolved, maxPerFeed: maxPerFeed, extractText: extractText}
}

// Query fetches all configured feeds and returns the candidates published
// within the window, up to limit.
func (s *RSSStore) Query(ctx context.Context, windowStart, windowEnd time.Time, limit int) ([]*types.Candidate, error) {
	if len(s.feeds) == 0 {
		return nil, fmt.Errorf("no feeds configured")
	}

	parser := gofeed.NewParser()
	var out []*types.Candidate
	var lastErr error

	for _, feedURL := range s.feeds {
		feed, err := parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			log.Printf("Warning: failed to fetch feed %s: %v", feedURL, err)
			lastErr = err
			continue
		}

		count := 0
		for _, item := range feed.Items {
			if count >= s.maxPerFeed {
				break
			}
			c := itemToCandidate(item, feed.Title)
			if !c.PublishedAt.IsZero() {
				if c.PublishedAt.Before(windowStart) || c.PublishedAt.After(windowEnd) {
					continue
				}
			}
			out = append(out, c)
			count++
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	if len(out) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all feeds failed: %w", lastErr)
	}

	if s.extractText {
		s.extractAll(out)
	}
	return out, nil
}

// itemToCandidate maps a feed item onto the candidate shape. RSS items have
// no enrichment service behind them, so Metadata stays nil and confidence
// gets a neutral default.
func itemToCandidate(item *gofeed.Item, source string) *types.Candidate {
	id := item.GUID
	if id == "" && item.Link != "" {
		id = types.GenerateID(item.Link)
	}
	if id == "" {
		id = types.GenerateID(item.Title)
	}

	var publishedAt time.Time
	if item.PublishedParsed != nil {
		publishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		publishedAt = *item.UpdatedParsed
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	c := &types.Candidate{
		ID:          id,
		Title:       item.Title,
		Summary:     summary,
		URL:         item.Link,
		Source:      source,
		PublishedAt: publishedAt,
		FetchedAt:   time.Now(),
		Confidence:  0.5,
	}
	deriveTags(c, item.Categories)
	return c
}

// Keyword tables for tag derivation from feed categories and titles.
// Broadest matches win market-level tags; the rest land on industry/theme.
var (
	marketKeywords = map[string]string{
		"stocks":      "equities",
		"equities":    "equities",
		"markets":     "equities",
		"bonds":       "rates",
		"treasury":    "rates",
		"rates":       "rates",
		"currencies":  "fx",
		"forex":       "fx",
		"fx":          "fx",
		"commodities": "commodities",
		"oil":         "commodities",
		"gold":        "commodities",
		"crypto":      "crypto",
		"bitcoin":     "crypto",
	}
	industryKeywords = map[string]string{
		"banks":         "banking",
		"banking":       "banking",
		"tech":          "technology",
		"technology":    "technology",
		"energy":        "energy",
		"retail":        "retail",
		"healthcare":    "healthcare",
		"pharma":        "healthcare",
		"autos":         "automotive",
		"semiconductor": "semiconductors",
		"chips":         "semiconductors",
	}
	categoryKeywords = map[string]string{
		"fed":          "policy",
		"central bank": "policy",
		"ecb":          "policy",
		"boj":          "policy",
		"rate cut":     "policy",
		"rate hike":    "policy",
		"inflation":    "macro",
		"gdp":          "macro",
		"jobs report":  "macro",
		"unemployment": "macro",
		"regulation":   "regulatory",
		"antitrust":    "regulatory",
		"sanctions":    "geopolitical",
		"tariff":       "geopolitical",
		"war":          "geopolitical",
		"liquidity":    "liquidity",
		"earnings":     "earnings",
		"merger":       "corporate",
		"acquisition":  "corporate",
		"ipo":          "corporate",
	}
)

// deriveTags scans feed categories and the title for known keywords and
// fills the candidate's tag lists. Purely heuristic; real enrichment comes
// from an upstream analyzer when one is wired in.
func deriveTags(c *types.Candidate, categories []string) {
	haystack := strings.ToLower(c.Title)
	for _, cat := range categories {
		haystack += " " + strings.ToLower(cat)
	}

	appendMatch := func(dst *[]string, tag string) {
		for _, existing := range *dst {
			if existing == tag {
				return
			}
		}
		*dst = append(*dst, tag)
	}

	for keyword, tag := range marketKeywords {
		if strings.Contains(haystack, keyword) {
			appendMatch(&c.MarketTags, tag)
		}
	}
	for keyword, tag := range industryKeywords {
		if strings.Contains(haystack, keyword) {
			appendMatch(&c.IndustryTags, tag)
		}
	}
	for keyword, tag := range categoryKeywords {
		if strings.Contains(haystack, keyword) {
			appendMatch(&c.CategoryTags, tag)
		}
	}
}

// extractAll fetches full article text for candidates using a worker pool
// and stores a bounded excerpt as the candidate's analysis text. Extraction
// failures are logged and skipped; the feed summary still carries signal.
func (s *RSSStore) extractAll(candidates []*types.Candidate) {
	var wg sync.WaitGroup
	work := make(chan *types.Candidate, len(candidates))

	for i := 0; i < extractWorkerCount; i++ {
		go func(workerID int) {
			for c := range work {
				if err := extractText(c); err != nil {
					log.Printf("[Worker %d] Failed to extract %s: %v", workerID, c.URL, err)
				}
				wg.Done()
			}
		}(i)
	}

	for _, c := range candidates {
		if c.URL == "" {
			continue
		}
		wg.Add(1)
		work <- c
	}

	wg.Wait()
	close(work)
}

func extractText(c *types.Candidate) error {
	article, err := readability.FromURL(c.URL, extractorTimeout)
	if err != nil {
		return fmt.Errorf("readability extraction failed: %w", err)
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > maxExcerptLength {
		text = text[:maxExcerptLength]
	}
	c.Analysis = text
	return nil
}
