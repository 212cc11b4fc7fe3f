package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"marketbrief/config"
	"marketbrief/types"
)

// Shared context field keys stage definitions may reference.
const (
	FieldWindow    = "window"
	FieldHeadlines = "headlines"
	FieldMacro     = "macro_events"
	FieldSector    = "sector_events"
	FieldRisk      = "risk_events"
	FieldFlow      = "flow_events"
	FieldSentiment = "sentiment_snapshot"
)

// StageDefinition statically describes one analytical stage of the
// pipeline: which shared-context fields it reads and the instruction text
// sent to the oracle. Defined once per pipeline version.
type StageDefinition struct {
	Key            string
	Title          string
	InputKeys      []string
	PromptTemplate string
}

const stageOutputInstruction = `Respond with JSON only, no other text:
{
  "analysis": "2-4 sentence assessment",
  "highlights": ["key point 1", "key point 2"],
  "bias": "bullish|bearish|neutral",
  "confidence": 0.0,
  "key_metrics": {"metric name": "value"}
}`

// Definitions returns the pipeline's stage list in fixed execution order.
func Definitions() []StageDefinition {
	return []StageDefinition{
		{
			Key:       "macro_policy",
			Title:     "Macro & Policy",
			InputKeys: []string{FieldWindow, FieldMacro},
			PromptTemplate: "You are a macro strategist. Assess the policy and macroeconomic " +
				"developments below and their likely effect on risk assets over the next week.",
		},
		{
			Key:       "market_sentiment",
			Title:     "Market Sentiment",
			InputKeys: []string{FieldWindow, FieldHeadlines, FieldSentiment},
			PromptTemplate: "You are a market sentiment analyst. Judge the overall market mood " +
				"from the headlines and sentiment snapshot below: what is the crowd leaning " +
				"toward, and where is it most likely wrong?",
		},
		{
			Key:       "sector_rotation",
			Title:     "Sector Rotation",
			InputKeys: []string{FieldWindow, FieldSector},
			PromptTemplate: "You are an equity sector strategist. From the sector and industry " +
				"news below, identify which sectors are attracting or losing capital and why.",
		},
		{
			Key:       "risk_events",
			Title:     "Risk Events",
			InputKeys: []string{FieldWindow, FieldRisk},
			PromptTemplate: "You are a risk analyst. Evaluate the events below for tail-risk " +
				"potential: what could escalate, what is priced in, and what is being ignored.",
		},
		{
			Key:       "liquidity_flows",
			Title:     "Liquidity & Flows",
			InputKeys: []string{FieldWindow, FieldFlow},
			PromptTemplate: "You are a flows and liquidity analyst. Assess funding conditions, " +
				"positioning and cross-asset flows implied by the items below.",
		},
	}
}

// SharedContext carries the per-run fields stages project their payloads
// from. Stages must not see fields outside their InputKeys.
type SharedContext struct {
	Fields map[string]string
}

// BuildContext assembles the shared context from the selected candidates.
func BuildContext(selected []types.ScoredCandidate, windowStart, windowEnd time.Time) SharedContext {
	fields := map[string]string{
		FieldWindow: fmt.Sprintf("%s to %s",
			windowStart.UTC().Format("2006-01-02 15:04 MST"),
			windowEnd.UTC().Format("2006-01-02 15:04 MST")),
	}

	var all, macro, sector, risk, flow []string
	for i, sc := range selected {
		line := headlineLine(i+1, sc)
		all = append(all, line)

		cat := primaryCategory(sc.Candidate)
		switch cat {
		case "policy", "macro":
			macro = append(macro, line)
		case "geopolitical", "regulatory":
			risk = append(risk, line)
		case "liquidity":
			flow = append(flow, line)
		}
		if sc.Candidate.Metadata != nil {
			switch strings.ToLower(sc.Candidate.Metadata.Severity) {
			case "critical", "high":
				if cat != "geopolitical" && cat != "regulatory" {
					risk = append(risk, line)
				}
			}
		}
		if len(sc.Candidate.IndustryTags) > 0 || len(sc.Candidate.ThemeTags) > 0 {
			sector = append(sector, line)
		}
		for _, tag := range sc.Candidate.MarketTags {
			if t := strings.ToLower(tag); t == "rates" || t == "fx" {
				flow = append(flow, line)
				break
			}
		}
	}

	setIfAny := func(key string, lines []string) {
		if len(lines) > 0 {
			fields[key] = strings.Join(dedupeLines(lines), "\n")
		}
	}
	setIfAny(FieldHeadlines, all)
	setIfAny(FieldMacro, macro)
	setIfAny(FieldSector, sector)
	setIfAny(FieldRisk, risk)
	setIfAny(FieldFlow, flow)
	fields[FieldSentiment] = sentimentSnapshot(selected)

	return SharedContext{Fields: fields}
}

func headlineLine(n int, sc types.ScoredCandidate) string {
	c := sc.Candidate
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s", n, strings.TrimSpace(c.Title))
	if s := strings.TrimSpace(c.Summary); s != "" {
		fmt.Fprintf(&b, " — %s", truncate(s, 240))
	} else if a := strings.TrimSpace(c.Analysis); a != "" {
		fmt.Fprintf(&b, " — %s", truncate(a, 240))
	}
	if sig := sc.PrimarySignature; sig != "" && len(sig) < config.TitleSignatureLength {
		fmt.Fprintf(&b, " [%s]", sig)
	}
	return b.String()
}

func primaryCategory(c *types.Candidate) string {
	if c.Metadata != nil && c.Metadata.EventCategory != "" {
		return strings.ToLower(strings.TrimSpace(c.Metadata.EventCategory))
	}
	if len(c.CategoryTags) > 0 {
		return strings.ToLower(strings.TrimSpace(c.CategoryTags[0]))
	}
	return ""
}

func sentimentSnapshot(selected []types.ScoredCandidate) string {
	if len(selected) == 0 {
		return "no candidates this window"
	}
	var confidenceSum float64
	severe := 0
	categories := map[string]int{}
	for _, sc := range selected {
		confidenceSum += sc.Candidate.Confidence
		if cat := primaryCategory(sc.Candidate); cat != "" {
			categories[cat]++
		}
		if m := sc.Candidate.Metadata; m != nil {
			switch strings.ToLower(m.Severity) {
			case "critical", "high":
				severe++
			}
		}
	}

	keys := make([]string, 0, len(categories))
	for k := range categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s x%d", k, categories[k]))
	}

	return fmt.Sprintf("%d headlines, avg analyzer confidence %.2f, %d high-severity; categories: %s",
		len(selected), confidenceSum/float64(len(selected)), severe, strings.Join(parts, ", "))
}

// projectPayload returns only the fields a stage's InputKeys name. Keys
// absent from the context are simply omitted; the renderer emits an empty
// section for them rather than failing the stage.
func projectPayload(shared SharedContext, inputKeys []string) map[string]string {
	payload := make(map[string]string, len(inputKeys))
	for _, key := range inputKeys {
		if v, ok := shared.Fields[key]; ok {
			payload[key] = v
		}
	}
	return payload
}

// renderPrompt renders the stage instruction followed by one titled section
// per input key, in definition order, and the output shape instruction.
func renderPrompt(def StageDefinition, payload map[string]string) string {
	var b strings.Builder
	b.WriteString(def.PromptTemplate)
	for _, key := range def.InputKeys {
		b.WriteString("\n\n## ")
		b.WriteString(sectionTitle(key))
		b.WriteString("\n")
		if section := strings.TrimSpace(payload[key]); section != "" {
			b.WriteString(section)
		} else {
			b.WriteString("(no data for this window)")
		}
	}
	b.WriteString("\n\n")
	b.WriteString(stageOutputInstruction)
	return b.String()
}

func sectionTitle(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// fallbackAnalysis builds a deterministic fact summary straight from the
// stage's own context slice, used when the oracle returns a placeholder
// answer. No oracle call, no fabricated data: just the facts we already
// hold, or nothing.
func fallbackAnalysis(def StageDefinition, shared SharedContext) string {
	for _, key := range def.InputKeys {
		if key == FieldWindow {
			continue
		}
		section := strings.TrimSpace(shared.Fields[key])
		if section == "" {
			continue
		}
		lines := strings.Split(section, "\n")
		if len(lines) > 3 {
			lines = lines[:3]
		}
		return fmt.Sprintf("Notable items this window: %s", strings.Join(lines, " | "))
	}
	return ""
}

func dedupeLines(lines []string) []string {
	seen := make(map[string]bool, len(lines))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
