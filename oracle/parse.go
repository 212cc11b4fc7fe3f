package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"marketbrief/types"
)

// Alias tables mapping known synonym keys onto canonical fields. Kept
// separate from the parsing logic so new synonyms can be added without
// touching control flow.
var stageFieldAliases = map[string][]string{
	"analysis":    {"analysis", "summary", "assessment", "commentary", "text", "overview"},
	"highlights":  {"highlights", "key_points", "keypoints", "bullets", "signals", "takeaways"},
	"bias":        {"bias", "stance", "direction", "outlook", "sentiment"},
	"confidence":  {"confidence", "conviction", "certainty", "confidence_score"},
	"key_metrics": {"key_metrics", "metrics", "figures", "numbers", "data_points"},
}

var comprehensiveFieldAliases = map[string][]string{
	"bias":              {"bias", "stance", "direction", "outlook", "overall_bias"},
	"confidence":        {"confidence", "conviction", "certainty", "confidence_score"},
	"summary":           {"summary", "analysis", "overview", "executive_summary"},
	"key_signals":       {"key_signals", "signals", "key_points", "highlights", "drivers"},
	"position_guidance": {"position_guidance", "positioning", "guidance", "recommendation", "position"},
	"scenarios":         {"scenarios", "paths", "outcomes", "cases"},
}

// placeholderPhrases flag oracle output that admits it has nothing to say.
// Matching is case-insensitive substring.
var placeholderPhrases = []string{
	"insufficient data",
	"insufficient information",
	"not enough information",
	"not enough data",
	"no data available",
	"no information available",
	"unable to provide",
	"cannot provide an analysis",
	"n/a",
}

// CleanJSON strips markdown fences and surrounding prose, returning the
// first top-level JSON object found, or the trimmed input if none is.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// IsPlaceholderAnalysis reports whether an analysis string is empty or one
// of the known "no useful content" phrasings.
func IsPlaceholderAnalysis(analysis string) bool {
	trimmed := strings.TrimSpace(analysis)
	if trimmed == "" {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range placeholderPhrases {
		if phrase == "n/a" {
			if lower == "n/a" || lower == "na" || lower == "none" {
				return true
			}
			continue
		}
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// ParseStageResult parses raw oracle output into the canonical stage shape.
// Lenient: output that isn't JSON at all is kept verbatim as the analysis
// text rather than discarded (stage parsing never fabricates data).
func ParseStageResult(raw string) *types.StageResult {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &fields); err != nil {
		return &types.StageResult{Analysis: strings.TrimSpace(raw)}
	}

	result := &types.StageResult{}
	if v, ok := resolveField(fields, stageFieldAliases["analysis"]); ok {
		result.Analysis = strings.TrimSpace(asString(v))
	}
	if v, ok := resolveField(fields, stageFieldAliases["highlights"]); ok {
		result.Highlights = asStringList(v)
	}
	if v, ok := resolveField(fields, stageFieldAliases["bias"]); ok {
		result.Bias = strings.TrimSpace(asString(v))
	}
	if v, ok := resolveField(fields, stageFieldAliases["confidence"]); ok {
		result.Confidence = asFloat(v)
	}
	if v, ok := resolveField(fields, stageFieldAliases["key_metrics"]); ok {
		result.KeyMetrics = asStringMap(v)
	}

	// A JSON blob with none of the known keys still carries the raw text.
	if result.Analysis == "" && len(result.Highlights) == 0 {
		result.Analysis = strings.TrimSpace(raw)
	}
	return result
}

// ParseComprehensive parses the synthesis output into the fixed comprehensive
// shape. Strict: a response without a usable summary is an error, since the
// run has no meaningful deliverable without it.
func ParseComprehensive(raw string) (*types.ComprehensiveResult, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &fields); err != nil {
		return nil, fmt.Errorf("synthesis output is not valid JSON: %w", err)
	}

	result := &types.ComprehensiveResult{}
	if v, ok := resolveField(fields, comprehensiveFieldAliases["bias"]); ok {
		result.Bias = strings.TrimSpace(asString(v))
	}
	if v, ok := resolveField(fields, comprehensiveFieldAliases["confidence"]); ok {
		result.Confidence = asFloat(v)
	}
	if v, ok := resolveField(fields, comprehensiveFieldAliases["summary"]); ok {
		result.Summary = strings.TrimSpace(asString(v))
	}
	if v, ok := resolveField(fields, comprehensiveFieldAliases["key_signals"]); ok {
		result.KeySignals = asStringList(v)
	}
	if v, ok := resolveField(fields, comprehensiveFieldAliases["position_guidance"]); ok {
		result.PositionGuidance = strings.TrimSpace(asString(v))
	}
	if v, ok := resolveField(fields, comprehensiveFieldAliases["scenarios"]); ok {
		result.Scenarios = asScenarios(v)
	}

	if result.Summary == "" {
		return nil, errors.New("synthesis output has no summary field")
	}
	return result, nil
}

// resolveField returns the first alias present in the parsed fields.
func resolveField(fields map[string]any, aliases []string) (any, bool) {
	for _, alias := range aliases {
		if v, ok := fields[alias]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := asString(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

func asStringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := strings.TrimSpace(asString(e)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(t, ";") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64); err == nil {
			if f > 1 {
				return f / 100
			}
			return f
		}
	}
	return 0
}

func asStringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, e := range m {
		if s := strings.TrimSpace(asString(e)); s != "" {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func asScenarios(v any) []types.Scenario {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]types.Scenario, 0, len(list))
	for _, e := range list {
		switch t := e.(type) {
		case map[string]any:
			sc := types.Scenario{
				Name:        strings.TrimSpace(asString(t["name"])),
				Description: strings.TrimSpace(asString(t["description"])),
			}
			if sc.Description == "" {
				sc.Description = strings.TrimSpace(asString(t["detail"]))
			}
			if p, found := t["probability"]; found {
				sc.Probability = asFloat(p)
			}
			if sc.Name != "" || sc.Description != "" {
				out = append(out, sc)
			}
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, types.Scenario{Description: s})
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
