package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"

	"marketbrief/oracle"
	"marketbrief/types"
)

const comprehensiveOutputInstruction = `Respond with JSON only, no other text:
{
  "bias": "bullish|bearish|neutral",
  "confidence": 0.0,
  "summary": "3-5 sentence consolidated view",
  "key_signals": ["signal 1", "signal 2"],
  "position_guidance": "one sentence on positioning",
  "scenarios": [
    {"name": "base case", "probability": 0.0, "description": "..."}
  ]
}`

// synthesize consolidates the successful stage outcomes into one
// comprehensive view. Unlike stage parsing, the synthesis response is parsed
// strictly: a malformed answer fails the run.
func (s *Service) synthesize(ctx context.Context, run *types.RunState, successful []types.StageOutcome) (*types.ComprehensiveResult, types.UsageStats, error) {
	rec := &types.ComprehensiveRecord{
		Status:    types.StageRunning,
		StartedAt: s.now(),
	}
	run.Comprehensive = rec
	s.checkpointComprehensive(ctx, run.RunID, rec)

	prompt := synthesisPrompt(run, successful)
	raw, usage, err := s.invokeWithTimeout(ctx, prompt, s.cfg.SynthesisTimeout)
	rec.Usage = usage
	rec.FinishedAt = s.now()

	if err != nil {
		rec.Status = types.StageFailed
		rec.Error = err.Error()
		s.checkpointComprehensive(ctx, run.RunID, rec)
		return nil, usage, err
	}

	result, err := oracle.ParseComprehensive(raw)
	if err != nil {
		rec.Status = types.StageFailed
		rec.Error = err.Error()
		s.checkpointComprehensive(ctx, run.RunID, rec)
		return nil, usage, err
	}

	rec.Status = types.StageSuccess
	rec.Result = result
	s.checkpointComprehensive(ctx, run.RunID, rec)
	return result, usage, nil
}

// synthesisPrompt embeds each successful stage's structured output. Failed
// stages are named but contribute no content, so the oracle knows which
// perspectives are missing.
func synthesisPrompt(run *types.RunState, successful []types.StageOutcome) string {
	var b strings.Builder
	b.WriteString("You are the chief strategist. Consolidate the analyst notes below into ")
	b.WriteString("one market view for the window ")
	b.WriteString(run.WindowStart.UTC().Format("2006-01-02 15:04"))
	b.WriteString(" to ")
	b.WriteString(run.WindowEnd.UTC().Format("2006-01-02 15:04 MST"))
	b.WriteString(". Weigh the notes against each other; where they disagree, say which side the evidence favors.")

	for _, o := range successful {
		fmt.Fprintf(&b, "\n\n## %s", o.Title)
		if o.Result == nil {
			continue
		}
		if o.Result.Bias != "" {
			fmt.Fprintf(&b, "\nBias: %s (confidence %.2f)", o.Result.Bias, o.Result.Confidence)
		}
		fmt.Fprintf(&b, "\n%s", strings.TrimSpace(o.Result.Analysis))
		for _, h := range o.Result.Highlights {
			fmt.Fprintf(&b, "\n- %s", h)
		}
	}

	if missing := missingStageTitles(run, successful); len(missing) > 0 {
		fmt.Fprintf(&b, "\n\nNo notes available from: %s.", strings.Join(missing, ", "))
	}

	b.WriteString("\n\n")
	b.WriteString(comprehensiveOutputInstruction)
	return b.String()
}

func missingStageTitles(run *types.RunState, successful []types.StageOutcome) []string {
	have := make(map[string]bool, len(successful))
	for _, o := range successful {
		have[o.Key] = true
	}
	var missing []string
	for _, def := range Definitions() {
		if !have[def.Key] {
			missing = append(missing, def.Title)
		}
	}
	return missing
}

// checkpointComprehensive persists a synthesis transition; write failures
// are logged, not fatal.
func (s *Service) checkpointComprehensive(ctx context.Context, runID string, rec *types.ComprehensiveRecord) {
	if err := s.checkpoints.UpdateComprehensive(ctx, runID, rec); err != nil {
		log.Printf("Warning: failed to checkpoint synthesis (run %s): %v", runID, err)
	}
}
