package tui

import (
	"fmt"
	"strings"

	"marketbrief/types"
)

// View implements the tea.Model interface.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("marketbrief — insight pipeline"))
	b.WriteString("\n")

	if !m.Connected {
		b.WriteString(ErrorStyle.Render("Not connected to server"))
		b.WriteString("\n")
	}

	switch {
	case m.Generating:
		b.WriteString(WarnStyle.Render("Generating insight brief..."))
	case m.Err != nil:
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.Err)))
	default:
		b.WriteString(HighlightStyle.Render("Ready"))
		b.WriteString(InfoStyle.Render("  g: generate (resumes unfinished run)  f: force new run  q: quit"))
	}
	b.WriteString("\n\n")

	if m.Run != nil {
		b.WriteString(BoxStyle.Render(m.renderRun()))
		b.WriteString("\n")
	} else if m.Connected {
		b.WriteString(InfoStyle.Render("No runs recorded yet."))
		b.WriteString("\n")
	}

	return b.String()
}

// renderRun renders the latest checkpoint: one line per stage plus the
// synthesis summary when present.
func (m Model) renderRun() string {
	run := m.Run
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s  (%d headlines, window %s - %s)\n\n",
		run.RunID, run.HeadlineCount,
		run.WindowStart.Local().Format("Jan 2 15:04"),
		run.WindowEnd.Local().Format("Jan 2 15:04"))

	for _, key := range stageOrder(run) {
		rec := run.Stages[key]
		fmt.Fprintf(&b, "%s %s", statusGlyph(rec.Status), rec.Title)
		if rec.Status == types.StageSuccess && rec.Result != nil && rec.Result.Bias != "" {
			fmt.Fprintf(&b, "  %s", InfoStyle.Render(fmt.Sprintf("%s (%.2f)", rec.Result.Bias, rec.Result.Confidence)))
		}
		if rec.Status == types.StageFailed && rec.Error != "" {
			fmt.Fprintf(&b, "  %s", ErrorStyle.Render(rec.Error))
		}
		b.WriteString("\n")
	}

	if comp := run.Comprehensive; comp != nil {
		fmt.Fprintf(&b, "%s Synthesis\n", statusGlyph(comp.Status))
		if comp.Status == types.StageSuccess && comp.Result != nil {
			fmt.Fprintf(&b, "\n%s %s\n",
				HighlightStyle.Render(strings.ToUpper(comp.Result.Bias)),
				InfoStyle.Render(fmt.Sprintf("confidence %.2f", comp.Result.Confidence)))
			b.WriteString(comp.Result.Summary)
			b.WriteString("\n")
			for _, sig := range comp.Result.KeySignals {
				fmt.Fprintf(&b, "  • %s\n", sig)
			}
		}
	}

	return b.String()
}

func statusGlyph(status string) string {
	switch status {
	case types.StageSuccess:
		return SuccessStyle.Render("✔")
	case types.StageFailed:
		return ErrorStyle.Render("✘")
	case types.StageRunning:
		return WarnStyle.Render("…")
	default:
		return InfoStyle.Render("·")
	}
}

// stageOrder returns stage keys sorted by start time so the display is
// stable even though the state map is unordered.
func stageOrder(run *types.RunState) []string {
	keys := make([]string, 0, len(run.Stages))
	for k := range run.Stages {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && run.Stages[keys[j]].StartedAt.Before(run.Stages[keys[j-1]].StartedAt); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
