package progress

import (
	"log"

	"marketbrief/types"
)

// Reporter is a sink for orchestration progress events. Side-effect only:
// implementations must never block the orchestrator and have no control
// flow impact on the run.
type Reporter interface {
	OnProgress(event types.ProgressEvent)
}

// LogReporter writes progress events to the standard logger.
type LogReporter struct{}

// OnProgress logs the event.
func (LogReporter) OnProgress(event types.ProgressEvent) {
	log.Printf("[%3.0f%%] %s", event.Fraction*100, event.Message)
}

// MultiReporter fans one event out to several reporters.
type MultiReporter []Reporter

// OnProgress delivers the event to every reporter in order.
func (m MultiReporter) OnProgress(event types.ProgressEvent) {
	for _, r := range m {
		r.OnProgress(event)
	}
}

// NopReporter discards all events.
type NopReporter struct{}

// OnProgress does nothing.
func (NopReporter) OnProgress(types.ProgressEvent) {}
