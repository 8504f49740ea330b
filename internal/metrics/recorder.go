package metrics

import "time"

// OutcomeLabel is the queue outcome of one worker cycle.
type OutcomeLabel string

const (
	OutcomeSucceeded OutcomeLabel = "succeeded"
	OutcomeFailed    OutcomeLabel = "failed"
	OutcomeSkipped   OutcomeLabel = "skipped"
)

// Recorder receives queue and build observations. Implementations must be safe
// for concurrent use.
type Recorder interface {
	IncQueueOutcome(outcome OutcomeLabel)
	ObserveBuildDuration(status string, d time.Duration)
	AddEnqueued(n int)
	SetQueueEligible(n int64)
}

// NoopRecorder is used when metrics are disabled.
type NoopRecorder struct{}

func (NoopRecorder) IncQueueOutcome(OutcomeLabel)               {}
func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) AddEnqueued(int)                            {}
func (NoopRecorder) SetQueueEligible(int64)                     {}
