package model

// Event is a task lifecycle notification consumable by any UI. Progress events
// for a task arrive in non-decreasing percentage order; the single terminal
// event per started task is one of Completed, Failed or Cancelled. A Cancelled
// event reports the true partial percentage, which may be below the last
// progress event.
type Event interface {
	TaskIndex() int
}

// ProgressEvent carries a throttled progress update for one task
type ProgressEvent struct {
	Index    int
	Percent  float64
	Speed    string // human readable, "—" if unknown
	SpeedBPS float64
}

// CompletedEvent signals that a task finished successfully
type CompletedEvent struct {
	Index int
}

// FailedEvent signals that a task failed with a classified reason
type FailedEvent struct {
	Index  int
	Kind   ErrorKind
	Reason string
}

// CancelledEvent acknowledges a user cancellation with the partial progress
type CancelledEvent struct {
	Index   int
	Percent float64
}

func (e ProgressEvent) TaskIndex() int  { return e.Index }
func (e CompletedEvent) TaskIndex() int { return e.Index }
func (e FailedEvent) TaskIndex() int    { return e.Index }
func (e CancelledEvent) TaskIndex() int { return e.Index }

// Sink receives task events. Implementations must be safe for concurrent use;
// the scheduler invokes the sink from task workers.
type Sink func(Event)
