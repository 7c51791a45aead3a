package domain

import (
	"time"

	"github.com/google/uuid"
)

// Window is a half-open [Start, End) time interval in UTC.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow builds a window from a start and a duration in hours.
func NewWindow(start time.Time, durationHours float64) Window {
	return Window{
		Start: start,
		End:   start.Add(time.Duration(durationHours * float64(time.Hour))),
	}
}

// Overlaps reports whether two half-open windows intersect.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// QueueEntry is one scheduled task inside a machine queue.
type QueueEntry struct {
	TaskID uuid.UUID `json:"task_id"`
	Window Window    `json:"window"`
}

// ConflictReason classifies why a candidate window was rejected.
type ConflictReason string

const (
	ConflictTaskOverlap        ConflictReason = "TASK_OVERLAP"
	ConflictMachineUnavailable ConflictReason = "MACHINE_UNAVAILABLE"
)

// ScheduleConflict describes the first blocking reason found for a candidate
// window. It is expected, recoverable data, not an error: the caller presents
// it and may retry with adjusted placement.
type ScheduleConflict struct {
	// TaskID is the conflicting queue entry, nil for availability blocks.
	TaskID    *uuid.UUID     `json:"task_id,omitempty"`
	Requested Window         `json:"requested"`
	Reason    ConflictReason `json:"reason"`
}

// ScheduleResult is the envelope returned by every mutating scheduling
// operation, sufficient for callers to refresh any cached view.
type ScheduleResult struct {
	Success          bool              `json:"success"`
	Conflict         *ScheduleConflict `json:"conflict,omitempty"`
	UpdatedTask      *Task             `json:"updated_task,omitempty"`
	RescheduledTasks []*Task           `json:"rescheduled_tasks,omitempty"`
}
