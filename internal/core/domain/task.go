// Package domain contains the core business entities of PlanFab.
// These entities are pure and have no knowledge of persistence or presentation.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the scheduling state of a production order.
type TaskStatus string

const (
	TaskStatusNotScheduled TaskStatus = "NOT_SCHEDULED"
	TaskStatusScheduled    TaskStatus = "SCHEDULED"
	TaskStatusInProgress   TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted    TaskStatus = "COMPLETED"
)

// Phase holds the production parameters a task is produced under.
// Duration and cost are always recomputed from these, never edited directly.
type Phase struct {
	Name         string  `json:"name"`
	CycleMinutes float64 `json:"cycle_minutes"`
	SetupMinutes float64 `json:"setup_minutes"`
	HourlyRate   float64 `json:"hourly_rate"`
	UnitCost     float64 `json:"unit_cost"`
	// BagStep is the number of pieces produced per bag. When set, quantities
	// are produced in whole-bag multiples.
	BagStep *int `json:"bag_step,omitempty"`
}

// Task represents a production order that must be assigned to exactly one
// machine for one contiguous time window.
type Task struct {
	ID            uuid.UUID  `json:"id"`
	OrderNumber   string     `json:"order_number"`
	Phase         Phase      `json:"phase"`
	RequiredQty   int        `json:"required_qty"`
	CompletedQty  int        `json:"completed_qty"`
	DurationHours float64    `json:"duration_hours"`
	Cost          float64    `json:"cost"`
	Status        TaskStatus `json:"status"`
	MachineID     *uuid.UUID `json:"machine_id,omitempty"`
	StartAt       *time.Time `json:"start_at,omitempty"`
	EndAt         *time.Time `json:"end_at,omitempty"`
	Department    string     `json:"department"`
	WorkCenter    string     `json:"work_center"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewTask creates a new unscheduled task.
func NewTask(orderNumber string, phase Phase, requiredQty int, department, workCenter string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:          uuid.Must(uuid.NewV7()),
		OrderNumber: orderNumber,
		Phase:       phase,
		RequiredQty: requiredQty,
		Status:      TaskStatusNotScheduled,
		Department:  department,
		WorkCenter:  workCenter,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RemainingHours derives the remaining work from completed progress.
// Remaining work is never stored; it is always duration scaled by the
// fraction of the quantity still outstanding.
func (t *Task) RemainingHours() float64 {
	if t.RequiredQty <= 0 {
		return t.DurationHours
	}
	done := float64(t.CompletedQty) / float64(t.RequiredQty)
	if done >= 1 {
		return 0
	}
	return t.DurationHours * (1 - done)
}

// Window returns the scheduled [start, end) window, or nil if unscheduled.
func (t *Task) Window() *Window {
	if t.StartAt == nil || t.EndAt == nil {
		return nil
	}
	return &Window{Start: *t.StartAt, End: *t.EndAt}
}

// SetMetrics records a fresh duration/cost computation.
func (t *Task) SetMetrics(durationHours, cost float64) {
	t.DurationHours = durationHours
	t.Cost = cost
	t.UpdatedAt = time.Now().UTC()
}

// MarkScheduled assigns the task to a machine with a committed window.
func (t *Task) MarkScheduled(machineID uuid.UUID, w Window) {
	start, end := w.Start, w.End
	t.MachineID = &machineID
	t.StartAt = &start
	t.EndAt = &end
	t.Status = TaskStatusScheduled
	t.UpdatedAt = time.Now().UTC()
}

// ShiftWindow moves the committed window without changing machine or status.
func (t *Task) ShiftWindow(w Window) {
	start, end := w.Start, w.End
	t.StartAt = &start
	t.EndAt = &end
	t.UpdatedAt = time.Now().UTC()
}

// ClearSchedule removes machine assignment and window, reverting the task to
// NOT_SCHEDULED. Duration, cost and completed quantity are preserved.
func (t *Task) ClearSchedule() {
	t.MachineID = nil
	t.StartAt = nil
	t.EndAt = nil
	t.Status = TaskStatusNotScheduled
	t.UpdatedAt = time.Now().UTC()
}

// MarkInProgress records the external production-start event. An in-progress
// window is immutable to automated cascades.
func (t *Task) MarkInProgress() {
	t.Status = TaskStatusInProgress
	t.UpdatedAt = time.Now().UTC()
}

// MarkCompleted finishes the task.
func (t *Task) MarkCompleted() {
	t.CompletedQty = t.RequiredQty
	t.Status = TaskStatusCompleted
	t.UpdatedAt = time.Now().UTC()
}

// RecordProduction adds produced pieces to the completed quantity, capped at
// the required quantity.
func (t *Task) RecordProduction(pieces int) {
	t.CompletedQty += pieces
	if t.CompletedQty > t.RequiredQty {
		t.CompletedQty = t.RequiredQty
	}
	t.UpdatedAt = time.Now().UTC()
}
