package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/domain"
	"github.com/planfab/planfab/internal/core/ports"
)

// CascadeResequencer compacts a machine's queue after an upstream task's
// duration shrinks, propagating the freed time to downstream tasks that have
// not started yet. Plans are computed against a queue snapshot and committed
// by the scheduler as a single batch.
type CascadeResequencer struct {
	tasks    ports.TaskRepository
	detector *ConflictDetector
	clock    ports.Clock
}

// NewCascadeResequencer creates a resequencer over the task repository.
func NewCascadeResequencer(tasks ports.TaskRepository, detector *ConflictDetector, clock ports.Clock) *CascadeResequencer {
	return &CascadeResequencer{tasks: tasks, detector: detector, clock: clock}
}

// Plan walks the queue in start order after the edited entry and proposes
// compacted windows:
//
//   - each task moves to max(now, previous task's end), closing the gap left
//     by the shrink but never starting in the past;
//   - the walk stops at the first IN_PROGRESS task (its window is fixed) or
//     at the first task that would not move;
//   - every proposed window is validated against availability only — the
//     batch's own entries cannot conflict since they shift as one unit.
//
// Plan mutates nothing: it returns the shifted task snapshots and the full
// replacement queue, or a ConsistencyError naming the task that cannot be
// placed.
func (c *CascadeResequencer) Plan(ctx context.Context, machine *domain.Machine, queue []domain.QueueEntry, editedIdx int, newEnd time.Time) ([]*domain.Task, []domain.QueueEntry, error) {
	now := c.clock.Now().UTC()

	newQueue := make([]domain.QueueEntry, len(queue))
	copy(newQueue, queue)
	newQueue[editedIdx].Window.End = newEnd

	batchIDs := make([]uuid.UUID, len(queue))
	for i, e := range queue {
		batchIDs[i] = e.TaskID
	}

	shifted := make([]*domain.Task, 0, len(queue)-editedIdx-1)
	prevEnd := newEnd
	for i := editedIdx + 1; i < len(queue); i++ {
		task, err := c.tasks.GetByID(ctx, queue[i].TaskID)
		if err != nil {
			return nil, nil, err
		}
		if task.Status == domain.TaskStatusInProgress {
			// Fixed block: this task and everything after it stays put.
			break
		}

		newStart := prevEnd
		if newStart.Before(now) {
			newStart = now
		}
		if !newStart.Before(queue[i].Window.Start) {
			// No gap left to close.
			break
		}

		window := domain.Window{Start: newStart, End: newStart.Add(queue[i].Window.Duration())}
		if conflict := c.detector.Check(machine, window, batchIDs...); conflict != nil {
			return nil, nil, &domain.ConsistencyError{
				MachineID: machine.ID,
				Reason:    fmt.Sprintf("shifted task %s lands on an unavailable window", task.OrderNumber),
			}
		}

		task.ShiftWindow(window)
		shifted = append(shifted, task)
		newQueue[i].Window = window
		prevEnd = window.End
	}

	return shifted, newQueue, nil
}
