package services

import (
	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/domain"
)

// ConflictDetector finds the first blocking reason for a candidate window.
// It never mutates state: a nil result is a point-in-time answer, valid only
// until the caller commits under the machine's write lock.
type ConflictDetector struct {
	store *QueueStore
}

// NewConflictDetector creates a detector reading committed queue state.
func NewConflictDetector(store *QueueStore) *ConflictDetector {
	return &ConflictDetector{store: store}
}

// Check scans the machine's queue for an overlapping entry, then the
// machine's availability for every hour the window touches. Entries whose
// task id is in ignore are skipped, so a task can be rescheduled over its
// own current window and batch proposals can be validated against
// availability alone.
func (d *ConflictDetector) Check(machine *domain.Machine, candidate domain.Window, ignore ...uuid.UUID) *domain.ScheduleConflict {
	skip := make(map[uuid.UUID]bool, len(ignore))
	for _, id := range ignore {
		skip[id] = true
	}

	for _, entry := range d.store.Queue(machine.ID) {
		if skip[entry.TaskID] {
			continue
		}
		if entry.Window.Overlaps(candidate) {
			taskID := entry.TaskID
			return &domain.ScheduleConflict{
				TaskID:    &taskID,
				Requested: candidate,
				Reason:    domain.ConflictTaskOverlap,
			}
		}
	}

	if at := FirstUnavailable(machine, candidate); at != nil {
		return &domain.ScheduleConflict{
			Requested: candidate,
			Reason:    domain.ConflictMachineUnavailable,
		}
	}

	return nil
}
