package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError rejects a request before any conflict detection runs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a referenced task or machine that does not exist.
type NotFoundError struct {
	Kind string
	ID   uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// CrossMachineError rejects a reorder whose task belongs to a different
// machine's queue. Reordering never moves a task between machines.
type CrossMachineError struct {
	TaskID    uuid.UUID
	MachineID uuid.UUID
}

func (e *CrossMachineError) Error() string {
	return fmt.Sprintf("task %s is not queued on machine %s", e.TaskID, e.MachineID)
}

// ConsistencyError aborts a multi-record commit that cannot complete without
// violating a queue invariant. The whole batch is rolled back.
type ConsistencyError struct {
	MachineID uuid.UUID
	Reason    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("queue for machine %s cannot be resequenced: %s", e.MachineID, e.Reason)
}
