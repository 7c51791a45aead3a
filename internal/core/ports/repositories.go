// Package ports defines the interfaces (ports) for the hexagonal architecture.
// These interfaces decouple the scheduling core from infrastructure.
package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/domain"
)

// TaskRepository defines the interface for task persistence.
type TaskRepository interface {
	// Create persists a new task.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update updates an existing task.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task.
	Delete(ctx context.Context, id uuid.UUID) error

	// List retrieves tasks with optional filtering.
	List(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// ListScheduledByMachine retrieves all tasks holding a window on the
	// machine, ordered by start time. Used to rebuild queue state.
	ListScheduledByMachine(ctx context.Context, machineID uuid.UUID) ([]*domain.Task, error)

	// UpdateSchedules commits schedule changes for a batch of tasks in a
	// single transaction: all rows update or none do.
	UpdateSchedules(ctx context.Context, tasks []*domain.Task) error
}

// TaskFilter defines filtering options for task queries.
type TaskFilter struct {
	Status     *domain.TaskStatus
	MachineID  *uuid.UUID
	Department string
	WorkCenter string
	Limit      int
	Offset     int
}

// MachineRepository defines the interface for machine persistence.
type MachineRepository interface {
	// Create persists a new machine.
	Create(ctx context.Context, machine *domain.Machine) error

	// GetByID retrieves a machine by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Machine, error)

	// GetByName retrieves a machine by its unique name.
	GetByName(ctx context.Context, name string) (*domain.Machine, error)

	// Update updates an existing machine, including its unavailable hours.
	Update(ctx context.Context, machine *domain.Machine) error

	// Delete removes a machine.
	Delete(ctx context.Context, id uuid.UUID) error

	// List retrieves all machines, ordered by name.
	List(ctx context.Context) ([]*domain.Machine, error)
}
