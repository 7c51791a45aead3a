package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/domain"
	"github.com/planfab/planfab/internal/core/ports"
)

// TaskService handles the production-order lifecycle outside of window
// placement. Scheduling itself lives in Scheduler.
type TaskService struct {
	repo   ports.TaskRepository
	store  *QueueStore
	logger ports.Logger
}

// NewTaskService creates a new task service.
func NewTaskService(repo ports.TaskRepository, store *QueueStore, logger ports.Logger) *TaskService {
	return &TaskService{
		repo:   repo,
		store:  store,
		logger: logger,
	}
}

// Create registers a new production order with computed duration and cost.
func (s *TaskService) Create(ctx context.Context, orderNumber string, phase domain.Phase, requiredQty int, department, workCenter string) (*domain.Task, error) {
	if orderNumber == "" {
		return nil, &domain.ValidationError{Field: "order_number", Reason: "must not be empty"}
	}
	if requiredQty <= 0 {
		return nil, &domain.ValidationError{Field: "required_qty", Reason: "must be positive"}
	}
	if phase.CycleMinutes <= 0 {
		return nil, &domain.ValidationError{Field: "phase", Reason: "cycle minutes must be positive"}
	}

	task := domain.NewTask(orderNumber, phase, requiredQty, department, workCenter)
	m := ComputeMetrics(phase, requiredQty)
	task.SetMetrics(m.DurationHours, m.Cost)

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info("Task created", "id", task.ID, "order", orderNumber, "duration_hours", task.DurationHours)
	return task, nil
}

// Get retrieves a task by ID.
func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.repo.GetByID(ctx, id)
}

// List lists tasks with optional filtering.
func (s *TaskService) List(ctx context.Context, filter ports.TaskFilter) ([]*domain.Task, error) {
	return s.repo.List(ctx, filter)
}

// Start records the production-start event. From this point the task's
// window is fixed and cascades stop at it.
func (s *TaskService) Start(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if task.Status != domain.TaskStatusScheduled {
		return nil, &domain.ValidationError{Field: "status", Reason: "only a scheduled task can start production"}
	}

	task.MarkInProgress()
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}

	s.logger.Info("Task started", "id", task.ID, "order", task.OrderNumber)
	return task, nil
}

// Progress adds produced pieces to the completed quantity.
func (s *TaskService) Progress(ctx context.Context, id uuid.UUID, pieces int) (*domain.Task, error) {
	if pieces <= 0 {
		return nil, &domain.ValidationError{Field: "pieces", Reason: "must be positive"}
	}

	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if task.Status != domain.TaskStatusInProgress {
		return nil, &domain.ValidationError{Field: "status", Reason: "task is not in progress"}
	}

	task.RecordProduction(pieces)
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Complete finishes the task and frees its queue slot. The committed window
// is kept on the record for history.
func (s *TaskService) Complete(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch task.Status {
	case domain.TaskStatusScheduled, domain.TaskStatusInProgress:
	default:
		return nil, &domain.ValidationError{Field: "status", Reason: "task is not scheduled or in progress"}
	}

	task.MarkCompleted()
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}

	if task.MachineID != nil {
		s.store.Remove(*task.MachineID, task.ID)
	}

	s.logger.Info("Task completed", "id", task.ID, "order", task.OrderNumber)
	return task, nil
}

// Delete removes a task that holds no queue slot.
func (s *TaskService) Delete(ctx context.Context, id uuid.UUID) error {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	switch task.Status {
	case domain.TaskStatusScheduled, domain.TaskStatusInProgress:
		return &domain.ValidationError{Field: "status", Reason: "unschedule the task before deleting it"}
	}

	return s.repo.Delete(ctx, id)
}
