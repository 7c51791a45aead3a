package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/domain"
	"github.com/planfab/planfab/internal/core/ports"
)

// Mock implementations

type mockTaskRepository struct {
	tasks       map[uuid.UUID]*domain.Task
	updateError error
	batchError  error
}

func newMockTaskRepository() *mockTaskRepository {
	return &mockTaskRepository{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

func (m *mockTaskRepository) put(task *domain.Task) {
	clone := *task
	m.tasks[task.ID] = &clone
}

func (m *mockTaskRepository) Create(_ context.Context, task *domain.Task) error {
	m.put(task)
	return nil
}

func (m *mockTaskRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "task", ID: id}
	}
	clone := *task
	return &clone, nil
}

func (m *mockTaskRepository) Update(_ context.Context, task *domain.Task) error {
	if m.updateError != nil {
		return m.updateError
	}
	m.put(task)
	return nil
}

func (m *mockTaskRepository) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.tasks, id)
	return nil
}

func (m *mockTaskRepository) List(_ context.Context, _ ports.TaskFilter) ([]*domain.Task, error) {
	result := make([]*domain.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		clone := *task
		result = append(result, &clone)
	}
	return result, nil
}

func (m *mockTaskRepository) ListScheduledByMachine(_ context.Context, machineID uuid.UUID) ([]*domain.Task, error) {
	var result []*domain.Task
	for _, task := range m.tasks {
		if task.MachineID != nil && *task.MachineID == machineID && task.StartAt != nil {
			clone := *task
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartAt.Before(*result[j].StartAt)
	})
	return result, nil
}

func (m *mockTaskRepository) UpdateSchedules(_ context.Context, tasks []*domain.Task) error {
	if m.batchError != nil {
		return m.batchError
	}
	for _, task := range tasks {
		m.put(task)
	}
	return nil
}

var _ ports.TaskRepository = (*mockTaskRepository)(nil)

type mockMachineRepository struct {
	machines map[uuid.UUID]*domain.Machine
}

func newMockMachineRepository() *mockMachineRepository {
	return &mockMachineRepository{
		machines: make(map[uuid.UUID]*domain.Machine),
	}
}

func (m *mockMachineRepository) Create(_ context.Context, machine *domain.Machine) error {
	m.machines[machine.ID] = machine
	return nil
}

func (m *mockMachineRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Machine, error) {
	machine, ok := m.machines[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "machine", ID: id}
	}
	return machine, nil
}

func (m *mockMachineRepository) GetByName(_ context.Context, name string) (*domain.Machine, error) {
	for _, machine := range m.machines {
		if machine.Name == name {
			return machine, nil
		}
	}
	return nil, &domain.NotFoundError{Kind: "machine"}
}

func (m *mockMachineRepository) Update(_ context.Context, machine *domain.Machine) error {
	m.machines[machine.ID] = machine
	return nil
}

func (m *mockMachineRepository) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.machines, id)
	return nil
}

func (m *mockMachineRepository) List(_ context.Context) ([]*domain.Machine, error) {
	result := make([]*domain.Machine, 0, len(m.machines))
	for _, machine := range m.machines {
		result = append(result, machine)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

var _ ports.MachineRepository = (*mockMachineRepository)(nil)

// fakeClock returns a fixed instant so compaction is reproducible.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

var _ ports.Clock = (*fakeClock)(nil)
