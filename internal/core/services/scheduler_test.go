package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/domain"
)

func newTestScheduler(now time.Time) (*Scheduler, *mockTaskRepository, *mockMachineRepository, *fakeClock) {
	tasks := newMockTaskRepository()
	machines := newMockMachineRepository()
	clock := &fakeClock{now: now}
	logger := &NopLogger{}
	scheduler := NewScheduler(tasks, machines, NewQueueStore(), clock, NewEventService(logger), logger)
	return scheduler, tasks, machines, clock
}

// alwaysOnMachine runs all three shifts, so availability never interferes.
func alwaysOnMachine(machines *mockMachineRepository, name string) *domain.Machine {
	m := domain.NewMachine(name, "EXT-A", "film", domain.AllShifts)
	machines.Create(context.Background(), m)
	return m
}

// newQtyTask has cycle 1.2 min/piece and no setup: 100 pieces take 2 hours.
func newQtyTask(tasks *mockTaskRepository, order string, qty int) *domain.Task {
	task := domain.NewTask(order, domain.Phase{Name: "extrusion", CycleMinutes: 1.2, HourlyRate: 40}, qty, "film", "EXT-A")
	m := ComputeMetrics(task.Phase, qty)
	task.SetMetrics(m.DurationHours, m.Cost)
	tasks.Create(context.Background(), task)
	return task
}

func assertQueueInvariants(t *testing.T, s *Scheduler, machineID uuid.UUID) {
	t.Helper()
	q := s.Queue(machineID)
	for i := 1; i < len(q); i++ {
		if q[i].Window.Start.Before(q[i-1].Window.Start) {
			t.Errorf("Queue order does not match start times at index %d", i)
		}
		if q[i-1].Window.Overlaps(q[i].Window) {
			t.Errorf("Queue entries %d and %d overlap", i-1, i)
		}
	}
}

func TestScheduleToSlot(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s, tasks, machines, _ := newTestScheduler(now)
	machine := alwaysOnMachine(machines, "EXT-01")
	task := newQtyTask(tasks, "PO-1", 100)

	res, err := s.ScheduleToSlot(context.Background(), task.ID, machine.ID, "2026-03-02", 8, 0, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !res.Success || res.Conflict != nil {
		t.Fatal("Expected success")
	}

	updated := res.UpdatedTask
	if updated.Status != domain.TaskStatusScheduled {
		t.Errorf("Expected status SCHEDULED, got %s", updated.Status)
	}
	wantStart := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if !updated.StartAt.Equal(wantStart) || !updated.EndAt.Equal(wantStart.Add(2*time.Hour)) {
		t.Errorf("Unexpected window %v-%v", updated.StartAt, updated.EndAt)
	}

	if s.store.IndexOf(machine.ID, task.ID) != 0 {
		t.Error("Task should be in the machine queue")
	}

	persisted, _ := tasks.GetByID(context.Background(), task.ID)
	if persisted.Status != domain.TaskStatusScheduled {
		t.Error("Schedule should be persisted")
	}
	assertQueueInvariants(t, s, machine.ID)
}

func TestScheduleToSlotDurationOverride(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s, tasks, machines, _ := newTestScheduler(now)
	machine := alwaysOnMachine(machines, "EXT-01")
	task := newQtyTask(tasks, "PO-1", 100)

	// A partially completed task is placed with its remaining work.
	override := 0.5
	res, err := s.ScheduleToSlot(context.Background(), task.ID, machine.ID, "2026-03-02", 8, 30, &override)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	wantEnd := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if !res.UpdatedTask.EndAt.Equal(wantEnd) {
		t.Errorf("Expected end %v, got %v", wantEnd, res.UpdatedTask.EndAt)
	}
}

// Scenario: scheduling into an occupied slot returns a conflict naming the
// occupant and leaves every queue unchanged.
func TestScheduleToSlotConflict(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s, tasks, machines, _ := newTestScheduler(now)
	machine := alwaysOnMachine(machines, "EXT-01")

	taskA := newQtyTask(tasks, "PO-A", 100) // 2h
	if _, err := s.ScheduleToSlot(context.Background(), taskA.ID, machine.ID, "2026-03-02", 8, 0, nil); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	before := s.Queue(machine.ID)

	taskC := newQtyTask(tasks, "PO-C", 75) // 1.5h, requested 09:00-10:30
	res, err := s.ScheduleToSlot(context.Background(), taskC.ID, machine.ID, "2026-03-02", 9, 0, nil)
	if err != nil {
		t.Fatalf("Conflicts are data, not errors: %v", err)
	}
	if res.Success || res.Conflict == nil {
		t.Fatal("Expected a conflict")
	}
	if res.Conflict.TaskID == nil || *res.Conflict.TaskID != taskA.ID {
		t.Error("Conflict should name task A")
	}

	if !reflect.DeepEqual(before, s.Queue(machine.ID)) {
		t.Error("Failed scheduling must leave the queue unchanged")
	}
	persisted, _ := tasks.GetByID(context.Background(), taskC.ID)
	if persisted.Status != domain.TaskStatusNotScheduled || persisted.MachineID != nil {
		t.Error("Task C must remain untouched after a conflict")
	}
}

func TestScheduleToSlotUnavailable(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s, tasks, machines, _ := newTestScheduler(now)
	machine := domain.NewMachine("EXT-01", "EXT-A", "film", []domain.Shift{domain.ShiftT1})
	machines.Create(context.Background(), machine)
	task := newQtyTask(tasks, "PO-1", 100)

	// 13:00-15:00 runs past the end of T1.
	res, err := s.ScheduleToSlot(context.Background(), task.ID, machine.ID, "2026-03-02", 13, 0, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Conflict == nil || res.Conflict.Reason != domain.ConflictMachineUnavailable {
		t.Error("Expected an availability conflict")
	}
}

func TestScheduleToSlotValidation(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s, tasks, machines, _ := newTestScheduler(now)
	machine := alwaysOnMachine(machines, "EXT-01")

	task := domain.NewTask("PO-X", domain.Phase{}, 0, "film", "EXT-A")
	tasks.Create(context.Background(), task)

	_, err := s.ScheduleToSlot(context.Background(), task.ID, machine.ID, "2026-03-02", 8, 0, nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Expected ValidationError, got %v", err)
	}

	_, err = s.ScheduleToSlot(context.Background(), uuid.Must(uuid.NewV7()), machine.ID, "2026-03-02", 8, 0, nil)
	var nferr *domain.NotFoundError
	if !errors.As(err, &nferr) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
}

// Unschedule followed by reschedule to the identical slot restores the
// original window exactly.
func TestUnscheduleThenRescheduleRestoresWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s, tasks, machines, _ := newTestScheduler(now)
	machine := alwaysOnMachine(machines, "EXT-01")
	task := newQtyTask(tasks, "PO-1", 100)

	first, err := s.ScheduleToSlot(context.Background(), task.ID, machine.ID, "2026-03-02", 8, 15, nil)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	origStart, origEnd := *first.UpdatedTask.StartAt, *first.UpdatedTask.EndAt

	if _, err := s.Unschedule(context.Background(), task.ID); err != nil {
		t.Fatalf("Unschedule failed: %v", err)
	}
	if len(s.Queue(machine.ID)) != 0 {
		t.Error("Queue should be empty after unschedule")
	}
	persisted, _ := tasks.GetByID(context.Background(), task.ID)
	if persisted.Status != domain.TaskStatusNotScheduled {
		t.Error("Task should revert to NOT_SCHEDULED")
	}

	second, err := s.ScheduleToSlot(context.Background(), task.ID, machine.ID, "2026-03-02", 8, 15, nil)
	if err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if !second.UpdatedTask.StartAt.Equal(origStart) || !second.UpdatedTask.EndAt.Equal(origEnd) {
		t.Error("Reschedule to the identical slot must restore the original window")
	}
}

func TestUnscheduleInProgressRefused(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s, tasks, machines, _ := newTestScheduler(now)
	machine := alwaysOnMachine(machines, "EXT-01")
	task := newQtyTask(tasks, "PO-1", 100)

	if _, err := s.ScheduleToSlot(context.Background(), task.ID, machine.ID, "2026-03-02", 8, 0, nil); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	started, _ := tasks.GetByID(context.Background(), task.ID)
	started.MarkInProgress()
	tasks.Update(context.Background(), started)

	_, err := s.Unschedule(context.Background(), task.ID)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Unscheduling an in-progress task must be refused, got %v", err)
	}
	if len(s.Queue(machine.ID)) != 1 {
		t.Error("Queue must be unchanged")
	}
}

func TestScheduleAtEndEmptyQueue(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	s, tasks, machines, _ := newTestScheduler(now)
	machine := alwaysOnMachine(machines, "EXT-01")
	task := newQtyTask(tasks, "PO-1", 100)

	res, err := s.ScheduleAtEnd(context.Background(), task.ID, machine.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !res.UpdatedTask.StartAt.Equal(now) {
		t.Errorf("Empty queue should start at now, got %v", res.UpdatedTask.StartAt)
	}
}

func TestScheduleAtEndAfterTail(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s, tasks, machines, _ := newTestScheduler(now)
	machine := alwaysOnMachine(machines, "EXT-01")

	first := newQtyTask(tasks, "PO-1", 100)
	if _, err := s.ScheduleToSlot(context.Background(), first.ID, machine.ID, "2026-03-02", 8, 0, nil); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	second := newQtyTask(tasks, "PO-2", 50)
	res, err := s.ScheduleAtEnd(context.Background(), second.ID, machine.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	wantStart := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if !res.UpdatedTask.StartAt.Equal(wantStart) {
		t.Errorf("Expected start at queue tail %v, got %v", wantStart, res.UpdatedTask.StartAt)
	}
	assertQueueInvariants(t, s, machine.ID)
}

func TestScheduleAtEndSkipsUnavailableHours(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s, tasks, machines, _ := newTestScheduler(now)
	machine := domain.NewMachine("EXT-01", "EXT-A", "film", []domain.Shift{domain.ShiftT1})
	machines.Create(context.Background(), machine)

	first := newQtyTask(tasks, "PO-1", 300) // 6h: 06:00-12:00
	if _, err := s.ScheduleToSlot(context.Background(), first.ID, machine.ID, "2026-03-02", 6, 0, nil); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	// 3h do not fit into the remaining 12:00-14:00 of T1; the next feasible
	// contiguous window is the start of T1 the following day.
	second := newQtyTask(tasks, "PO-2", 150)
	res, err := s.ScheduleAtEnd(context.Background(), second.ID, machine.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	wantStart := time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC)
	if !res.UpdatedTask.StartAt.Equal(wantStart) {
		t.Errorf("Expected start %v, got %v", wantStart, res.UpdatedTask.StartAt)
	}
}

func TestScheduleAtEndUsesRemainingWork(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	s, tasks, machines, _ := newTestScheduler(now)
	machine := alwaysOnMachine(machines, "EXT-01")

	task := newQtyTask(tasks, "PO-1", 100) // 2h nominal
	half, _ := tasks.GetByID(context.Background(), task.ID)
	half.RecordProduction(50)
	tasks.Update(context.Background(), half)

	res, err := s.ScheduleAtEnd(context.Background(), task.ID, machine.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := res.UpdatedTask.EndAt.Sub(*res.UpdatedTask.StartAt); got != time.Hour {
		t.Errorf("Half-completed task should be placed with 1h of remaining work, got %v", got)
	}
}
