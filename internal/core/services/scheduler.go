package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/domain"
	"github.com/planfab/planfab/internal/core/ports"
)

// schedulingHorizon bounds the forward search for an end-of-queue slot.
const schedulingHorizon = 28 * 24 * time.Hour

// Scheduler orchestrates every mutating queue operation. All writes against
// one machine are serialized through a per-machine mutex; operations on
// different machines proceed in parallel. "Detect conflict, then commit" is
// atomic with respect to other writers on the same machine.
type Scheduler struct {
	tasks    ports.TaskRepository
	machines ports.MachineRepository
	store    *QueueStore
	detector *ConflictDetector
	cascade  *CascadeResequencer
	clock    ports.Clock
	events   *EventService
	logger   ports.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewScheduler creates the scheduling engine over its collaborators.
func NewScheduler(
	tasks ports.TaskRepository,
	machines ports.MachineRepository,
	store *QueueStore,
	clock ports.Clock,
	events *EventService,
	logger ports.Logger,
) *Scheduler {
	detector := NewConflictDetector(store)
	return &Scheduler{
		tasks:    tasks,
		machines: machines,
		store:    store,
		detector: detector,
		cascade:  NewCascadeResequencer(tasks, detector, clock),
		clock:    clock,
		events:   events,
		logger:   logger,
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// machineLock returns the mutex serializing writes for one machine.
func (s *Scheduler) machineLock(machineID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[machineID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[machineID] = l
	}
	return l
}

// lockMachines acquires locks for the given machines in a deterministic
// order, so a reschedule spanning two machines cannot deadlock.
func (s *Scheduler) lockMachines(ids ...uuid.UUID) func() {
	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	sort.Slice(unique, func(i, j int) bool {
		return unique[i].String() < unique[j].String()
	})

	held := make([]*sync.Mutex, 0, len(unique))
	for _, id := range unique {
		l := s.machineLock(id)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// Rebuild hydrates the queue store from persisted schedules for every
// machine. Called once at daemon start.
func (s *Scheduler) Rebuild(ctx context.Context) error {
	machines, err := s.machines.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list machines: %w", err)
	}
	for _, m := range machines {
		tasks, err := s.tasks.ListScheduledByMachine(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("failed to load queue for %s: %w", m.Name, err)
		}
		s.store.Rebuild(m.ID, tasks)
	}
	return nil
}

// Queue returns a snapshot of a machine's committed queue.
func (s *Scheduler) Queue(machineID uuid.UUID) []domain.QueueEntry {
	return s.store.Queue(machineID)
}

// validateSchedulable rejects tasks that may not receive a new window.
func validateSchedulable(task *domain.Task) error {
	switch task.Status {
	case domain.TaskStatusInProgress:
		return &domain.ValidationError{Field: "status", Reason: "task is in progress; its window is fixed"}
	case domain.TaskStatusCompleted:
		return &domain.ValidationError{Field: "status", Reason: "task is already completed"}
	}
	if task.RequiredQty <= 0 {
		return &domain.ValidationError{Field: "required_qty", Reason: "task has no quantity to produce"}
	}
	if task.Phase.CycleMinutes <= 0 {
		return &domain.ValidationError{Field: "phase", Reason: "task has no production phase parameters"}
	}
	return nil
}

// ScheduleToSlot places a task at an explicit (date, hour, minute) slot in
// UTC. The duration override exists so a partially completed task can be
// scheduled with its remaining work instead of the nominal duration. On
// conflict the result carries the descriptor and nothing is mutated.
func (s *Scheduler) ScheduleToSlot(ctx context.Context, taskID, machineID uuid.UUID, date string, hour, minute int, durationOverride *float64) (*domain.ScheduleResult, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	machine, err := s.machines.GetByID(ctx, machineID)
	if err != nil {
		return nil, err
	}
	if err := validateSchedulable(task); err != nil {
		return nil, err
	}

	day, err := time.ParseInLocation(domain.DateKey, date, time.UTC)
	if err != nil {
		return nil, &domain.ValidationError{Field: "date", Reason: fmt.Sprintf("invalid date %q", date)}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, &domain.ValidationError{Field: "slot", Reason: "hour or minute out of range"}
	}

	duration := task.DurationHours
	if durationOverride != nil {
		duration = *durationOverride
	}
	if duration <= 0 {
		return nil, &domain.ValidationError{Field: "duration", Reason: "computed duration must be positive"}
	}

	start := day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)

	lockIDs := []uuid.UUID{machineID}
	if task.MachineID != nil {
		lockIDs = append(lockIDs, *task.MachineID)
	}
	unlock := s.lockMachines(lockIDs...)
	defer unlock()

	return s.commitSlot(ctx, task, machine, domain.NewWindow(start, duration))
}

// commitSlot runs detect-then-commit for a candidate window. Callers must
// hold the write locks for the target machine and, for a reschedule, the
// task's current machine.
func (s *Scheduler) commitSlot(ctx context.Context, task *domain.Task, machine *domain.Machine, window domain.Window) (*domain.ScheduleResult, error) {
	if conflict := s.detector.Check(machine, window, task.ID); conflict != nil {
		s.publishConflict(task, machine, conflict)
		return &domain.ScheduleResult{Conflict: conflict}, nil
	}

	// Reschedule is unschedule-then-schedule: queue membership on the old
	// machine is dropped and every schedule field re-derived.
	oldMachine := task.MachineID

	task.MarkScheduled(machine.ID, window)
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to persist schedule: %w", err)
	}

	if oldMachine != nil {
		s.store.Remove(*oldMachine, task.ID)
	}
	s.store.Insert(machine.ID, domain.QueueEntry{TaskID: task.ID, Window: window})

	s.logger.Info("Task scheduled",
		"task", task.OrderNumber, "machine", machine.Name,
		"start", window.Start, "end", window.End)
	s.events.Publish(EventTaskScheduled, "scheduler", task)

	return &domain.ScheduleResult{Success: true, UpdatedTask: task}, nil
}

// ScheduleAtEnd finds the earliest feasible contiguous window at or after
// now (or after the queue's current last end) and schedules the task there.
// A partially completed task is placed with its remaining work.
func (s *Scheduler) ScheduleAtEnd(ctx context.Context, taskID, machineID uuid.UUID) (*domain.ScheduleResult, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	machine, err := s.machines.GetByID(ctx, machineID)
	if err != nil {
		return nil, err
	}
	if err := validateSchedulable(task); err != nil {
		return nil, err
	}

	duration := task.DurationHours
	if task.CompletedQty > 0 {
		duration = task.RemainingHours()
	}
	if duration <= 0 {
		return nil, &domain.ValidationError{Field: "duration", Reason: "computed duration must be positive"}
	}

	lockIDs := []uuid.UUID{machineID}
	if task.MachineID != nil {
		lockIDs = append(lockIDs, *task.MachineID)
	}
	unlock := s.lockMachines(lockIDs...)
	defer unlock()

	start, err := s.earliestSlot(machine, task.ID, duration)
	if err != nil {
		return nil, err
	}
	return s.commitSlot(ctx, task, machine, domain.NewWindow(start, duration))
}

// earliestSlot walks forward from max(now, queue tail) until the whole
// window clears both the queue and the availability calendar.
func (s *Scheduler) earliestSlot(machine *domain.Machine, taskID uuid.UUID, durationHours float64) (time.Time, error) {
	start := s.clock.Now().UTC().Truncate(time.Minute)
	if q := s.store.Queue(machine.ID); len(q) > 0 {
		if tail := q[len(q)-1].Window.End; tail.After(start) {
			start = tail
		}
	}

	deadline := start.Add(schedulingHorizon)
	for start.Before(deadline) {
		window := domain.NewWindow(start, durationHours)
		conflict := s.detector.Check(machine, window, taskID)
		if conflict == nil {
			return start, nil
		}
		if conflict.Reason == domain.ConflictTaskOverlap && conflict.TaskID != nil {
			if i := s.store.IndexOf(machine.ID, *conflict.TaskID); i >= 0 {
				start = s.store.Queue(machine.ID)[i].Window.End
				continue
			}
		}
		// Unavailable hour: try the next hour boundary.
		start = start.Truncate(time.Hour).Add(time.Hour)
	}
	return time.Time{}, &domain.ConsistencyError{
		MachineID: machine.ID,
		Reason:    "no feasible window inside the scheduling horizon",
	}
}

// Unschedule clears machine, window and queue membership, reverting the task
// to NOT_SCHEDULED. Refused for IN_PROGRESS tasks, mirroring the policy that
// an order that has started production cannot be withdrawn.
func (s *Scheduler) Unschedule(ctx context.Context, taskID uuid.UUID) (*domain.ScheduleResult, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == domain.TaskStatusInProgress {
		return nil, &domain.ValidationError{Field: "status", Reason: "cannot unschedule a task in progress"}
	}
	if task.MachineID == nil {
		return nil, &domain.ValidationError{Field: "status", Reason: "task is not scheduled"}
	}

	machineID := *task.MachineID
	unlock := s.lockMachines(machineID)
	defer unlock()

	task.ClearSchedule()
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to persist unschedule: %w", err)
	}
	s.store.Remove(machineID, task.ID)

	s.logger.Info("Task unscheduled", "task", task.OrderNumber, "machine", machineID)
	s.events.Publish(EventTaskUnscheduled, "scheduler", task)

	return &domain.ScheduleResult{Success: true, UpdatedTask: task}, nil
}

// Reorder moves a task to a new position inside one machine's queue and
// recomputes chronological windows for every task between the two positions.
// The whole range commits as one batch or not at all.
func (s *Scheduler) Reorder(ctx context.Context, machineID, taskID uuid.UUID, oldIndex, newIndex int) (*domain.ScheduleResult, error) {
	machine, err := s.machines.GetByID(ctx, machineID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockMachines(machineID)
	defer unlock()

	queue := s.store.Queue(machineID)
	if s.store.IndexOf(machineID, taskID) == -1 {
		// Reordering must never move a task between machines.
		return nil, &domain.CrossMachineError{TaskID: taskID, MachineID: machineID}
	}
	if oldIndex < 0 || oldIndex >= len(queue) || newIndex < 0 || newIndex >= len(queue) {
		return nil, &domain.ValidationError{Field: "index", Reason: "queue position out of range"}
	}
	if queue[oldIndex].TaskID != taskID {
		return nil, &domain.ValidationError{Field: "index", Reason: "queue position is stale"}
	}
	if oldIndex == newIndex {
		task, err := s.tasks.GetByID(ctx, taskID)
		if err != nil {
			return nil, err
		}
		return &domain.ScheduleResult{Success: true, UpdatedTask: task}, nil
	}

	// Rebuild the order, then repack windows chronologically across the
	// affected range, anchored at the range's original first start.
	reordered := make([]domain.QueueEntry, len(queue))
	copy(reordered, queue)
	entry := reordered[oldIndex]
	reordered = append(reordered[:oldIndex], reordered[oldIndex+1:]...)
	reordered = append(reordered[:newIndex], append([]domain.QueueEntry{entry}, reordered[newIndex:]...)...)

	lo, hi := oldIndex, newIndex
	if lo > hi {
		lo, hi = hi, lo
	}

	batchIDs := make([]uuid.UUID, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		batchIDs = append(batchIDs, reordered[i].TaskID)
	}

	changed := make([]*domain.Task, 0, hi-lo+1)
	var moved *domain.Task
	cursor := queue[lo].Window.Start
	for i := lo; i <= hi; i++ {
		duration := reordered[i].Window.Duration()
		window := domain.Window{Start: cursor, End: cursor.Add(duration)}
		cursor = window.End

		task, err := s.tasks.GetByID(ctx, reordered[i].TaskID)
		if err != nil {
			return nil, err
		}
		if task.ID == taskID {
			moved = task
		}
		if task.Window() != nil && task.Window().Start.Equal(window.Start) && task.Window().End.Equal(window.End) {
			reordered[i].Window = window
			continue
		}
		if task.Status == domain.TaskStatusInProgress {
			return nil, &domain.ConsistencyError{
				MachineID: machineID,
				Reason:    fmt.Sprintf("reorder would move in-progress task %s", task.OrderNumber),
			}
		}
		if conflict := s.detector.Check(machine, window, batchIDs...); conflict != nil {
			s.publishConflict(task, machine, conflict)
			return &domain.ScheduleResult{Conflict: conflict}, nil
		}

		task.ShiftWindow(window)
		reordered[i].Window = window
		changed = append(changed, task)
	}

	if err := s.tasks.UpdateSchedules(ctx, changed); err != nil {
		return nil, fmt.Errorf("failed to commit reorder: %w", err)
	}
	s.store.Replace(machineID, reordered)

	s.logger.Info("Queue reordered",
		"machine", machine.Name, "task", taskID, "from", oldIndex, "to", newIndex)
	s.events.Publish(EventQueueReordered, "scheduler", changed)

	if moved == nil {
		moved, err = s.tasks.GetByID(ctx, taskID)
		if err != nil {
			return nil, err
		}
	}
	rescheduled := make([]*domain.Task, 0, len(changed))
	for _, t := range changed {
		if t.ID != taskID {
			rescheduled = append(rescheduled, t)
		}
	}
	return &domain.ScheduleResult{Success: true, UpdatedTask: moved, RescheduledTasks: rescheduled}, nil
}

// ApplyQuantityEdit recomputes duration and cost for a new required quantity
// and reconciles the task's schedule with the fresh metrics. A shrinking
// duration on a scheduled task compacts the downstream queue; a growing one
// is re-validated in place and may surface an ordinary conflict.
func (s *Scheduler) ApplyQuantityEdit(ctx context.Context, taskID uuid.UUID, newQty int) (*domain.ScheduleResult, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if newQty <= 0 {
		return nil, &domain.ValidationError{Field: "required_qty", Reason: "quantity must be positive"}
	}
	if newQty < task.CompletedQty {
		return nil, &domain.ValidationError{Field: "required_qty", Reason: "quantity cannot drop below completed pieces"}
	}
	switch task.Status {
	case domain.TaskStatusInProgress:
		return nil, &domain.ValidationError{Field: "status", Reason: "cannot edit a task in progress"}
	case domain.TaskStatusCompleted:
		return nil, &domain.ValidationError{Field: "status", Reason: "cannot edit a completed task"}
	}

	metrics := ComputeMetrics(task.Phase, newQty)

	if task.MachineID == nil {
		task.RequiredQty = newQty
		task.SetMetrics(metrics.DurationHours, metrics.Cost)
		if err := s.tasks.Update(ctx, task); err != nil {
			return nil, fmt.Errorf("failed to persist edit: %w", err)
		}
		return &domain.ScheduleResult{Success: true, UpdatedTask: task}, nil
	}

	machineID := *task.MachineID
	machine, err := s.machines.GetByID(ctx, machineID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockMachines(machineID)
	defer unlock()

	oldWindow := task.Window()
	newWindow := domain.NewWindow(oldWindow.Start, metrics.DurationHours)

	switch {
	case newWindow.End.Before(oldWindow.End):
		return s.commitShrink(ctx, task, machine, newQty, metrics, newWindow)

	case newWindow.End.After(oldWindow.End):
		// Growth: the window extends at the same start, surfacing an
		// ordinary conflict if the new end runs into the next task.
		if conflict := s.detector.Check(machine, newWindow, task.ID); conflict != nil {
			s.publishConflict(task, machine, conflict)
			return &domain.ScheduleResult{Conflict: conflict}, nil
		}
		task.RequiredQty = newQty
		task.SetMetrics(metrics.DurationHours, metrics.Cost)
		task.ShiftWindow(newWindow)
		if err := s.tasks.Update(ctx, task); err != nil {
			return nil, fmt.Errorf("failed to persist edit: %w", err)
		}
		s.store.ReplaceWindow(machineID, task.ID, newWindow)
		s.events.Publish(EventTaskScheduled, "scheduler", task)
		return &domain.ScheduleResult{Success: true, UpdatedTask: task}, nil

	default:
		task.RequiredQty = newQty
		task.SetMetrics(metrics.DurationHours, metrics.Cost)
		if err := s.tasks.Update(ctx, task); err != nil {
			return nil, fmt.Errorf("failed to persist edit: %w", err)
		}
		return &domain.ScheduleResult{Success: true, UpdatedTask: task}, nil
	}
}

// commitShrink applies a duration reduction and cascades the freed time to
// the downstream queue in one atomic batch.
func (s *Scheduler) commitShrink(ctx context.Context, task *domain.Task, machine *domain.Machine, newQty int, metrics ProductionMetrics, newWindow domain.Window) (*domain.ScheduleResult, error) {
	queue := s.store.Queue(machine.ID)
	idx := -1
	for i, e := range queue {
		if e.TaskID == task.ID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, &domain.ConsistencyError{
			MachineID: machine.ID,
			Reason:    fmt.Sprintf("scheduled task %s missing from queue", task.OrderNumber),
		}
	}

	shifted, newQueue, err := s.cascade.Plan(ctx, machine, queue, idx, newWindow.End)
	if err != nil {
		return nil, err
	}

	task.RequiredQty = newQty
	task.SetMetrics(metrics.DurationHours, metrics.Cost)
	task.ShiftWindow(newWindow)

	batch := append([]*domain.Task{task}, shifted...)
	if err := s.tasks.UpdateSchedules(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to commit cascade: %w", err)
	}
	s.store.Replace(machine.ID, newQueue)

	s.logger.Info("Queue compacted after duration shrink",
		"machine", machine.Name, "task", task.OrderNumber, "shifted", len(shifted))
	s.events.Publish(EventQueueCascaded, "scheduler", batch)

	return &domain.ScheduleResult{Success: true, UpdatedTask: task, RescheduledTasks: shifted}, nil
}

// publishConflict notifies the presentation surface with the conflict and
// enough context to retry with adjusted placement.
func (s *Scheduler) publishConflict(task *domain.Task, machine *domain.Machine, conflict *domain.ScheduleConflict) {
	s.logger.Warn("Schedule conflict",
		"task", task.OrderNumber, "machine", machine.Name, "reason", conflict.Reason)
	s.events.Publish(EventScheduleConflict, "scheduler", map[string]interface{}{
		"conflict": conflict,
		"retry": map[string]interface{}{
			"task_id":    task.ID,
			"machine_id": machine.ID,
			"start":      conflict.Requested.Start,
			"end":        conflict.Requested.End,
		},
	})
}
