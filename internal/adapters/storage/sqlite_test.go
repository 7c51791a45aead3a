// Package storage implements the SQLite-based persistence layer.
package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/domain"
	"github.com/planfab/planfab/internal/core/ports"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/data")

	if cfg.Path != "/data/planfab.db" {
		t.Errorf("expected path '/data/planfab.db', got '%s'", cfg.Path)
	}
	if cfg.JournalMode != "WAL" {
		t.Errorf("expected journal mode 'WAL', got '%s'", cfg.JournalMode)
	}
	if cfg.Synchronous != "NORMAL" {
		t.Errorf("expected synchronous 'NORMAL', got '%s'", cfg.Synchronous)
	}
	if cfg.BusyTimeout != 5000 {
		t.Errorf("expected busy timeout 5000, got %d", cfg.BusyTimeout)
	}
}

func newTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := DefaultConfig(t.TempDir())
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew(t *testing.T) {
	db := newTestDB(t)

	if db.conn == nil {
		t.Error("expected non-nil connection")
	}
}

func testPhase() domain.Phase {
	return domain.Phase{
		Name:         "extrusion",
		CycleMinutes: 1.5,
		SetupMinutes: 30,
		HourlyRate:   42.5,
		UnitCost:     0.08,
	}
}

func TestTaskRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	task := domain.NewTask("ORD-1001", testPhase(), 500, "plastics", "WC-EXT")
	if err := repo.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.OrderNumber != "ORD-1001" {
		t.Errorf("expected order 'ORD-1001', got '%s'", got.OrderNumber)
	}
	if got.Phase.Name != "extrusion" {
		t.Errorf("expected phase 'extrusion', got '%s'", got.Phase.Name)
	}
	if got.RequiredQty != 500 {
		t.Errorf("expected required qty 500, got %d", got.RequiredQty)
	}
	if got.Status != domain.TaskStatusNotScheduled {
		t.Errorf("expected status NOT_SCHEDULED, got %s", got.Status)
	}
	if got.MachineID != nil || got.StartAt != nil || got.EndAt != nil {
		t.Error("expected empty schedule columns on a new task")
	}
}

func TestTaskRepository_GetByID_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)

	_, err := repo.GetByID(context.Background(), uuid.Must(uuid.NewV7()))

	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.Kind != "task" {
		t.Errorf("expected kind 'task', got '%s'", notFound.Kind)
	}
}

func TestTaskRepository_UpdateSchedule(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	task := domain.NewTask("ORD-1002", testPhase(), 200, "plastics", "WC-EXT")
	if err := repo.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	machineID := uuid.Must(uuid.NewV7())
	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	task.MarkScheduled(machineID, domain.NewWindow(start, 5))
	if err := repo.Update(ctx, task); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.TaskStatusScheduled {
		t.Errorf("expected status SCHEDULED, got %s", got.Status)
	}
	if got.MachineID == nil || *got.MachineID != machineID {
		t.Errorf("expected machine %s, got %v", machineID, got.MachineID)
	}
	if got.StartAt == nil || !got.StartAt.Equal(start) {
		t.Errorf("expected start %v, got %v", start, got.StartAt)
	}
	if got.EndAt == nil || !got.EndAt.Equal(start.Add(5*time.Hour)) {
		t.Errorf("expected end %v, got %v", start.Add(5*time.Hour), got.EndAt)
	}
}

func TestTaskRepository_List_Filters(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	machineID := uuid.Must(uuid.NewV7())
	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

	scheduled := domain.NewTask("ORD-A", testPhase(), 100, "plastics", "WC-EXT")
	scheduled.MarkScheduled(machineID, domain.NewWindow(start, 2))
	pending := domain.NewTask("ORD-B", testPhase(), 100, "metals", "WC-MILL")

	for _, task := range []*domain.Task{scheduled, pending} {
		if err := repo.Create(ctx, task); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	status := domain.TaskStatusScheduled
	got, err := repo.List(ctx, ports.TaskFilter{Status: &status})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 || got[0].OrderNumber != "ORD-A" {
		t.Fatalf("expected [ORD-A], got %d tasks", len(got))
	}

	got, err = repo.List(ctx, ports.TaskFilter{Department: "metals"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 || got[0].OrderNumber != "ORD-B" {
		t.Fatalf("expected [ORD-B], got %d tasks", len(got))
	}
}

func TestTaskRepository_ListScheduledByMachine(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	machineID := uuid.Must(uuid.NewV7())
	base := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

	// Insert out of chronological order
	second := domain.NewTask("ORD-2", testPhase(), 100, "plastics", "WC-EXT")
	second.MarkScheduled(machineID, domain.NewWindow(base.Add(3*time.Hour), 2))
	first := domain.NewTask("ORD-1", testPhase(), 100, "plastics", "WC-EXT")
	first.MarkScheduled(machineID, domain.NewWindow(base, 2))
	other := domain.NewTask("ORD-3", testPhase(), 100, "plastics", "WC-EXT")
	other.MarkScheduled(uuid.Must(uuid.NewV7()), domain.NewWindow(base, 1))

	for _, task := range []*domain.Task{second, first, other} {
		if err := repo.Create(ctx, task); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	got, err := repo.ListScheduledByMachine(ctx, machineID)
	if err != nil {
		t.Fatalf("ListScheduledByMachine failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got))
	}
	if got[0].OrderNumber != "ORD-1" || got[1].OrderNumber != "ORD-2" {
		t.Errorf("expected chronological order [ORD-1, ORD-2], got [%s, %s]",
			got[0].OrderNumber, got[1].OrderNumber)
	}
}

func TestTaskRepository_UpdateSchedules_AllOrNothing(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()

	machineID := uuid.Must(uuid.NewV7())
	base := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

	task := domain.NewTask("ORD-1", testPhase(), 100, "plastics", "WC-EXT")
	task.MarkScheduled(machineID, domain.NewWindow(base, 2))
	if err := repo.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Batch contains a task that was never persisted: nothing must change.
	moved := *task
	moved.ShiftWindow(domain.NewWindow(base.Add(time.Hour), 2))
	ghost := domain.NewTask("ORD-GHOST", testPhase(), 50, "plastics", "WC-EXT")
	ghost.MarkScheduled(machineID, domain.NewWindow(base.Add(3*time.Hour), 1))

	err := repo.UpdateSchedules(ctx, []*domain.Task{&moved, ghost})
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	got, err := repo.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.StartAt.Equal(base) {
		t.Errorf("expected start unchanged at %v, got %v", base, got.StartAt)
	}
}

func TestMachineRepository_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewMachineRepository(db)
	ctx := context.Background()

	machine := domain.NewMachine("EXT-01", "WC-EXT", "plastics",
		[]domain.Shift{domain.ShiftT1, domain.ShiftT2})
	machine.BlockHours("2026-03-02", 7, 8)

	if err := repo.Create(ctx, machine); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByName(ctx, "EXT-01")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if got.ID != machine.ID {
		t.Errorf("expected id %s, got %s", machine.ID, got.ID)
	}
	if got.Status != domain.MachineStatusActive {
		t.Errorf("expected status ACTIVE, got %s", got.Status)
	}
	if len(got.Shifts) != 2 || got.Shifts[0] != domain.ShiftT1 {
		t.Errorf("unexpected shifts: %v", got.Shifts)
	}
	if hours := got.Unavailable["2026-03-02"]; len(hours) != 2 || hours[0] != 7 || hours[1] != 8 {
		t.Errorf("unexpected unavailable hours: %v", got.Unavailable)
	}
}

func TestMachineRepository_UpdateRewritesUnavailable(t *testing.T) {
	db := newTestDB(t)
	repo := NewMachineRepository(db)
	ctx := context.Background()

	machine := domain.NewMachine("EXT-02", "WC-EXT", "plastics",
		[]domain.Shift{domain.ShiftT1})
	machine.BlockHours("2026-03-02", 7)
	if err := repo.Create(ctx, machine); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	machine.UnblockDate("2026-03-02")
	machine.BlockHours("2026-03-03", 10, 11)
	machine.Status = domain.MachineStatusMaintenance
	if err := repo.Update(ctx, machine); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.GetByID(ctx, machine.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.MachineStatusMaintenance {
		t.Errorf("expected status MAINTENANCE, got %s", got.Status)
	}
	if _, ok := got.Unavailable["2026-03-02"]; ok {
		t.Error("expected 2026-03-02 hours cleared")
	}
	if hours := got.Unavailable["2026-03-03"]; len(hours) != 2 {
		t.Errorf("expected 2 hours on 2026-03-03, got %v", hours)
	}
}

func TestMachineRepository_List(t *testing.T) {
	db := newTestDB(t)
	repo := NewMachineRepository(db)
	ctx := context.Background()

	for _, name := range []string{"MILL-02", "EXT-01"} {
		machine := domain.NewMachine(name, "WC", "dept", []domain.Shift{domain.ShiftT1})
		if err := repo.Create(ctx, machine); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	got, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 machines, got %d", len(got))
	}
	if got[0].Name != "EXT-01" || got[1].Name != "MILL-02" {
		t.Errorf("expected name order [EXT-01, MILL-02], got [%s, %s]",
			got[0].Name, got[1].Name)
	}
}

func TestMachineRepository_DeleteCascades(t *testing.T) {
	db := newTestDB(t)
	repo := NewMachineRepository(db)
	ctx := context.Background()

	machine := domain.NewMachine("EXT-03", "WC-EXT", "plastics",
		[]domain.Shift{domain.ShiftT1})
	machine.BlockHours("2026-03-02", 7)
	if err := repo.Create(ctx, machine); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.Delete(ctx, machine.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var count int
	err := db.Conn().QueryRow("SELECT COUNT(*) FROM machine_unavailable_hours").Scan(&count)
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 unavailable rows after delete, got %d", count)
	}
}
