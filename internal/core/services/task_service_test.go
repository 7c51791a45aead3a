package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/domain"
)

func newTestTaskService() (*TaskService, *mockTaskRepository, *QueueStore) {
	repo := newMockTaskRepository()
	store := NewQueueStore()
	svc := NewTaskService(repo, store, &NopLogger{})
	return svc, repo, store
}

func TestTaskService_Create(t *testing.T) {
	svc, _, _ := newTestTaskService()

	phase := domain.Phase{Name: "extrusion", CycleMinutes: 1.2, SetupMinutes: 0, HourlyRate: 10}
	task, err := svc.Create(context.Background(), "ORD-1", phase, 100, "plastics", "WC-EXT")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if task.Status != domain.TaskStatusNotScheduled {
		t.Errorf("expected NOT_SCHEDULED, got %s", task.Status)
	}
	// 100 pieces at 1.2 min each is 2 hours
	if task.DurationHours != 2 {
		t.Errorf("expected duration 2h, got %v", task.DurationHours)
	}
	if task.Cost != 20 {
		t.Errorf("expected cost 20, got %v", task.Cost)
	}
}

func TestTaskService_Create_Validation(t *testing.T) {
	svc, _, _ := newTestTaskService()
	ctx := context.Background()
	phase := domain.Phase{Name: "extrusion", CycleMinutes: 1.2}

	tests := []struct {
		name  string
		order string
		phase domain.Phase
		qty   int
	}{
		{"empty order number", "", phase, 100},
		{"zero quantity", "ORD-1", phase, 0},
		{"missing cycle time", "ORD-1", domain.Phase{Name: "x"}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.order, tt.phase, tt.qty, "", "")
			var validation *domain.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestTaskService_StartRequiresSchedule(t *testing.T) {
	svc, repo, _ := newTestTaskService()
	ctx := context.Background()

	task := domain.NewTask("ORD-1", domain.Phase{Name: "x", CycleMinutes: 1}, 10, "", "")
	repo.put(task)

	_, err := svc.Start(ctx, task.ID)
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for unscheduled task, got %v", err)
	}

	machineID := uuid.Must(uuid.NewV7())
	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	task.MarkScheduled(machineID, domain.NewWindow(start, 2))
	repo.put(task)

	got, err := svc.Start(ctx, task.ID)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got.Status != domain.TaskStatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", got.Status)
	}
}

func TestTaskService_CompleteFreesQueueSlot(t *testing.T) {
	svc, repo, store := newTestTaskService()
	ctx := context.Background()

	machineID := uuid.Must(uuid.NewV7())
	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

	task := domain.NewTask("ORD-1", domain.Phase{Name: "x", CycleMinutes: 1}, 10, "", "")
	task.MarkScheduled(machineID, domain.NewWindow(start, 2))
	repo.put(task)
	store.Insert(machineID, domain.QueueEntry{TaskID: task.ID, Window: *task.Window()})

	got, err := svc.Complete(ctx, task.ID)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got.Status != domain.TaskStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", got.Status)
	}
	if got.CompletedQty != got.RequiredQty {
		t.Errorf("expected completed qty %d, got %d", got.RequiredQty, got.CompletedQty)
	}
	if len(store.Queue(machineID)) != 0 {
		t.Error("expected queue slot freed on completion")
	}
	// The window stays on the record
	if got.StartAt == nil || got.EndAt == nil {
		t.Error("expected committed window kept for history")
	}
}

func TestTaskService_Progress(t *testing.T) {
	svc, repo, _ := newTestTaskService()
	ctx := context.Background()

	task := domain.NewTask("ORD-1", domain.Phase{Name: "x", CycleMinutes: 1}, 10, "", "")
	machineID := uuid.Must(uuid.NewV7())
	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	task.MarkScheduled(machineID, domain.NewWindow(start, 2))
	task.MarkInProgress()
	repo.put(task)

	got, err := svc.Progress(ctx, task.ID, 4)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if got.CompletedQty != 4 {
		t.Errorf("expected completed qty 4, got %d", got.CompletedQty)
	}

	// Capped at the required quantity
	got, err = svc.Progress(ctx, task.ID, 100)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if got.CompletedQty != 10 {
		t.Errorf("expected completed qty capped at 10, got %d", got.CompletedQty)
	}
}

func TestTaskService_DeleteRefusesScheduled(t *testing.T) {
	svc, repo, _ := newTestTaskService()
	ctx := context.Background()

	task := domain.NewTask("ORD-1", domain.Phase{Name: "x", CycleMinutes: 1}, 10, "", "")
	machineID := uuid.Must(uuid.NewV7())
	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	task.MarkScheduled(machineID, domain.NewWindow(start, 2))
	repo.put(task)

	err := svc.Delete(ctx, task.ID)
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	task.ClearSchedule()
	repo.put(task)
	if err := svc.Delete(ctx, task.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
}
