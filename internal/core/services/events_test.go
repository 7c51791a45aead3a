package services

import (
	"encoding/json"
	"testing"

	"github.com/planfab/planfab/internal/core/domain"
)

func TestEventServicePublishSubscribe(t *testing.T) {
	svc := NewEventService(&NopLogger{})

	var received []Event
	svc.Subscribe(EventScheduleConflict, func(e Event) error {
		received = append(received, e)
		return nil
	})

	svc.Publish(EventTaskScheduled, "scheduler", map[string]string{"order": "PO-1"})
	svc.Publish(EventScheduleConflict, "scheduler", map[string]interface{}{
		"conflict": domain.ScheduleConflict{Reason: domain.ConflictTaskOverlap},
	})

	if len(received) != 1 {
		t.Fatalf("Expected 1 conflict event, got %d", len(received))
	}

	var payload struct {
		Conflict domain.ScheduleConflict `json:"conflict"`
	}
	if err := json.Unmarshal(received[0].Payload, &payload); err != nil {
		t.Fatalf("Payload should be JSON: %v", err)
	}
	if payload.Conflict.Reason != domain.ConflictTaskOverlap {
		t.Error("Payload should carry the conflict")
	}
}

func TestEventServiceHistory(t *testing.T) {
	svc := NewEventService(&NopLogger{})

	svc.Publish(EventTaskScheduled, "scheduler", "a")
	svc.Publish(EventTaskUnscheduled, "scheduler", "b")
	svc.Publish(EventTaskScheduled, "scheduler", "c")

	all := svc.History("", 10)
	if len(all) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(all))
	}
	if all[0].Type != EventTaskScheduled {
		t.Error("History should be newest first")
	}

	scheduled := svc.History(EventTaskScheduled, 10)
	if len(scheduled) != 2 {
		t.Errorf("Expected 2 scheduled events, got %d", len(scheduled))
	}
}
