package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/ports"
)

// Scheduling event types published by the engine.
const (
	EventTaskScheduled    = "task.scheduled"
	EventTaskUnscheduled  = "task.unscheduled"
	EventQueueReordered   = "queue.reordered"
	EventQueueCascaded    = "queue.cascaded"
	EventScheduleConflict = "schedule.conflict"
)

// Event represents a scheduling event in the system.
type Event struct {
	ID        string
	Type      string
	Source    string
	Payload   []byte
	Timestamp time.Time
}

// EventHandler is a function that handles events.
type EventHandler func(event Event) error

// EventService manages event subscriptions and publishing. Conflict
// presentation surfaces subscribe here to receive ScheduleConflict payloads
// together with the originating intent parameters.
type EventService struct {
	mu           sync.RWMutex
	subscribers  map[string][]EventHandler // eventType -> handlers
	allHandlers  []EventHandler
	eventHistory []Event // recent events for replay
	maxHistory   int
	logger       ports.Logger
}

// NewEventService creates a new event service.
func NewEventService(logger ports.Logger) *EventService {
	return &EventService{
		subscribers:  make(map[string][]EventHandler),
		allHandlers:  make([]EventHandler, 0),
		eventHistory: make([]Event, 0),
		maxHistory:   1000,
		logger:       logger,
	}
}

// Subscribe registers a handler for a specific event type.
func (s *EventService) Subscribe(eventType string, handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)
	s.logger.Debug("Event subscription added", "type", eventType)
}

// SubscribeAll registers a handler for all events.
func (s *EventService) SubscribeAll(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allHandlers = append(s.allHandlers, handler)
	s.logger.Debug("Global event subscription added")
}

// Publish marshals the payload and dispatches the event to all subscribers.
func (s *EventService) Publish(eventType, source string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal event payload", "type", eventType, "error", err)
		return
	}

	event := Event{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      eventType,
		Source:    source,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	}

	s.mu.RLock()
	handlers := make([]EventHandler, 0)
	if h, ok := s.subscribers[event.Type]; ok {
		handlers = append(handlers, h...)
	}
	handlers = append(handlers, s.allHandlers...)
	s.mu.RUnlock()

	s.addToHistory(event)

	for _, h := range handlers {
		if err := h(event); err != nil {
			s.logger.Error("Event handler error", "type", event.Type, "error", err)
		}
	}

	s.logger.Debug("Event published", "type", event.Type, "handlers", len(handlers))
}

// addToHistory adds an event to the history buffer.
func (s *EventService) addToHistory(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eventHistory = append(s.eventHistory, event)
	if len(s.eventHistory) > s.maxHistory {
		s.eventHistory = s.eventHistory[len(s.eventHistory)-s.maxHistory:]
	}
}

// History returns recent events, newest first, optionally filtered by type.
func (s *EventService) History(eventType string, limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var result []Event
	for i := len(s.eventHistory) - 1; i >= 0 && len(result) < limit; i-- {
		e := s.eventHistory[i]
		if eventType == "" || e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}
