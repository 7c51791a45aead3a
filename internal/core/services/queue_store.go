package services

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/domain"
)

// QueueStore holds the committed queue state for every machine: an ordered,
// non-overlapping sequence of task windows per machine. The store is a plain
// container; conflict checking is the scheduler's job.
type QueueStore struct {
	mu     sync.RWMutex
	queues map[uuid.UUID][]domain.QueueEntry
}

// NewQueueStore creates an empty queue store.
func NewQueueStore() *QueueStore {
	return &QueueStore{
		queues: make(map[uuid.UUID][]domain.QueueEntry),
	}
}

// Queue returns a snapshot copy of the machine's queue in start-time order.
func (s *QueueStore) Queue(machineID uuid.UUID) []domain.QueueEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := s.queues[machineID]
	out := make([]domain.QueueEntry, len(q))
	copy(out, q)
	return out
}

// IndexOf returns the queue position of the task, or -1 if absent.
func (s *QueueStore) IndexOf(machineID, taskID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, e := range s.queues[machineID] {
		if e.TaskID == taskID {
			return i
		}
	}
	return -1
}

// Insert adds an entry at its chronological position.
func (s *QueueStore) Insert(machineID uuid.UUID, entry domain.QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[machineID]
	i := sort.Search(len(q), func(i int) bool {
		return q[i].Window.Start.After(entry.Window.Start)
	})
	q = append(q, domain.QueueEntry{})
	copy(q[i+1:], q[i:])
	q[i] = entry
	s.queues[machineID] = q
}

// Remove deletes the task's entry. Returns false if the task was not queued.
func (s *QueueStore) Remove(machineID, taskID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[machineID]
	for i, e := range q {
		if e.TaskID == taskID {
			s.queues[machineID] = append(q[:i], q[i+1:]...)
			return true
		}
	}
	return false
}

// Move repositions the task's entry to newIndex, preserving the other
// entries' relative order. The caller is responsible for recomputing windows
// so that start-time order matches position again.
func (s *QueueStore) Move(machineID, taskID uuid.UUID, newIndex int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[machineID]
	if newIndex < 0 || newIndex >= len(q) {
		return false
	}
	old := -1
	for i, e := range q {
		if e.TaskID == taskID {
			old = i
			break
		}
	}
	if old == -1 {
		return false
	}

	entry := q[old]
	q = append(q[:old], q[old+1:]...)
	q = append(q[:newIndex], append([]domain.QueueEntry{entry}, q[newIndex:]...)...)
	s.queues[machineID] = q
	return true
}

// ReplaceWindow updates one entry's window under a single lock, so readers
// never see the task absent. The caller must keep the start unchanged; a
// moved start is a reorder, not a window edit. Returns false if the task was
// not queued.
func (s *QueueStore) ReplaceWindow(machineID, taskID uuid.UUID, window domain.Window) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[machineID]
	for i, e := range q {
		if e.TaskID == taskID {
			q[i].Window = window
			return true
		}
	}
	return false
}

// Replace swaps the machine's whole queue in one step. Used to commit batch
// mutations (reorder, cascade) atomically with respect to readers.
func (s *QueueStore) Replace(machineID uuid.UUID, entries []domain.QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := make([]domain.QueueEntry, len(entries))
	copy(q, entries)
	s.queues[machineID] = q
}

// Rebuild hydrates a machine's queue from persisted tasks at startup.
func (s *QueueStore) Rebuild(machineID uuid.UUID, tasks []*domain.Task) {
	entries := make([]domain.QueueEntry, 0, len(tasks))
	for _, t := range tasks {
		w := t.Window()
		if w == nil {
			continue
		}
		entries = append(entries, domain.QueueEntry{TaskID: t.ID, Window: *w})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Window.Start.Before(entries[j].Window.Start)
	})
	s.Replace(machineID, entries)
}
