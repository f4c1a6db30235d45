package deliverylog

import (
	"context"
	"sync"
)

// Store persists delivery events for operator inspection.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// InMemoryStore keeps events in a slice.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything appended so far.
func (s *InMemoryStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events...)
}

// ByKind returns the appended events matching kind.
func (s *InMemoryStore) ByKind(kind Kind) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
