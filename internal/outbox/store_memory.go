package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

// InMemoryStore keeps outbox rows in maps guarded by one mutex. The
// idempotency-key index plays the role of the database unique constraint.
type InMemoryStore struct {
	mu       sync.Mutex
	messages map[string]*Message
	byKey    map[string]string // idempotency_key -> message id
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		messages: make(map[string]*Message),
		byKey:    make(map[string]string),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.IdempotencyKey != "" {
		if _, exists := s.byKey[m.IdempotencyKey]; exists {
			return dErrors.New(dErrors.CodeConflict, "idempotency key already enqueued")
		}
	}
	cp := cloneMessage(m)
	s.messages[m.ID] = cp
	if m.IdempotencyKey != "" {
		s.byKey[m.IdempotencyKey] = m.ID
	}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	return cloneMessage(m), nil
}

func (s *InMemoryStore) FindByIdempotencyKey(_ context.Context, key string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	return cloneMessage(s.messages[id]), nil
}

func (s *InMemoryStore) ClaimBatch(_ context.Context, now time.Time, limit int) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staleBefore := now.Add(-StaleClaimAfter)
	var due []*Message
	for _, m := range s.messages {
		switch m.Status {
		case StatusPending, StatusFailed:
			if m.NextRetryAt != nil && m.NextRetryAt.After(now) {
				continue
			}
		case StatusSending:
			// Orphaned by a crash between claim and mark.
			if m.ClaimedAt == nil || m.ClaimedAt.After(staleBefore) {
				continue
			}
		default:
			continue
		}
		due = append(due, m)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*Message, 0, len(due))
	for _, m := range due {
		m.Status = StatusSending
		at := now
		m.ClaimedAt = &at
		claimed = append(claimed, cloneMessage(m))
	}
	return claimed, nil
}

func (s *InMemoryStore) MarkSent(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "message not found: "+id)
	}
	m.Status = StatusSent
	m.SentAt = &at
	m.NextRetryAt = nil
	m.ClaimedAt = nil
	return nil
}

func (s *InMemoryStore) MarkFailed(_ context.Context, id string, retryCount int, nextRetryAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "message not found: "+id)
	}
	m.Status = StatusFailed
	m.RetryCount = retryCount
	m.NextRetryAt = &nextRetryAt
	m.LastError = lastError
	m.ClaimedAt = nil
	return nil
}

func (s *InMemoryStore) MarkDeadLetter(_ context.Context, id string, retryCount int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "message not found: "+id)
	}
	m.Status = StatusDeadLetter
	m.RetryCount = retryCount
	m.NextRetryAt = nil
	m.LastError = lastError
	m.ClaimedAt = nil
	return nil
}

func cloneMessage(m *Message) *Message {
	cp := *m
	if m.Variables != nil {
		cp.Variables = make(map[string]string, len(m.Variables))
		for k, v := range m.Variables {
			cp.Variables[k] = v
		}
	}
	if m.NextRetryAt != nil {
		t := *m.NextRetryAt
		cp.NextRetryAt = &t
	}
	if m.ClaimedAt != nil {
		t := *m.ClaimedAt
		cp.ClaimedAt = &t
	}
	if m.SentAt != nil {
		t := *m.SentAt
		cp.SentAt = &t
	}
	return &cp
}
