package safety

import (
	"context"
	"sync"
	"time"
)

// ConfirmationStore persists pending confirmations. Unconfirmed returns
// entries sent at or after the cutoff that have not been confirmed yet;
// older entries age out of the scan window.
type ConfirmationStore interface {
	Expect(ctx context.Context, c Confirmation) error
	Unconfirmed(ctx context.Context, since time.Time) ([]Confirmation, error)
	MarkConfirmed(ctx context.Context, messageID string, at time.Time) error
	SetLevel(ctx context.Context, messageID string, level Level) error
}

// AlertStore persists manual-intervention alerts.
type AlertStore interface {
	Save(ctx context.Context, alert Alert) error
	ListByTenant(ctx context.Context, tenantID string) ([]Alert, error)
}

type InMemoryConfirmationStore struct {
	mu      sync.RWMutex
	entries map[string]*Confirmation
}

func NewInMemoryConfirmationStore() *InMemoryConfirmationStore {
	return &InMemoryConfirmationStore{entries: make(map[string]*Confirmation)}
}

func (s *InMemoryConfirmationStore) Expect(_ context.Context, c Confirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[c.MessageID]; ok {
		return nil
	}
	cp := c
	s.entries[c.MessageID] = &cp
	return nil
}

func (s *InMemoryConfirmationStore) Unconfirmed(_ context.Context, since time.Time) ([]Confirmation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Confirmation
	for _, c := range s.entries {
		if c.ConfirmedAt == nil && !c.SentAt.Before(since) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *InMemoryConfirmationStore) MarkConfirmed(_ context.Context, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.entries[messageID]; ok && c.ConfirmedAt == nil {
		t := at
		c.ConfirmedAt = &t
	}
	return nil
}

func (s *InMemoryConfirmationStore) SetLevel(_ context.Context, messageID string, level Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.entries[messageID]; ok && level > c.LastLevel {
		c.LastLevel = level
	}
	return nil
}

type InMemoryAlertStore struct {
	mu     sync.RWMutex
	alerts []Alert
}

func NewInMemoryAlertStore() *InMemoryAlertStore {
	return &InMemoryAlertStore{}
}

func (s *InMemoryAlertStore) Save(_ context.Context, alert Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *InMemoryAlertStore) ListByTenant(_ context.Context, tenantID string) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Alert
	for _, a := range s.alerts {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out, nil
}
