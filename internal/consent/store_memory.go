package consent

import (
	"context"
	"sync"
	"time"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]ConsentRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]ConsentRecord)}
}

func (s *InMemoryStore) Save(_ context.Context, record ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ParentID] = append(s.records[record.ParentID], record)
	return nil
}

func (s *InMemoryStore) DeactivateActive(_ context.Context, parentID string, consentType ConsentType, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.records[parentID]
	for i := range records {
		if records[i].ConsentType == consentType && records[i].IsActive {
			records[i].IsActive = false
			t := revokedAt
			records[i].RevokedAt = &t
		}
	}
	s.records[parentID] = records
	return nil
}

func (s *InMemoryStore) FindActive(_ context.Context, parentID string, consentType ConsentType) (*ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *ConsentRecord
	for i := range s.records[parentID] {
		r := s.records[parentID][i]
		if r.ConsentType != consentType || !r.IsActive {
			continue
		}
		if latest == nil || r.ConsentedAt.After(latest.ConsentedAt) {
			cp := r
			latest = &cp
		}
	}
	return latest, nil
}

func (s *InMemoryStore) ListByParent(_ context.Context, parentID string) ([]ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ConsentRecord{}, s.records[parentID]...), nil
}
