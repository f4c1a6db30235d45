package ledger

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps the ledger in a slice. Appends are cheap; Replay copies
// the requested suffix so callers can fold without holding the lock.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []LedgerEntry
	nextSeq int64
	byID    map[string][]int // entity_id -> entry indexes
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextSeq: 1,
		byID:    make(map[string][]int),
	}
}

func (s *InMemoryStore) Append(_ context.Context, fact OutcomeFact) (LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := LedgerEntry{
		Fact:      fact,
		Sequence:  s.nextSeq,
		CreatedAt: time.Now().UTC(),
	}
	s.nextSeq++
	s.byID[fact.EntityID] = append(s.byID[fact.EntityID], len(s.entries))
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *InMemoryStore) Replay(_ context.Context, fromSeq int64) ([]LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fromSeq < 1 {
		fromSeq = 1
	}
	// Sequences are dense and 1-based, so the slice offset is direct.
	start := int(fromSeq - 1)
	if start >= len(s.entries) {
		return nil, nil
	}
	out := make([]LedgerEntry, len(s.entries)-start)
	copy(out, s.entries[start:])
	return out, nil
}

func (s *InMemoryStore) FactsByEntity(_ context.Context, entityID string) ([]OutcomeFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idxs := s.byID[entityID]
	if len(idxs) == 0 {
		return nil, nil
	}
	out := make([]OutcomeFact, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.entries[i].Fact)
	}
	return out, nil
}
