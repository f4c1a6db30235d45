package gateway

import (
	"context"
	"sync"
)

// Stub records sends in memory and can be scripted to fail. Used in tests
// and local development when no gateway is configured.
type Stub struct {
	mu       sync.Mutex
	sent     []SendRequest
	failures int
	err      error
}

func NewStub() *Stub {
	return &Stub{}
}

// FailNext makes the next n sends return err.
func (s *Stub) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
	s.err = err
}

func (s *Stub) Send(_ context.Context, req SendRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return s.err
	}
	s.sent = append(s.sent, req)
	return nil
}

// Sent returns a copy of the successfully delivered requests.
func (s *Stub) Sent() []SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SendRequest{}, s.sent...)
}
