package safety

import (
	"context"
	"sync"
)

// Operator is a staff member who can receive escalation alerts.
type Operator struct {
	ID       string
	TenantID string
	Name     string
	Phone    string
	Role     string
}

const RoleDirector = "director"

// Directory resolves who gets paged at the critical level.
type Directory interface {
	DirectorsByTenant(ctx context.Context, tenantID string) ([]Operator, error)
}

type InMemoryDirectory struct {
	mu        sync.RWMutex
	operators map[string][]Operator
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{operators: make(map[string][]Operator)}
}

func (d *InMemoryDirectory) Add(op Operator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.operators[op.TenantID] = append(d.operators[op.TenantID], op)
}

func (d *InMemoryDirectory) DirectorsByTenant(_ context.Context, tenantID string) ([]Operator, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Operator
	for _, op := range d.operators[tenantID] {
		if op.Role == RoleDirector {
			out = append(out, op)
		}
	}
	return out, nil
}
