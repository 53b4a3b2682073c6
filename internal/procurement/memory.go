// internal/procurement/memory.go
package procurement

import (
	"context"
	"sync"
	"time"
)

// Memory repositories back dev mode and tests; the postgres repositories are
// the production path.

type memAccountRepo struct {
	mu sync.RWMutex
	m  map[string]Account
}

func NewMemoryAccountRepo() AccountRepo {
	return &memAccountRepo{m: map[string]Account{}}
}

func (r *memAccountRepo) Get(ctx context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.m[id]; ok {
		cp := a
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (r *memAccountRepo) Upsert(ctx context.Context, a *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.UpdatedAt = time.Now()
	if prev, ok := r.m[a.ID]; ok {
		a.CreatedAt = prev.CreatedAt
	} else if a.CreatedAt.IsZero() {
		a.CreatedAt = a.UpdatedAt
	}
	r.m[a.ID] = *a
	return nil
}

type memEntitlementRepo struct {
	mu sync.RWMutex
	m  map[string]Entitlement
}

func NewMemoryEntitlementRepo() EntitlementRepo {
	return &memEntitlementRepo{m: map[string]Entitlement{}}
}

func (r *memEntitlementRepo) Get(ctx context.Context, id string) (*Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.m[id]; ok {
		cp := e
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (r *memEntitlementRepo) Upsert(ctx context.Context, e *Entitlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.UpdatedAt = time.Now()
	if prev, ok := r.m[e.ID]; ok {
		e.CreatedAt = prev.CreatedAt
	} else if e.CreatedAt.IsZero() {
		e.CreatedAt = e.UpdatedAt
	}
	r.m[e.ID] = *e
	return nil
}
