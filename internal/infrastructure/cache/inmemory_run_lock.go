package cache

import (
	"context"
	"sync"
	"time"

	"github.com/elyphant/backend/internal/domain/shared"
)

// InMemoryRunLock implements shared.RunLock inside one process
type InMemoryRunLock struct {
	mu    sync.Mutex
	held  map[string]lockEntry
	seq   uint64
	nowFn func() time.Time
}

type lockEntry struct {
	generation uint64
	expiresAt  time.Time
}

var _ shared.RunLock = (*InMemoryRunLock)(nil)

// NewInMemoryRunLock creates an empty lock table
func NewInMemoryRunLock() *InMemoryRunLock {
	return &InMemoryRunLock{held: make(map[string]lockEntry), nowFn: time.Now}
}

// Acquire takes the named lock; an expired holder is replaced
func (l *InMemoryRunLock) Acquire(_ context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	cur, ok := l.held[name]
	if ok && now.Before(cur.expiresAt) {
		return nil, shared.ErrConflict.WithDetails(map[string]any{"lock": name})
	}

	l.seq++
	gen := l.seq
	l.held[name] = lockEntry{generation: gen, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if e, ok := l.held[name]; ok && e.generation == gen {
			delete(l.held, name)
		}
		return nil
	}, nil
}
