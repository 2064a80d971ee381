package booking

import (
	"context"
	"sync"
)

// Locker serializes the read-check-then-write section of admission per
// (business, staff) key. Reads never go through the locker.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// LockKey builds the serialization key for one staff resource. Contention is
// scoped per business (and staff), never global.
func LockKey(businessID, staffID string) string {
	return businessID + "/" + staffID
}

// KeyLocker is an in-process Locker backed by one mutex per key. Suitable
// for single-node deployments and tests; multi-node deployments use the
// Redis locker instead.
type KeyLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *KeyLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
