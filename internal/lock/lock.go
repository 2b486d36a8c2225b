// Package lock serializes writes to one owner's calendar across callers.
package lock

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotAcquired means the lock stayed held by someone else for the whole
// wait. Caller cancellation is returned as ctx.Err() instead.
var ErrNotAcquired = errors.New("owner lock not acquired")

type Locker interface {
	WithOwnerLock(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context) error) error
}

// Noop runs fn directly and leaves serialization to the store.
type Noop struct{}

func (Noop) WithOwnerLock(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Local is an in-process keyed mutex. It only protects a single replica.
type Local struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[uuid.UUID]*localSlot)}
}

func (l *Local) WithOwnerLock(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context) error) error {
	slot := l.acquireSlot(ownerID)
	defer l.releaseSlot(ownerID, slot)

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-slot.ch }()

	return fn(ctx)
}

func (l *Local) acquireSlot(ownerID uuid.UUID) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[ownerID]
	if !ok {
		s = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[ownerID] = s
	}
	s.refs++
	return s
}

func (l *Local) releaseSlot(ownerID uuid.UUID, s *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, ownerID)
	}
}
