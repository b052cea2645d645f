// Package lock provides conversation-level mutual exclusion. A single
// replica uses the in-process keyed mutex; deployments with multiple
// replicas switch to the Redis-backed locker so only one run per
// conversation is active across the fleet.
package lock

import (
	"context"
	"sync"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex hands out one lock per key. Entries are reference counted and
// removed once the last holder or waiter is gone.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Acquire blocks until the key's lock is free or the context is done. The
// returned release function is safe to call more than once.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	kl, ok := m.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = kl
	}
	kl.refs++
	m.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-kl.ch
			m.unref(key, kl)
		})
	}
	return release, nil
}

func (m *KeyedMutex) unref(key string, kl *keyLock) {
	m.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}
