// Package locking serializes work on one workflow instance across goroutines and processes.
package locking

import (
	"context"
	"sync"
)

// Locker grants exclusive access to a key until the returned unlock function is called.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker. Idle keys are released so the map does not grow
// with the number of instances ever seen.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	slot chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()

	lock, ok := m.locks[key]
	if !ok {
		lock = &keyLock{slot: make(chan struct{}, 1)}
		m.locks[key] = lock
	}

	lock.refs++
	m.mu.Unlock()

	select {
	case lock.slot <- struct{}{}:
	case <-ctx.Done():
		m.release(key, lock)

		return nil, ctx.Err()
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			<-lock.slot
			m.release(key, lock)
		})
	}, nil
}

func (m *KeyedMutex) release(key string, lock *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, key)
	}
}

// held reports the number of keys currently tracked.
func (m *KeyedMutex) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.locks)
}
