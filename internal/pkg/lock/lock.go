// Package lock provides keyed locks that serialize read-modify-write
// cycles on the workbook.
package lock

import (
	"context"
	"sync"
	"time"
)

// KeyedLock hands out one mutex per key. Locks of different keys never
// block each other.
type KeyedLock struct {
	locks sync.Map // map[string]*sync.Mutex
	pool  sync.Pool
}

// New creates a KeyedLock.
func New() *KeyedLock {
	return &KeyedLock{
		pool: sync.Pool{
			New: func() any {
				return &sync.Mutex{}
			},
		},
	}
}

// getLock retrieves or creates the mutex of a key.
func (kl *KeyedLock) getLock(key string) *sync.Mutex {
	if v, ok := kl.locks.Load(key); ok {
		return v.(*sync.Mutex)
	}

	fresh := kl.pool.Get().(*sync.Mutex)
	actual, loaded := kl.locks.LoadOrStore(key, fresh)
	if loaded {
		kl.pool.Put(fresh)
	}
	return actual.(*sync.Mutex)
}

// lockWithTimeout waits for the mutex until the timeout or the context
// ends, and reports whether it was acquired.
func (kl *KeyedLock) lockWithTimeout(ctx context.Context, key string, timeout time.Duration) (*sync.Mutex, bool) {
	mu := kl.getLock(key)

	done := make(chan struct{})
	go func() {
		mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return mu, true
	case <-timeoutCtx.Done():
		// The waiter still acquires the mutex eventually; release it then.
		go func() {
			<-done
			mu.Unlock()
		}()
		return nil, false
	}
}

// WithLockContext runs fn while holding the lock of a key. It returns
// ErrLockTimeout when the lock is not acquired in time.
func (kl *KeyedLock) WithLockContext(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	mu, ok := kl.lockWithTimeout(ctx, key, timeout)
	if !ok {
		return ErrLockTimeout
	}
	defer mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}
