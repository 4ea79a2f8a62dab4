// Package convlock serializes mutations per conversation id.
//
// Each Acquire appends a link to the id's chain and waits for the previous
// link to finish. Holders run one at a time per id, in acquisition order.
// The lock is in-process only; it resets with the process.
package convlock

import (
	"context"
	"sync"
)

// link is one acquisition in a key's chain. done is closed once the holder
// released and every earlier link finished.
type link struct {
	done chan struct{}
}

// Locker is a FIFO mutex keyed by string. The zero value is not usable; call
// New.
type Locker struct {
	mu    sync.Mutex
	tails map[string]*link
}

// New creates an empty Locker.
func New() *Locker {
	return &Locker{tails: make(map[string]*link)}
}

// Acquire blocks until the caller holds the lock for key and returns its
// release function. Release is idempotent. If ctx ends while waiting, the
// error is returned and the slot passes to the next waiter once all earlier
// holders are done.
func (l *Locker) Acquire(ctx context.Context, key string) (release func(), err error) {
	own := &link{done: make(chan struct{})}

	l.mu.Lock()
	prev := l.tails[key]
	l.tails[key] = own
	l.mu.Unlock()

	var once sync.Once
	finish := func() {
		once.Do(func() {
			close(own.done)
			l.mu.Lock()
			if l.tails[key] == own {
				delete(l.tails, key)
			}
			l.mu.Unlock()
		})
	}

	if prev == nil {
		return finish, nil
	}

	select {
	case <-prev.done:
		return finish, nil
	case <-ctx.Done():
		go func() {
			<-prev.done
			finish()
		}()
		return nil, ctx.Err()
	}
}

// Len returns the number of keys with a live chain.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tails)
}
