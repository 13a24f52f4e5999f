// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package postqueue

import (
	"sync"
	"time"
)

// queueLock is a mutual-exclusion lock with two properties sync.Mutex lacks:
// waiters are served strictly FIFO, and acquisition fails after a timeout
// instead of blocking forever. Every Store operation runs its whole
// read-modify-write cycle under this lock.
type queueLock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// acquire blocks until the lock is granted or timeout elapses. A timed-out
// acquire leaves the waiter queue intact for everyone else.
func (l *queueLock) acquire(timeout time.Duration) error {
	l.mu.Lock()
	if !l.held && len(l.waiters) == 0 {
		l.held = true
		l.mu.Unlock()
		return nil
	}

	grant := make(chan struct{})
	l.waiters = append(l.waiters, grant)
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-grant:
		return nil
	case <-timer.C:
	}

	// Timed out. release may have handed us the lock concurrently; if so we
	// own it and must not also report failure.
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-grant:
		return nil
	default:
	}
	for i, w := range l.waiters {
		if w == grant {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			break
		}
	}
	return ErrConcurrentAccess
}

// release hands the lock to the oldest waiter, or frees it if none wait.
func (l *queueLock) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.waiters) > 0 {
		grant := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(grant) // lock stays held, ownership transfers
		return
	}
	l.held = false
}
