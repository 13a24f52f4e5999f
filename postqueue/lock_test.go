// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package postqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueLock_AcquireRelease(t *testing.T) {
	var l queueLock
	require.NoError(t, l.acquire(time.Second))
	l.release()
	require.NoError(t, l.acquire(time.Second))
	l.release()
}

func TestQueueLock_TimeoutWhileHeld(t *testing.T) {
	var l queueLock
	require.NoError(t, l.acquire(time.Second))

	err := l.acquire(20 * time.Millisecond)
	require.ErrorIs(t, err, ErrConcurrentAccess)

	// The timed-out waiter must not corrupt the queue for later waiters.
	done := make(chan error, 1)
	go func() {
		done <- l.acquire(time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	l.release()
	require.NoError(t, <-done)
	l.release()
}

func TestQueueLock_FIFOOrder(t *testing.T) {
	var l queueLock
	require.NoError(t, l.acquire(time.Second))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			require.NoError(t, l.acquire(5*time.Second))
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			l.release()
		}(i)
		// Stagger arrivals so the waiter queue order is deterministic.
		time.Sleep(20 * time.Millisecond)
	}

	l.release()
	wg.Wait()
	require.Equal(t, []int{1, 2, 3}, order)
}
