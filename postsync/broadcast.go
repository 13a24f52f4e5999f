// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

// Package postsync drains the offline post queue to the remote API. It
// holds the network monitor that decides whether the backend is reachable,
// the sync engine that sends eligible posts in batches with retry
// classification, and the orchestrator that decides when a sync should run.
package postsync

import (
	"log/slog"
	"sync"
)

// hub fans state changes out to subscribers. Subscribers are notified
// synchronously in registration order; a panicking subscriber is isolated so
// the rest still run. subscribe replays the current value immediately.
type hub[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []hubSub[T]
	logger *slog.Logger
}

type hubSub[T any] struct {
	id int
	fn func(T)
}

func newHub[T any](logger *slog.Logger) *hub[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &hub[T]{logger: logger}
}

// subscribe registers fn, invokes it immediately with current, and returns
// an unsubscribe function safe to call more than once.
func (h *hub[T]) subscribe(fn func(T), current T) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, hubSub[T]{id: id, fn: fn})
	h.mu.Unlock()

	h.invoke(fn, current)

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, sub := range h.subs {
			if sub.id == id {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

// publish notifies every subscriber with v.
func (h *hub[T]) publish(v T) {
	h.mu.Lock()
	subs := make([]hubSub[T], len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, sub := range subs {
		h.invoke(sub.fn, v)
	}
}

func (h *hub[T]) invoke(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("subscriber panicked", "panic", r)
		}
	}()
	fn(v)
}
