// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package postqueue

import (
	"errors"
	"strings"
)

// Sentinel errors returned by Store operations. Callers discriminate with
// errors.Is; none of these are fatal to the queue itself.
var (
	// ErrPostNotFound means the operation targeted a queue ID that is not in
	// the queue, typically a stale reference held by the UI.
	ErrPostNotFound = errors.New("post not found in queue")

	// ErrConcurrentAccess means the storage lock could not be acquired within
	// the configured timeout. The operation performed no work and may be
	// retried later.
	ErrConcurrentAccess = errors.New("storage lock acquisition timed out")

	// ErrStorageRead wraps failures reading from the persistence backend.
	ErrStorageRead = errors.New("storage read failed")

	// ErrStorageWrite wraps failures writing to the persistence backend.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrQueueFull means the queue reached its configured size cap.
	ErrQueueFull = errors.New("offline queue is full")

	// ErrInvalidStatus means a caller passed an unrecognized status value.
	ErrInvalidStatus = errors.New("invalid queue status")
)

// ValidationError rejects a malformed post at the enqueue boundary. It
// carries every violation found, not just the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "post validation failed: " + strings.Join(e.Violations, "; ")
}
