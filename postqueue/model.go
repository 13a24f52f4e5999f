// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

// Package postqueue provides the durable offline queue for user-authored
// posts. Posts created while the device is offline are persisted here as
// pending entries and drained later by the sync engine.
package postqueue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ContentType identifies the kind of content a post carries.
type ContentType string

const (
	ContentNote     ContentType = "note"
	ContentImage    ContentType = "image"
	ContentDocument ContentType = "document"
	ContentLink     ContentType = "link"
)

// Valid reports whether c is a recognized content type.
func (c ContentType) Valid() bool {
	switch c {
	case ContentNote, ContentImage, ContentDocument, ContentLink:
		return true
	}
	return false
}

// Status is the sync lifecycle state of a queued post.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is a recognized status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusFailed:
		return true
	}
	return false
}

// PostData is the user-authored content of a queued post. Only the fields
// legal for the entry's content type are populated; ValidatePostData enforces
// this at the enqueue boundary.
type PostData struct {
	ContentType ContentType `json:"contentType"`
	Title       string      `json:"title,omitempty"`
	TextContent string      `json:"textContent,omitempty"`
	LinkURL     string      `json:"linkUrl,omitempty"`

	// AttachmentRef points at a locally stored binary for image/document
	// posts. These types are never drained by the batch pipeline (they need
	// multipart upload), so the reference is opaque to this package.
	AttachmentRef string `json:"attachmentRef,omitempty"`
}

// Metadata tracks the sync lifecycle of a queued post.
type Metadata struct {
	Status        Status `json:"status"`
	CreatedAt     int64  `json:"createdAt"` // epoch ms, never mutated after enqueue
	RetryCount    int    `json:"retryCount"`
	LastAttemptAt int64  `json:"lastAttemptAt"` // epoch ms of the most recent status write
	LastError     string `json:"lastError,omitempty"`
}

// QueuedPost is one entry in the offline queue.
type QueuedPost struct {
	QueueID string   `json:"queueId"`
	Data    PostData `json:"postData"`
	Meta    Metadata `json:"metadata"`
}

// EligibleForSync reports whether the entry can be picked up by the batch
// sync pipeline: it must be pending, and only note/link content goes through
// the JSON batch endpoint.
func (p *QueuedPost) EligibleForSync() bool {
	if p.Meta.Status != StatusPending {
		return false
	}
	return p.Data.ContentType == ContentNote || p.Data.ContentType == ContentLink
}

// NewQueueID generates a unique queue ID. The timestamp prefix keeps IDs
// roughly sortable in logs; the uuid fragment guarantees uniqueness.
func NewQueueID(now time.Time) string {
	return fmt.Sprintf("queue_%d_%s", now.UnixMilli(), uuid.New().String()[:8])
}
