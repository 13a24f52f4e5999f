// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package postqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// queueKey is the single KV key the whole queue lives under.
const queueKey = "offline_post_queue"

// StoreConfig holds tunables for the queue store.
type StoreConfig struct {
	LockTimeout  time.Duration // fail with ErrConcurrentAccess past this
	MaxQueueSize int           // enqueue past this fails with ErrQueueFull
}

// DefaultStoreConfig returns the production defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		LockTimeout:  5 * time.Second,
		MaxQueueSize: 500,
	}
}

// Store is the durable, corruption-tolerant queue of offline posts. Every
// operation runs acquire-lock -> read -> modify -> write -> release, so
// logically overlapping operations (an enqueue racing a sync status update)
// never interleave their read-modify-write cycles.
type Store struct {
	kv     KV
	cfg    StoreConfig
	lock   queueLock
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a queue store over the given persistence backend.
// A nil logger falls back to slog.Default().
func NewStore(kv KV, cfg StoreConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultStoreConfig().LockTimeout
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultStoreConfig().MaxQueueSize
	}
	return &Store{
		kv:     kv,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Stats summarizes the queue by status.
type Stats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Failed  int `json:"failed"`
}

// StatusUpdate carries the optional metadata merged by UpdateStatus.
type StatusUpdate struct {
	RetryCount *int
	LastError  *string
}

// Add validates data, constructs a new pending entry and prepends it to the
// queue (newest first). On validation failure nothing is written.
func (s *Store) Add(ctx context.Context, data PostData) (*QueuedPost, error) {
	if err := ValidatePostData(data); err != nil {
		return nil, err
	}

	var created *QueuedPost
	err := s.withLock(ctx, func(queue []QueuedPost) ([]QueuedPost, error) {
		if len(queue) >= s.cfg.MaxQueueSize {
			return nil, fmt.Errorf("%w: %d entries", ErrQueueFull, len(queue))
		}
		now := s.now().UnixMilli()
		entry := QueuedPost{
			QueueID: NewQueueID(s.now()),
			Data:    data,
			Meta: Metadata{
				Status:        StatusPending,
				CreatedAt:     now,
				RetryCount:    0,
				LastAttemptAt: now,
			},
		}
		created = &entry
		return append([]QueuedPost{entry}, queue...), nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("queued post", "queue_id", created.QueueID, "content_type", created.Data.ContentType)
	return created, nil
}

// All returns every entry, newest first.
func (s *Store) All(ctx context.Context) ([]QueuedPost, error) {
	var out []QueuedPost
	err := s.withLock(ctx, func(queue []QueuedPost) ([]QueuedPost, error) {
		out = append(out, queue...)
		return nil, nil
	})
	return out, err
}

// ByID returns the entry with the given queue ID.
func (s *Store) ByID(ctx context.Context, id string) (*QueuedPost, error) {
	var found *QueuedPost
	err := s.withLock(ctx, func(queue []QueuedPost) ([]QueuedPost, error) {
		for i := range queue {
			if queue[i].QueueID == id {
				entry := queue[i]
				found = &entry
				return nil, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ByStatus returns entries with the given status, newest first.
func (s *Store) ByStatus(ctx context.Context, status Status) ([]QueuedPost, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	var out []QueuedPost
	err := s.withLock(ctx, func(queue []QueuedPost) ([]QueuedPost, error) {
		for _, entry := range queue {
			if entry.Meta.Status == status {
				out = append(out, entry)
			}
		}
		return nil, nil
	})
	return out, err
}

// UpdateStatus moves the entry to a new status, merging the optional retry
// count and last error, and always refreshing LastAttemptAt.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status, update StatusUpdate) (*QueuedPost, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	var updated *QueuedPost
	err := s.withLock(ctx, func(queue []QueuedPost) ([]QueuedPost, error) {
		for i := range queue {
			if queue[i].QueueID != id {
				continue
			}
			queue[i].Meta.Status = status
			queue[i].Meta.LastAttemptAt = s.now().UnixMilli()
			if update.RetryCount != nil {
				queue[i].Meta.RetryCount = *update.RetryCount
			}
			if update.LastError != nil {
				queue[i].Meta.LastError = *update.LastError
			}
			entry := queue[i]
			updated = &entry
			return queue, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Remove deletes the entry with the given queue ID. Removal happens only on
// confirmed server-side success or explicit user action.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.withLock(ctx, func(queue []QueuedPost) ([]QueuedPost, error) {
		for i := range queue {
			if queue[i].QueueID == id {
				return append(queue[:i], queue[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, id)
	})
}

// Stats returns per-status counts for the whole queue.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.withLock(ctx, func(queue []QueuedPost) ([]QueuedPost, error) {
		stats.Total = len(queue)
		for _, entry := range queue {
			switch entry.Meta.Status {
			case StatusPending:
				stats.Pending++
			case StatusSyncing:
				stats.Syncing++
			case StatusFailed:
				stats.Failed++
			}
		}
		return nil, nil
	})
	return stats, err
}

// Clear empties the queue. Administrative/test operation.
func (s *Store) Clear(ctx context.Context) error {
	return s.withLock(ctx, func(queue []QueuedPost) ([]QueuedPost, error) {
		return []QueuedPost{}, nil
	})
}

// withLock runs fn under the queue lock. fn receives the current queue
// (healed and sorted newest-first) and returns the queue to persist, or nil
// to skip the write. The lock is released on every exit path.
func (s *Store) withLock(ctx context.Context, fn func(queue []QueuedPost) ([]QueuedPost, error)) error {
	if err := s.lock.acquire(s.cfg.LockTimeout); err != nil {
		return err
	}
	defer s.lock.release()

	queue, healed, err := s.load(ctx)
	if err != nil {
		return err
	}
	// Self-heal: persist the filtered queue so corrupt entries do not survive
	// to the next read.
	if healed {
		if err := s.save(ctx, queue); err != nil {
			return err
		}
	}

	next, err := fn(queue)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	return s.save(ctx, next)
}

// load reads and decodes the persisted queue. Corruption never fails the
// read: a blob that is not an array resets the queue, and individual
// malformed entries are dropped. healed reports whether anything was dropped.
func (s *Store) load(ctx context.Context) (queue []QueuedPost, healed bool, err error) {
	blob, ok, err := s.kv.Get(ctx, queueKey)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrStorageRead, err)
	}
	if !ok || len(blob) == 0 {
		return []QueuedPost{}, false, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(blob, &items); err != nil {
		s.logger.Warn("persisted queue is not an array, resetting", "error", err)
		return []QueuedPost{}, true, nil
	}

	queue = make([]QueuedPost, 0, len(items))
	for _, item := range items {
		entry, ok := decodeEntry(item)
		if !ok {
			s.logger.Warn("dropping malformed queue entry", "raw_len", len(item))
			healed = true
			continue
		}
		queue = append(queue, entry)
	}

	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].Meta.CreatedAt > queue[j].Meta.CreatedAt
	})
	return queue, healed, nil
}

// decodeEntry parses one persisted entry, requiring all of queueId, postData
// and metadata to be present and well-formed.
func decodeEntry(raw json.RawMessage) (QueuedPost, bool) {
	var probe struct {
		QueueID *string   `json:"queueId"`
		Data    *PostData `json:"postData"`
		Meta    *Metadata `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return QueuedPost{}, false
	}
	if probe.QueueID == nil || *probe.QueueID == "" || probe.Data == nil || probe.Meta == nil {
		return QueuedPost{}, false
	}
	if !probe.Meta.Status.Valid() || !probe.Data.ContentType.Valid() {
		return QueuedPost{}, false
	}
	return QueuedPost{QueueID: *probe.QueueID, Data: *probe.Data, Meta: *probe.Meta}, true
}

func (s *Store) save(ctx context.Context, queue []QueuedPost) error {
	blob, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	if err := s.kv.Set(ctx, queueKey, blob); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	return nil
}
