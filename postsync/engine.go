// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package postsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayykkumar/smriti-combined-sub000/postqueue"
	"github.com/vinayykkumar/smriti-combined-sub000/syncapi"
)

// ErrSyncInProgress rejects a sync invocation while another run is active.
var ErrSyncInProgress = errors.New("sync already in progress")

// SyncStatus is the engine's run state.
type SyncStatus string

const (
	SyncIdle      SyncStatus = "idle"
	SyncRunning   SyncStatus = "syncing"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
	SyncCancelled SyncStatus = "cancelled"
)

// Progress counts entries for the in-flight or most recent run.
type Progress struct {
	Total   int `json:"total"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// SyncState is the engine's published run state. It is owned exclusively by
// the engine and broadcast on every change; it is never persisted.
type SyncState struct {
	Status       SyncStatus `json:"status"`
	Progress     Progress   `json:"progress"`
	CurrentBatch int        `json:"currentBatch"`
	TotalBatches int        `json:"totalBatches"`
	StartedAt    time.Time  `json:"startedAt"`
	LastError    string     `json:"lastError,omitempty"`
}

// SyncResult summarizes one SyncPending invocation.
type SyncResult struct {
	Success bool
	Skipped bool
	Message string
	Synced  int
	Failed  int
}

// BatchSender sends one batch of posts to the backend. *syncapi.Client
// satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, items []syncapi.BatchItem) (*syncapi.BatchResponse, error)
}

// NetworkSource exposes the current connectivity verdict. *Monitor
// satisfies it.
type NetworkSource interface {
	State() NetworkState
}

// EngineConfig holds the engine's tunables.
type EngineConfig struct {
	BatchSize       int           // posts per API call
	MaxRetries      int           // automatic retries per post
	MarkChunkSize   int           // status transitions per storage pass
	InterBatchDelay time.Duration // politeness delay between batches
}

// DefaultEngineConfig returns the production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BatchSize:       10,
		MaxRetries:      3,
		MarkChunkSize:   20,
		InterBatchDelay: 500 * time.Millisecond,
	}
}

// Engine drains eligible queue entries to the backend in batches, classifies
// failures into retry-vs-fail, and supports cooperative cancellation at
// batch boundaries. Only one run may be active at a time process-wide.
type Engine struct {
	store   *postqueue.Store
	sender  BatchSender
	network NetworkSource
	cfg     EngineConfig
	logger  *slog.Logger

	mu    sync.Mutex
	state SyncState

	running   atomic.Bool
	cancelled atomic.Bool

	hub *hub[SyncState]
}

// NewEngine creates a sync engine. network may be nil, in which case the
// offline guard is skipped (useful for tests driving the engine directly).
func NewEngine(store *postqueue.Store, sender BatchSender, network NetworkSource, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultEngineConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.MarkChunkSize <= 0 {
		cfg.MarkChunkSize = def.MarkChunkSize
	}
	if cfg.InterBatchDelay < 0 {
		cfg.InterBatchDelay = def.InterBatchDelay
	}
	return &Engine{
		store:   store,
		sender:  sender,
		network: network,
		cfg:     cfg,
		logger:  logger,
		state:   SyncState{Status: SyncIdle},
		hub:     newHub[SyncState](logger),
	}
}

// State returns the current sync state.
func (e *Engine) State() SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SubscribeProgress registers fn for sync state changes. fn is invoked
// immediately with the current state; the returned function unsubscribes.
func (e *Engine) SubscribeProgress(fn func(SyncState)) func() {
	return e.hub.subscribe(fn, e.State())
}

// Running reports whether a sync run is currently active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Cancel signals the in-flight run to stop at the next batch boundary. All
// not-yet-sent entries are reverted to pending. Returns whether a run was
// actually active.
func (e *Engine) Cancel() bool {
	if !e.running.Load() {
		return false
	}
	e.cancelled.Store(true)
	return true
}

// SyncPending drains all eligible pending entries (note/link content) to the
// batch endpoint. A concurrent invocation fails with ErrSyncInProgress; an
// offline network yields a skipped result without touching the queue.
func (e *Engine) SyncPending(ctx context.Context) (*SyncResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer e.running.Store(false)
	e.cancelled.Store(false)

	if e.offline() {
		e.logger.Debug("sync skipped, network unavailable")
		return &SyncResult{Skipped: true, Message: "network unavailable"}, nil
	}

	pending, err := e.store.ByStatus(ctx, postqueue.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending posts: %w", err)
	}
	var eligible []postqueue.QueuedPost
	for _, entry := range pending {
		if entry.EligibleForSync() {
			eligible = append(eligible, entry)
		}
	}
	if len(eligible) == 0 {
		return &SyncResult{Success: true, Message: "no posts to sync"}, nil
	}

	totalBatches := (len(eligible) + e.cfg.BatchSize - 1) / e.cfg.BatchSize
	e.setState(func(s *SyncState) {
		*s = SyncState{
			Status:       SyncRunning,
			Progress:     Progress{Total: len(eligible), Pending: len(eligible)},
			TotalBatches: totalBatches,
			StartedAt:    time.Now(),
		}
	})
	e.logger.Info("sync started", "eligible", len(eligible), "batches", totalBatches)

	result, err := e.run(ctx, eligible, totalBatches)
	if err != nil {
		// Unexpected failure: nothing may stay stuck in syncing.
		e.revertSyncing(ctx, err.Error())
		e.setState(func(s *SyncState) {
			s.Status = SyncFailed
			s.LastError = err.Error()
		})
		return nil, err
	}
	return result, nil
}

// run executes the batch loop. eligible entries have storage order (newest
// first); batches are sent in that same order.
func (e *Engine) run(ctx context.Context, eligible []postqueue.QueuedPost, totalBatches int) (*SyncResult, error) {
	// Transition everything to syncing up front, in bounded chunks so a
	// single storage pass never holds the lock for the whole set.
	for start := 0; start < len(eligible); start += e.cfg.MarkChunkSize {
		end := start + e.cfg.MarkChunkSize
		if end > len(eligible) {
			end = len(eligible)
		}
		for _, entry := range eligible[start:end] {
			if _, err := e.store.UpdateStatus(ctx, entry.QueueID, postqueue.StatusSyncing, postqueue.StatusUpdate{}); err != nil {
				return nil, fmt.Errorf("failed to mark post syncing: %w", err)
			}
		}
	}

	var synced, failed int
	for bi := 0; bi < totalBatches; bi++ {
		start := bi * e.cfg.BatchSize
		end := start + e.cfg.BatchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		batch := eligible[start:end]

		// Continuation check at the batch boundary: cancellation and network
		// loss both revert everything not yet attempted.
		if e.cancelled.Load() || ctx.Err() != nil || e.offline() {
			if err := e.revertToPending(ctx, eligible[start:]); err != nil {
				return nil, err
			}
			e.setState(func(s *SyncState) {
				s.Status = SyncCancelled
				s.Progress.Synced = synced
				s.Progress.Failed = failed
				s.Progress.Pending = s.Progress.Total - synced - failed
			})
			e.logger.Info("sync cancelled", "synced", synced, "failed", failed, "reverted", len(eligible)-start)
			return &SyncResult{Message: "sync cancelled", Synced: synced, Failed: failed}, nil
		}

		items := make([]syncapi.BatchItem, len(batch))
		for i, entry := range batch {
			items[i] = syncapi.BatchItem{
				QueueID:     entry.QueueID,
				ContentType: string(entry.Data.ContentType),
				Title:       entry.Data.Title,
				TextContent: entry.Data.TextContent,
				LinkURL:     entry.Data.LinkURL,
			}
		}

		resp, sendErr := e.sender.SendBatch(ctx, items)
		switch {
		case sendErr != nil:
			// Whole batch failed in transport: classify once per item.
			e.logger.Warn("batch request failed", "batch", bi+1, "error", sendErr)
			for _, entry := range batch {
				f, err := e.resolveFailure(ctx, entry, sendErr.Error(), true)
				if err != nil {
					return nil, err
				}
				failed += f
			}
		case !resp.Success:
			msg := resp.Error
			if msg == "" {
				msg = "server error"
			}
			e.logger.Warn("batch rejected by server", "batch", bi+1, "error", msg)
			for _, entry := range batch {
				f, err := e.resolveFailure(ctx, entry, msg, true)
				if err != nil {
					return nil, err
				}
				failed += f
			}
		default:
			results := resp.ResultsByID()
			for _, entry := range batch {
				itemResult, ok := results[entry.QueueID]
				if !ok {
					// The server silently dropped the item; retrying blindly
					// could double-post, so this is terminal.
					f, err := e.resolveFailure(ctx, entry, "Post not in batch response", false)
					if err != nil {
						return nil, err
					}
					failed += f
					continue
				}
				if itemResult.Success {
					if err := e.store.Remove(ctx, entry.QueueID); err != nil && !errors.Is(err, postqueue.ErrPostNotFound) {
						return nil, fmt.Errorf("failed to remove synced post: %w", err)
					}
					synced++
					continue
				}
				f, err := e.resolveFailure(ctx, entry, itemResult.Error, true)
				if err != nil {
					return nil, err
				}
				failed += f
			}
		}

		batchNum := bi + 1
		e.setState(func(s *SyncState) {
			s.CurrentBatch = batchNum
			s.Progress.Synced = synced
			s.Progress.Failed = failed
			s.Progress.Pending = s.Progress.Total - synced - failed
		})

		if bi < totalBatches-1 && e.cfg.InterBatchDelay > 0 {
			select {
			case <-time.After(e.cfg.InterBatchDelay):
			case <-ctx.Done():
				// Next boundary check turns this into a clean cancellation.
			}
		}
	}

	e.setState(func(s *SyncState) {
		s.Status = SyncCompleted
	})
	e.logger.Info("sync completed", "synced", synced, "failed", failed)
	return &SyncResult{Success: true, Synced: synced, Failed: failed}, nil
}

// resolveFailure applies the retry policy to one failed entry. Transient
// errors under the retry limit requeue as pending; everything else is
// terminal. It returns 1 when the entry went to failed, 0 when requeued.
func (e *Engine) resolveFailure(ctx context.Context, entry postqueue.QueuedPost, errMsg string, allowRetry bool) (int, error) {
	retries := entry.Meta.RetryCount + 1
	update := postqueue.StatusUpdate{RetryCount: &retries, LastError: &errMsg}

	if allowRetry && ClassifyError(errMsg) == ClassTransient && entry.Meta.RetryCount < e.cfg.MaxRetries {
		if _, err := e.store.UpdateStatus(ctx, entry.QueueID, postqueue.StatusPending, update); err != nil {
			return 0, fmt.Errorf("failed to requeue post: %w", err)
		}
		e.logger.Debug("post requeued after transient failure",
			"queue_id", entry.QueueID, "retry_count", retries, "error", errMsg)
		return 0, nil
	}

	if _, err := e.store.UpdateStatus(ctx, entry.QueueID, postqueue.StatusFailed, update); err != nil {
		return 0, fmt.Errorf("failed to mark post failed: %w", err)
	}
	e.logger.Debug("post failed permanently",
		"queue_id", entry.QueueID, "retry_count", retries, "error", errMsg)
	return 1, nil
}

// RetryFailed resets failed entries still under the retry limit back to
// pending and reports how many were reset. Entries at the limit stay failed
// until the underlying cause is addressed.
func (e *Engine) RetryFailed(ctx context.Context) (int, error) {
	failed, err := e.store.ByStatus(ctx, postqueue.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to read failed posts: %w", err)
	}
	reset := 0
	for _, entry := range failed {
		if entry.Meta.RetryCount >= e.cfg.MaxRetries {
			continue
		}
		if _, err := e.store.UpdateStatus(ctx, entry.QueueID, postqueue.StatusPending, postqueue.StatusUpdate{}); err != nil {
			return reset, fmt.Errorf("failed to reset post: %w", err)
		}
		reset++
	}
	if reset > 0 {
		e.logger.Info("failed posts reset for retry", "count", reset)
	}
	return reset, nil
}

// revertToPending returns not-yet-attempted entries to pending without
// touching their retry counts.
func (e *Engine) revertToPending(ctx context.Context, entries []postqueue.QueuedPost) error {
	for _, entry := range entries {
		if _, err := e.store.UpdateStatus(ctx, entry.QueueID, postqueue.StatusPending, postqueue.StatusUpdate{}); err != nil {
			return fmt.Errorf("failed to revert post to pending: %w", err)
		}
	}
	return nil
}

// revertSyncing is the crash net for unexpected failures: any entry still in
// syncing goes back to pending with the error recorded, so nothing wedges.
func (e *Engine) revertSyncing(ctx context.Context, errMsg string) {
	stuck, err := e.store.ByStatus(ctx, postqueue.StatusSyncing)
	if err != nil {
		e.logger.Error("failed to list in-flight posts during failure recovery", "error", err)
		return
	}
	for _, entry := range stuck {
		if _, err := e.store.UpdateStatus(ctx, entry.QueueID, postqueue.StatusPending, postqueue.StatusUpdate{LastError: &errMsg}); err != nil {
			e.logger.Error("failed to revert in-flight post", "queue_id", entry.QueueID, "error", err)
		}
	}
}

func (e *Engine) offline() bool {
	if e.network == nil {
		return false
	}
	return e.network.State().Status == NetOffline
}

func (e *Engine) setState(mutate func(*SyncState)) {
	e.mu.Lock()
	mutate(&e.state)
	snapshot := e.state
	e.mu.Unlock()
	e.hub.publish(snapshot)
}
