// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package postsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vinayykkumar/smriti-combined-sub000/postqueue"
)

// AppState mirrors the host application's lifecycle states.
type AppState string

const (
	AppActive     AppState = "active"
	AppBackground AppState = "background"
	AppInactive   AppState = "inactive"
)

// NetworkWatcher is the slice of Monitor the orchestrator needs.
type NetworkWatcher interface {
	State() NetworkState
	Subscribe(fn func(NetworkState)) func()
}

// OrchestratorConfig holds trigger toggles and timing policy.
type OrchestratorConfig struct {
	SyncOnLaunch         bool
	SyncOnForeground     bool
	SyncOnNetworkRestore bool

	// LaunchDelay lets the app finish initializing before the launch sync.
	LaunchDelay time.Duration
	// StabilityDelay guards against flapping connections: the restoration
	// sync only fires if the network stays up this long.
	StabilityDelay time.Duration
	// MinSyncInterval throttles trigger storms (rapid foreground/background
	// cycling, repeated manual taps).
	MinSyncInterval time.Duration
}

// DefaultOrchestratorConfig returns the production defaults with every
// trigger enabled.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		SyncOnLaunch:         true,
		SyncOnForeground:     true,
		SyncOnNetworkRestore: true,
		LaunchDelay:          3 * time.Second,
		StabilityDelay:       2 * time.Second,
		MinSyncInterval:      30 * time.Second,
	}
}

// Orchestrator decides when to invoke the sync engine: on launch, on
// foreground resume, on network restoration and on manual trigger. It never
// duplicates the engine's own logic; it only gates the calls.
type Orchestrator struct {
	engine  *Engine
	store   *postqueue.Store
	monitor NetworkWatcher
	cfg     OrchestratorConfig
	logger  *slog.Logger

	mu             sync.Mutex
	enabled        bool
	launched       bool
	lastAttempt    time.Time
	queueCount     int
	prevAppState   AppState
	prevNetStatus  NetStatus
	netPrimed      bool
	launchTimer    *time.Timer
	stabilityTimer *time.Timer
	unsubNet       func()
	baseCtx        context.Context
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(engine *Engine, store *postqueue.Store, monitor NetworkWatcher, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		engine:       engine,
		store:        store,
		monitor:      monitor,
		cfg:          cfg,
		logger:       logger,
		enabled:      true,
		prevAppState: AppActive,
		baseCtx:      context.Background(),
	}
}

// Start begins watching the network and arms the one-shot launch sync. ctx
// is used for every timer-driven sync attempt.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	o.baseCtx = ctx
	launch := o.cfg.SyncOnLaunch && !o.launched
	if launch {
		o.launched = true
		o.launchTimer = time.AfterFunc(o.cfg.LaunchDelay, func() {
			o.attempt("launch")
		})
	}
	o.mu.Unlock()

	if o.monitor != nil {
		o.unsubNet = o.monitor.Subscribe(o.handleNetworkState)
	}
}

// handleNetworkState arms the stability timer on an offline-to-online
// transition and cancels it if the network drops again before it fires. An
// unknown-to-online transition is deliberately not a restoration.
func (o *Orchestrator) handleNetworkState(state NetworkState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.netPrimed {
		// First callback is the subscription replay of current state.
		o.netPrimed = true
		o.prevNetStatus = state.Status
		return
	}

	prev := o.prevNetStatus
	o.prevNetStatus = state.Status

	if state.Status == NetOffline && o.stabilityTimer != nil {
		o.stabilityTimer.Stop()
		o.stabilityTimer = nil
	}

	if o.cfg.SyncOnNetworkRestore && prev == NetOffline && state.Status == NetOnline {
		if o.stabilityTimer != nil {
			o.stabilityTimer.Stop()
		}
		o.logger.Debug("network restored, arming stability timer")
		o.stabilityTimer = time.AfterFunc(o.cfg.StabilityDelay, func() {
			o.attempt("network restored")
		})
	}
}

// AppStateChange reports a host lifecycle transition. A move from
// background or inactive to active triggers a sync attempt.
func (o *Orchestrator) AppStateChange(state AppState) {
	o.mu.Lock()
	prev := o.prevAppState
	o.prevAppState = state
	trigger := o.cfg.SyncOnForeground && state == AppActive && prev != AppActive
	o.mu.Unlock()

	if trigger {
		o.attempt("foreground")
	}
}

// TriggerManual runs a sync attempt immediately, with no trigger delay but
// subject to every guard.
func (o *Orchestrator) TriggerManual(ctx context.Context) (*SyncResult, error) {
	return o.attemptWith(ctx, "manual")
}

// SetEnabled toggles orchestration. A disabled orchestrator skips every
// trigger.
func (o *Orchestrator) SetEnabled(enabled bool) {
	o.mu.Lock()
	o.enabled = enabled
	o.mu.Unlock()
}

// QueueCount returns the cached pending+failed count for UI badges.
func (o *Orchestrator) QueueCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queueCount
}

// RefreshQueueCount recomputes the cached queue count from storage.
func (o *Orchestrator) RefreshQueueCount(ctx context.Context) (int, error) {
	stats, err := o.store.Stats(ctx)
	if err != nil {
		return o.QueueCount(), err
	}
	count := stats.Pending + stats.Failed
	o.mu.Lock()
	o.queueCount = count
	o.mu.Unlock()
	return count, nil
}

// Cleanup stops timers and the network subscription. Call once on teardown.
func (o *Orchestrator) Cleanup() {
	o.mu.Lock()
	o.enabled = false
	if o.launchTimer != nil {
		o.launchTimer.Stop()
		o.launchTimer = nil
	}
	if o.stabilityTimer != nil {
		o.stabilityTimer.Stop()
		o.stabilityTimer = nil
	}
	unsub := o.unsubNet
	o.unsubNet = nil
	o.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (o *Orchestrator) attempt(reason string) {
	o.mu.Lock()
	ctx := o.baseCtx
	o.mu.Unlock()
	if _, err := o.attemptWith(ctx, reason); err != nil {
		o.logger.Warn("scheduled sync attempt failed", "reason", reason, "error", err)
	}
}

// attemptWith applies every guard and, if all pass, runs one sync. The
// guards hold for every trigger source.
func (o *Orchestrator) attemptWith(ctx context.Context, reason string) (*SyncResult, error) {
	o.mu.Lock()
	if !o.enabled {
		o.mu.Unlock()
		return &SyncResult{Skipped: true, Message: "orchestration disabled"}, nil
	}
	if o.cfg.MinSyncInterval > 0 && !o.lastAttempt.IsZero() && time.Since(o.lastAttempt) < o.cfg.MinSyncInterval {
		o.mu.Unlock()
		o.logger.Debug("sync attempt throttled", "reason", reason)
		return &SyncResult{Skipped: true, Message: "sync attempted too recently"}, nil
	}
	o.mu.Unlock()

	if o.engine.Running() {
		return &SyncResult{Skipped: true, Message: "sync already in progress"}, nil
	}
	if o.monitor != nil && o.monitor.State().Status != NetOnline {
		return &SyncResult{Skipped: true, Message: "network unavailable"}, nil
	}

	stats, err := o.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.Pending == 0 {
		o.mu.Lock()
		o.queueCount = stats.Pending + stats.Failed
		o.mu.Unlock()
		o.logger.Debug("sync attempt skipped, queue empty", "reason", reason)
		return &SyncResult{Skipped: true, Message: "no pending posts"}, nil
	}

	o.logger.Info("triggering sync", "reason", reason, "pending", stats.Pending)
	result, err := o.engine.SyncPending(ctx)

	o.mu.Lock()
	o.lastAttempt = time.Now()
	o.mu.Unlock()
	if _, refreshErr := o.RefreshQueueCount(ctx); refreshErr != nil {
		o.logger.Warn("failed to refresh queue count", "error", refreshErr)
	}

	return result, err
}
