// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package postsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vinayykkumar/smriti-combined-sub000/postqueue"
)

// fakeWatcher mimics Monitor's subscribe contract: the callback is replayed
// immediately with the current state.
type fakeWatcher struct {
	mu      sync.Mutex
	state   NetworkState
	watcher func(NetworkState)
}

func newFakeWatcher(status NetStatus) *fakeWatcher {
	return &fakeWatcher{state: NetworkState{Status: status}}
}

func (w *fakeWatcher) State() NetworkState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *fakeWatcher) Subscribe(fn func(NetworkState)) func() {
	w.mu.Lock()
	w.watcher = fn
	current := w.state
	w.mu.Unlock()
	fn(current)
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.watcher = nil
	}
}

func (w *fakeWatcher) emit(status NetStatus) {
	w.mu.Lock()
	w.state = NetworkState{Status: status}
	fn := w.watcher
	w.mu.Unlock()
	if fn != nil {
		fn(w.state)
	}
}

func newOrchestratorFixture(t *testing.T, watcher *fakeWatcher, cfg OrchestratorConfig) (*Orchestrator, *postqueue.Store, *fakeSender) {
	t.Helper()
	store := postqueue.NewStore(postqueue.NewMemoryKV(), postqueue.DefaultStoreConfig(), nil)
	sender := &fakeSender{handler: allSucceed}
	engine := NewEngine(store, sender, watcher, EngineConfig{BatchSize: 10, InterBatchDelay: 0}, nil)
	orch := NewOrchestrator(engine, store, watcher, cfg, nil)
	t.Cleanup(orch.Cleanup)
	return orch, store, sender
}

func quietConfig() OrchestratorConfig {
	// Every automatic trigger off; tests opt in per scenario.
	return OrchestratorConfig{StabilityDelay: 20 * time.Millisecond}
}

func TestOrchestrator_ManualTrigger(t *testing.T) {
	watcher := newFakeWatcher(NetOnline)
	orch, store, _ := newOrchestratorFixture(t, watcher, quietConfig())
	ctx := context.Background()
	addNotes(t, store, 2)

	result, err := orch.TriggerManual(ctx)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.Synced)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Total)
	require.Zero(t, orch.QueueCount(), "queue count refreshed after the run")
}

func TestOrchestrator_MinIntervalThrottle(t *testing.T) {
	watcher := newFakeWatcher(NetOnline)
	cfg := quietConfig()
	cfg.MinSyncInterval = time.Hour
	orch, store, _ := newOrchestratorFixture(t, watcher, cfg)
	ctx := context.Background()
	addNotes(t, store, 1)

	result, err := orch.TriggerManual(ctx)
	require.NoError(t, err)
	require.True(t, result.Success)

	addNotes(t, store, 1)
	result, err = orch.TriggerManual(ctx)
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Equal(t, "sync attempted too recently", result.Message)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Pending, "throttled attempt leaves the queue alone")
}

func TestOrchestrator_SkipsWhenQueueEmpty(t *testing.T) {
	watcher := newFakeWatcher(NetOnline)
	orch, store, sender := newOrchestratorFixture(t, watcher, quietConfig())
	ctx := context.Background()

	// A failed post is not pending; the attempt skips but the badge count
	// still reflects it.
	entry, err := store.Add(ctx, postqueue.PostData{ContentType: postqueue.ContentNote, TextContent: "x"})
	require.NoError(t, err)
	_, err = store.UpdateStatus(ctx, entry.QueueID, postqueue.StatusFailed, postqueue.StatusUpdate{})
	require.NoError(t, err)

	result, err := orch.TriggerManual(ctx)
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Equal(t, "no pending posts", result.Message)
	require.Zero(t, sender.callCount())
	require.Equal(t, 1, orch.QueueCount())
}

func TestOrchestrator_SkipsWhenOffline(t *testing.T) {
	watcher := newFakeWatcher(NetOffline)
	orch, store, sender := newOrchestratorFixture(t, watcher, quietConfig())
	addNotes(t, store, 1)

	result, err := orch.TriggerManual(context.Background())
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Equal(t, "network unavailable", result.Message)
	require.Zero(t, sender.callCount())
}

func TestOrchestrator_SkipsWhenDisabled(t *testing.T) {
	watcher := newFakeWatcher(NetOnline)
	orch, store, sender := newOrchestratorFixture(t, watcher, quietConfig())
	addNotes(t, store, 1)

	orch.SetEnabled(false)
	result, err := orch.TriggerManual(context.Background())
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Equal(t, "orchestration disabled", result.Message)
	require.Zero(t, sender.callCount())

	orch.SetEnabled(true)
	result, err = orch.TriggerManual(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestOrchestrator_LaunchTrigger(t *testing.T) {
	watcher := newFakeWatcher(NetOnline)
	cfg := quietConfig()
	cfg.SyncOnLaunch = true
	cfg.LaunchDelay = 10 * time.Millisecond
	orch, store, _ := newOrchestratorFixture(t, watcher, cfg)
	ctx := context.Background()
	addNotes(t, store, 1)

	orch.Start(ctx)

	require.Eventually(t, func() bool {
		stats, err := store.Stats(ctx)
		return err == nil && stats.Total == 0
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestrator_ForegroundTrigger(t *testing.T) {
	watcher := newFakeWatcher(NetOnline)
	cfg := quietConfig()
	cfg.SyncOnForeground = true
	orch, store, sender := newOrchestratorFixture(t, watcher, cfg)
	ctx := context.Background()
	orch.Start(ctx)
	addNotes(t, store, 1)

	// Active to active is not a resume.
	orch.AppStateChange(AppActive)
	require.Zero(t, sender.callCount())

	orch.AppStateChange(AppBackground)
	orch.AppStateChange(AppActive)
	require.Eventually(t, func() bool {
		stats, err := store.Stats(ctx)
		return err == nil && stats.Total == 0
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestrator_NetworkRestoreTrigger(t *testing.T) {
	watcher := newFakeWatcher(NetOffline)
	cfg := quietConfig()
	cfg.SyncOnNetworkRestore = true
	orch, store, _ := newOrchestratorFixture(t, watcher, cfg)
	ctx := context.Background()
	orch.Start(ctx)
	addNotes(t, store, 1)

	watcher.emit(NetOnline)
	require.Eventually(t, func() bool {
		stats, err := store.Stats(ctx)
		return err == nil && stats.Total == 0
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestrator_UnknownToOnlineIsNotARestore(t *testing.T) {
	watcher := newFakeWatcher(NetUnknown)
	cfg := quietConfig()
	cfg.SyncOnNetworkRestore = true
	orch, store, sender := newOrchestratorFixture(t, watcher, cfg)
	orch.Start(context.Background())
	addNotes(t, store, 1)

	watcher.emit(NetOnline)
	time.Sleep(3 * cfg.StabilityDelay)
	require.Zero(t, sender.callCount())
}

func TestOrchestrator_FlappingNetworkCancelsRestore(t *testing.T) {
	watcher := newFakeWatcher(NetOffline)
	cfg := quietConfig()
	cfg.SyncOnNetworkRestore = true
	cfg.StabilityDelay = 50 * time.Millisecond
	orch, store, sender := newOrchestratorFixture(t, watcher, cfg)
	orch.Start(context.Background())
	addNotes(t, store, 1)

	watcher.emit(NetOnline)
	watcher.emit(NetOffline) // drops again before the stability window elapses
	time.Sleep(3 * cfg.StabilityDelay)
	require.Zero(t, sender.callCount())
}

func TestOrchestrator_RefreshQueueCount(t *testing.T) {
	watcher := newFakeWatcher(NetOnline)
	orch, store, _ := newOrchestratorFixture(t, watcher, quietConfig())
	ctx := context.Background()
	addNotes(t, store, 3)

	count, err := orch.RefreshQueueCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Equal(t, 3, orch.QueueCount())
}

func TestOrchestrator_CleanupDisables(t *testing.T) {
	watcher := newFakeWatcher(NetOnline)
	orch, store, sender := newOrchestratorFixture(t, watcher, quietConfig())
	orch.Start(context.Background())
	addNotes(t, store, 1)

	orch.Cleanup()
	result, err := orch.TriggerManual(context.Background())
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Zero(t, sender.callCount())

	watcher.mu.Lock()
	require.Nil(t, watcher.watcher, "network subscription released")
	watcher.mu.Unlock()
}
