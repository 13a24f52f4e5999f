// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package postsync

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// NetStatus is the tri-state connectivity verdict.
type NetStatus string

const (
	NetOnline  NetStatus = "online"
	NetOffline NetStatus = "offline"
	NetUnknown NetStatus = "unknown"
)

// ConnectionType mirrors the platform probe's connection kinds.
type ConnectionType string

const (
	ConnWifi      ConnectionType = "wifi"
	ConnCellular  ConnectionType = "cellular"
	ConnEthernet  ConnectionType = "ethernet"
	ConnBluetooth ConnectionType = "bluetooth"
	ConnVPN       ConnectionType = "vpn"
	ConnNone      ConnectionType = "none"
	ConnUnknown   ConnectionType = "unknown"
	ConnOther     ConnectionType = "other"
)

// Reading is a raw connectivity sample from the platform probe. Connected
// and InternetReachable are tri-state: nil means the platform does not know
// yet.
type Reading struct {
	Connected         *bool
	InternetReachable *bool
	ConnType          ConnectionType
}

// NetworkState is the monitor's published view of connectivity.
type NetworkState struct {
	Status              NetStatus
	IsConnected         *bool
	IsInternetReachable *bool
	ConnType            ConnectionType
	LastCheckedAt       time.Time
}

// Probe abstracts the platform connectivity source: a one-shot fetch and a
// change-notification subscription.
type Probe interface {
	Fetch(ctx context.Context) (Reading, error)
	// Watch registers fn for connectivity change callbacks and returns an
	// unsubscribe function.
	Watch(fn func(Reading)) (unsub func())
}

// Pinger confirms the backend itself is reachable. *syncapi.Client
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MonitorConfig holds the monitor's timing knobs.
type MonitorConfig struct {
	// DebounceWindow coalesces minor changes (e.g. wifi -> cellular while
	// staying online) to avoid flicker.
	DebounceWindow time.Duration
	// InitialRecheckDelay forces a fresh probe shortly after startup if the
	// first reading left the status unknown. Some platforms report
	// reachability late.
	InitialRecheckDelay time.Duration
}

// DefaultMonitorConfig returns the production defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		DebounceWindow:      300 * time.Millisecond,
		InitialRecheckDelay: 1 * time.Second,
	}
}

// DeriveStatus turns a raw reading into the tri-state status. Reachability
// is authoritative when known; a connected network with unverified
// reachability is optimistically unknown rather than offline.
func DeriveStatus(r Reading) NetStatus {
	if r.InternetReachable != nil {
		if *r.InternetReachable {
			return NetOnline
		}
		return NetOffline
	}
	if r.Connected != nil {
		if *r.Connected {
			return NetUnknown
		}
		return NetOffline
	}
	return NetUnknown
}

// Monitor observes the platform probe, debounces flapping readings, and
// publishes a tri-state connectivity status to subscribers. It is the single
// writer of NetworkState.
type Monitor struct {
	probe  Probe
	pinger Pinger
	cfg    MonitorConfig
	logger *slog.Logger

	mu            sync.Mutex
	state         NetworkState
	closed        bool
	pendingState  *NetworkState
	debounceTimer *time.Timer
	recheckTimer  *time.Timer
	unwatch       func()

	hub *hub[NetworkState]
	now func() time.Time
}

// NewMonitor creates a network monitor. pinger may be nil, in which case
// CheckAPIReachability always reports false and FullCheck trusts the probe.
func NewMonitor(probe Probe, pinger Pinger, cfg MonitorConfig, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultMonitorConfig().DebounceWindow
	}
	if cfg.InitialRecheckDelay <= 0 {
		cfg.InitialRecheckDelay = DefaultMonitorConfig().InitialRecheckDelay
	}
	return &Monitor{
		probe:  probe,
		pinger: pinger,
		cfg:    cfg,
		logger: logger,
		state: NetworkState{
			Status:   NetUnknown,
			ConnType: ConnUnknown,
		},
		hub: newHub[NetworkState](logger),
		now: time.Now,
	}
}

// Start fetches the initial reading and begins watching the probe. If the
// initial status is unknown, a one-shot recheck is armed.
func (m *Monitor) Start(ctx context.Context) error {
	reading, err := m.probe.Fetch(ctx)
	if err != nil {
		m.logger.Warn("initial connectivity fetch failed", "error", err)
	} else {
		m.applyImmediate(m.stateFrom(reading))
	}

	if m.State().Status == NetUnknown {
		m.mu.Lock()
		m.recheckTimer = time.AfterFunc(m.cfg.InitialRecheckDelay, func() {
			if m.State().Status == NetUnknown {
				if _, err := m.Refresh(context.Background()); err != nil {
					m.logger.Warn("startup connectivity recheck failed", "error", err)
				}
			}
		})
		m.mu.Unlock()
	}

	m.unwatch = m.probe.Watch(m.handleReading)
	return nil
}

// State returns the current network state.
func (m *Monitor) State() NetworkState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for state changes. fn is invoked immediately with
// the current state; the returned function unsubscribes.
func (m *Monitor) Subscribe(fn func(NetworkState)) func() {
	return m.hub.subscribe(fn, m.State())
}

// Refresh forces a fresh probe fetch and applies it immediately, bypassing
// the debounce.
func (m *Monitor) Refresh(ctx context.Context) (NetworkState, error) {
	reading, err := m.probe.Fetch(ctx)
	if err != nil {
		return m.State(), err
	}
	m.applyImmediate(m.stateFrom(reading))
	return m.State(), nil
}

// CheckAPIReachability confirms the backend answers at all. Any HTTP
// response counts; only transport failure or timeout does not.
func (m *Monitor) CheckAPIReachability(ctx context.Context) bool {
	if m.pinger == nil {
		return false
	}
	if err := m.pinger.Ping(ctx); err != nil {
		m.logger.Debug("api liveness probe failed", "error", err)
		return false
	}
	return true
}

// FullCheck combines a fresh platform probe with the API ping. A platform
// verdict of offline is trusted without pinging; otherwise the ping decides
// the final online/offline status.
func (m *Monitor) FullCheck(ctx context.Context) (NetworkState, error) {
	reading, err := m.probe.Fetch(ctx)
	if err != nil {
		return m.State(), err
	}

	next := m.stateFrom(reading)
	if next.Status != NetOffline && m.pinger != nil {
		if m.CheckAPIReachability(ctx) {
			next.Status = NetOnline
		} else {
			next.Status = NetOffline
		}
	}
	m.applyImmediate(next)
	return m.State(), nil
}

// Close stops timers and the probe watch. The monitor must not be reused.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
		m.debounceTimer = nil
	}
	if m.recheckTimer != nil {
		m.recheckTimer.Stop()
		m.recheckTimer = nil
	}
	m.pendingState = nil
	unwatch := m.unwatch
	m.unwatch = nil
	m.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
}

// handleReading classifies the incoming reading: transitions that flip
// online-ness apply immediately and cancel any pending debounce; everything
// else coalesces through the debounce window.
func (m *Monitor) handleReading(r Reading) {
	next := m.stateFrom(r)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	significant := (m.state.Status == NetOnline) != (next.Status == NetOnline)
	if !significant {
		m.pendingState = &next
		if m.debounceTimer != nil {
			m.debounceTimer.Stop()
		}
		m.debounceTimer = time.AfterFunc(m.cfg.DebounceWindow, m.flushPending)
		m.mu.Unlock()
		return
	}
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
		m.debounceTimer = nil
	}
	m.pendingState = nil
	changed := m.setStateLocked(next)
	m.mu.Unlock()

	if changed {
		m.hub.publish(next)
	}
}

func (m *Monitor) flushPending() {
	m.mu.Lock()
	if m.closed || m.pendingState == nil {
		m.mu.Unlock()
		return
	}
	next := *m.pendingState
	m.pendingState = nil
	changed := m.setStateLocked(next)
	m.mu.Unlock()

	if changed {
		m.hub.publish(next)
	}
}

func (m *Monitor) applyImmediate(next NetworkState) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
		m.debounceTimer = nil
	}
	m.pendingState = nil
	changed := m.setStateLocked(next)
	m.mu.Unlock()

	if changed {
		m.hub.publish(next)
	}
}

// setStateLocked installs next and reports whether an observable field
// changed. LastCheckedAt alone is not observable.
func (m *Monitor) setStateLocked(next NetworkState) bool {
	prev := m.state
	m.state = next
	return prev.Status != next.Status ||
		!triStateEqual(prev.IsConnected, next.IsConnected) ||
		!triStateEqual(prev.IsInternetReachable, next.IsInternetReachable) ||
		prev.ConnType != next.ConnType
}

func (m *Monitor) stateFrom(r Reading) NetworkState {
	connType := r.ConnType
	if connType == "" {
		connType = ConnUnknown
	}
	return NetworkState{
		Status:              DeriveStatus(r),
		IsConnected:         r.Connected,
		IsInternetReachable: r.InternetReachable,
		ConnType:            connType,
		LastCheckedAt:       m.now(),
	}
}

func triStateEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
