// Package connectivity tracks whether the attendance server is reachable.
// There is no OS push source for a CLI, so the observer polls /healthz and
// debounces failures with a hold-down before declaring the device offline.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/rollcall/internal/metrics"
)

// Defaults for Config zero values.
const (
	DefaultInterval = 10 * time.Second
	DefaultHoldDown = 5 * time.Second
	DefaultTimeout  = 3 * time.Second
)

const subscriberBuffer = 8

// ProbeFunc reports whether the server answered. Any error means unreachable.
type ProbeFunc func(ctx context.Context) error

// Transition is an online/offline edge.
type Transition struct {
	Online bool
	At     time.Time
}

// Config tunes probing.
type Config struct {
	Interval time.Duration // between probes
	HoldDown time.Duration // failures must persist this long before going offline
	Timeout  time.Duration // per probe
}

// Observer holds the binary connectivity state. It starts offline.
type Observer struct {
	probe   ProbeFunc
	cfg     Config
	metrics *metrics.Sync

	mu           sync.Mutex
	online       bool
	failingSince time.Time
	forced       *bool
	subs         []chan Transition
}

// New creates an observer. probe may be nil when the state is only forced.
func New(probe ProbeFunc, cfg Config, m *metrics.Sync) *Observer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.HoldDown < 0 {
		cfg.HoldDown = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	m.SetOnline(false)
	return &Observer{probe: probe, cfg: cfg, metrics: m}
}

// IsOnline reports the current state.
func (o *Observer) IsOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// Subscribe returns a channel of transitions. Delivery is non-blocking: a
// subscriber that stops reading misses transitions rather than stalling
// the observer.
func (o *Observer) Subscribe() <-chan Transition {
	ch := make(chan Transition, subscriberBuffer)
	o.mu.Lock()
	o.subs = append(o.subs, ch)
	o.mu.Unlock()
	return ch
}

// Observe feeds one probe result. It returns true when the state changed.
// Success flips to online immediately; failure flips to offline only once
// failures have lasted HoldDown.
func (o *Observer) Observe(reachable bool, at time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.forced != nil {
		return false
	}
	if reachable {
		o.failingSince = time.Time{}
		if o.online {
			return false
		}
		o.setLocked(true, at)
		return true
	}

	if o.failingSince.IsZero() {
		o.failingSince = at
	}
	if !o.online || at.Sub(o.failingSince) < o.cfg.HoldDown {
		return false
	}
	o.setLocked(false, at)
	return true
}

// Force pins the state, ignoring probes until Unforce.
func (o *Observer) Force(online bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.forced = &online
	o.failingSince = time.Time{}
	if o.online != online {
		o.setLocked(online, time.Now())
	}
}

// Unforce resumes probing from the current state.
func (o *Observer) Unforce() {
	o.mu.Lock()
	o.forced = nil
	o.mu.Unlock()
}

func (o *Observer) setLocked(online bool, at time.Time) {
	o.online = online
	o.metrics.SetOnline(online)
	slog.Info("connectivity: transition", "online", online)

	tr := Transition{Online: online, At: at}
	for _, ch := range o.subs {
		select {
		case ch <- tr:
		default:
			slog.Warn("connectivity: subscriber full, dropping transition", "online", online)
		}
	}
}

// ProbeOnce runs the probe and feeds the result. It returns the state
// afterwards.
func (o *Observer) ProbeOnce(ctx context.Context) bool {
	if o.probe == nil {
		return o.IsOnline()
	}
	pctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	err := o.probe(pctx)
	cancel()
	if err != nil {
		slog.Debug("connectivity: probe failed", "err", err)
	}
	o.Observe(err == nil, time.Now())
	return o.IsOnline()
}

// Run probes immediately and then every Interval until ctx is done.
func (o *Observer) Run(ctx context.Context) {
	o.ProbeOnce(ctx)

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.ProbeOnce(ctx)
		}
	}
}
