// Package scheduler decides when a reconciliation pass runs: on reconnect,
// on a periodic tick and on demand. Triggers that arrive while a pass is
// scheduled or running are coalesced into it.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/rollcall/internal/connectivity"
	syncpkg "github.com/marcus/rollcall/internal/sync"
	"github.com/marcus/rollcall/internal/syncerr"
)

// DefaultInterval is the periodic trigger when Config.Interval is zero.
const DefaultInterval = 24 * time.Hour

// State is the scheduler lifecycle state.
type State string

const (
	Idle      State = "idle"
	Scheduled State = "scheduled"
	Running   State = "running"
)

// Reason says why a pass was requested.
type Reason string

const (
	ReasonReconnect Reason = "reconnect"
	ReasonTick      Reason = "tick"
	ReasonManual    Reason = "manual"
	ReasonStartup   Reason = "startup"
)

// Trigger is the message consumed by the run loop.
type Trigger struct {
	Reason Reason
	At     time.Time
}

// Passer runs one reconciliation pass.
type Passer interface {
	Pass(ctx context.Context) (syncpkg.PassResult, error)
}

// Config tunes the scheduler.
type Config struct {
	Interval time.Duration
	OnStart  bool // run one pass when Run starts
}

// Scheduler owns the idle/scheduled/running state machine. Only the Run
// goroutine invokes passes, so passes never overlap within a process.
type Scheduler struct {
	passer      Passer
	transitions <-chan connectivity.Transition
	cfg         Config

	// triggers holds at most one message, present exactly while Scheduled.
	triggers chan Trigger

	mu      sync.Mutex
	state   State
	paused  bool
	last    *syncpkg.PassResult
	lastErr error
}

// New creates a scheduler. transitions may be nil when there is no
// connectivity observer.
func New(passer Passer, transitions <-chan connectivity.Transition, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Scheduler{
		passer:      passer,
		transitions: transitions,
		cfg:         cfg,
		triggers:    make(chan Trigger, 1),
		state:       Idle,
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Paused reports whether automatic triggers are suspended after an auth
// failure. A manual trigger clears it.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// LastResult returns the most recent pass and its error, if any pass ran.
func (s *Scheduler) LastResult() (*syncpkg.PassResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastErr
}

// Trigger requests a pass. It returns false when the request was coalesced
// into a scheduled or running pass, or dropped because automatic triggers
// are paused.
func (s *Scheduler) Trigger(reason Reason) bool {
	s.mu.Lock()
	if reason == ReasonManual {
		s.paused = false
	} else if s.paused {
		s.mu.Unlock()
		slog.Debug("scheduler: paused, ignoring trigger", "reason", reason)
		return false
	}
	if state := s.state; state != Idle {
		s.mu.Unlock()
		slog.Debug("scheduler: coalesced trigger", "reason", reason, "state", state)
		return false
	}
	s.state = Scheduled
	s.mu.Unlock()

	// Never blocks: the buffer is drained before the state returns to Idle.
	s.triggers <- Trigger{Reason: reason, At: time.Now()}
	return true
}

// SyncNow is the manual "sync now" trigger.
func (s *Scheduler) SyncNow() bool {
	return s.Trigger(ReasonManual)
}

// Run consumes triggers until ctx is done. It is the only caller of Pass.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if s.cfg.OnStart {
		s.Trigger(ReasonStartup)
	}

	transitions := s.transitions
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Trigger(ReasonTick)
		case tr, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			if tr.Online {
				s.Trigger(ReasonReconnect)
			}
		case t := <-s.triggers:
			s.runPass(ctx, t)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context, t Trigger) {
	s.mu.Lock()
	s.state = Running
	s.mu.Unlock()

	slog.Debug("scheduler: running pass", "reason", t.Reason)
	res, err := s.passer.Pass(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	s.last = &res
	s.lastErr = err
	if errors.Is(err, syncerr.ErrAuth) {
		s.paused = true
		slog.Warn("scheduler: auth failure, pausing automatic sync until a manual sync")
	}
}
