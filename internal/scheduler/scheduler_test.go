package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcus/rollcall/internal/connectivity"
	syncpkg "github.com/marcus/rollcall/internal/sync"
	"github.com/marcus/rollcall/internal/syncerr"
)

// gatedPasser blocks each pass until released and reports when it starts.
type gatedPasser struct {
	started chan struct{}
	release chan error
}

func newGatedPasser() *gatedPasser {
	return &gatedPasser{started: make(chan struct{}, 16), release: make(chan error)}
}

func (g *gatedPasser) Pass(ctx context.Context) (syncpkg.PassResult, error) {
	g.started <- struct{}{}
	select {
	case err := <-g.release:
		return syncpkg.PassResult{Err: err}, err
	case <-ctx.Done():
		return syncpkg.PassResult{}, ctx.Err()
	}
}

func waitStarted(t *testing.T, g *gatedPasser) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("pass did not start")
	}
}

func waitState(t *testing.T, s *Scheduler, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %q, want %q", s.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestTriggersCoalesce(t *testing.T) {
	g := newGatedPasser()
	s := New(g, nil, Config{Interval: time.Hour})

	if !s.Trigger(ReasonManual) {
		t.Fatal("first trigger should schedule")
	}
	if s.State() != Scheduled {
		t.Errorf("state = %q, want scheduled", s.State())
	}
	if s.Trigger(ReasonTick) || s.Trigger(ReasonReconnect) {
		t.Error("triggers while scheduled must coalesce")
	}

	startScheduler(t, s)
	waitStarted(t, g)
	waitState(t, s, Running)
	if s.SyncNow() {
		t.Error("trigger while running must coalesce")
	}

	g.release <- nil
	waitState(t, s, Idle)
	select {
	case <-g.started:
		t.Fatal("coalesced triggers must not start another pass")
	case <-time.After(20 * time.Millisecond):
	}

	if !s.Trigger(ReasonTick) {
		t.Error("idle scheduler should accept a trigger")
	}
	waitStarted(t, g)
	g.release <- nil
	waitState(t, s, Idle)
}

func TestReconnectTriggersPass(t *testing.T) {
	g := newGatedPasser()
	transitions := make(chan connectivity.Transition, 2)
	s := New(g, transitions, Config{Interval: time.Hour})
	startScheduler(t, s)

	transitions <- connectivity.Transition{Online: false, At: time.Now()}
	transitions <- connectivity.Transition{Online: true, At: time.Now()}
	waitStarted(t, g)
	g.release <- nil
	waitState(t, s, Idle)

	select {
	case <-g.started:
		t.Fatal("going offline must not trigger a pass")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTickAndStartup(t *testing.T) {
	g := newGatedPasser()
	s := New(g, nil, Config{Interval: 10 * time.Millisecond, OnStart: true})
	startScheduler(t, s)

	waitStarted(t, g)
	g.release <- nil
	waitStarted(t, g) // next tick
	g.release <- nil
}

func TestAuthFailurePausesAutomaticTriggers(t *testing.T) {
	g := newGatedPasser()
	s := New(g, nil, Config{Interval: time.Hour})
	startScheduler(t, s)

	s.SyncNow()
	waitStarted(t, g)
	g.release <- syncerr.Auth(errors.New("401"))
	waitState(t, s, Idle)

	if !s.Paused() {
		t.Fatal("auth failure should pause")
	}
	_, err := s.LastResult()
	if !errors.Is(err, syncerr.ErrAuth) {
		t.Errorf("LastResult err = %v", err)
	}
	if s.Trigger(ReasonReconnect) || s.Trigger(ReasonTick) {
		t.Error("automatic triggers must be ignored while paused")
	}

	if !s.SyncNow() {
		t.Fatal("manual trigger should resume")
	}
	if s.Paused() {
		t.Error("manual trigger clears pause")
	}
	waitStarted(t, g)
	g.release <- nil
	waitState(t, s, Idle)
}
