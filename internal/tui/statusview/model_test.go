package statusview

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/rollcall/internal/status"
	syncpkg "github.com/marcus/rollcall/internal/sync"
	"github.com/marcus/rollcall/internal/syncerr"
)

type fakeSource struct {
	snap status.Snapshot
	err  error
}

func (f *fakeSource) Snapshot() (status.Snapshot, error) {
	return f.snap, f.err
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return nm, cmd
}

func TestRefreshUpdatesSnapshot(t *testing.T) {
	src := &fakeSource{snap: status.Snapshot{Online: true, PendingCount: 3}}
	m := NewModel(src, nil, time.Second)

	m, _ = update(t, m, m.fetchData()())
	if m.Snap.PendingCount != 3 || !m.Snap.Online {
		t.Fatalf("snapshot not applied: %+v", m.Snap)
	}
	if m.LastRefresh.IsZero() {
		t.Error("LastRefresh not set")
	}

	// A failed read keeps the last good snapshot on screen.
	src.err = syncerr.Store("read", errors.New("locked"))
	src.snap = status.Snapshot{}
	m, _ = update(t, m, m.fetchData()())
	if m.Err == nil {
		t.Fatal("expected refresh error")
	}
	if m.Snap.PendingCount != 3 {
		t.Errorf("PendingCount = %d after failed refresh, want 3", m.Snap.PendingCount)
	}
}

func TestSyncKey(t *testing.T) {
	calls := 0
	syncFn := func(ctx context.Context) (syncpkg.PassResult, error) {
		calls++
		return syncpkg.PassResult{Synced: 2, Rejected: 1}, nil
	}
	m := NewModel(&fakeSource{}, syncFn, time.Second)

	m, cmd := update(t, m, key("s"))
	if !m.Syncing {
		t.Fatal("expected Syncing after s")
	}
	if cmd == nil {
		t.Fatal("expected a command to run the pass")
	}

	// A second press while syncing is ignored.
	if _, cmd := update(t, m, key("s")); cmd != nil {
		t.Error("expected no command while a pass is running")
	}

	res, err := m.syncFn(context.Background())
	m, cmd = update(t, m, SyncDoneMsg{Result: res, Err: err})
	if m.Syncing {
		t.Error("Syncing still set after SyncDoneMsg")
	}
	if m.SyncResult == nil || m.SyncResult.Synced != 2 {
		t.Fatalf("SyncResult = %+v", m.SyncResult)
	}
	if cmd == nil {
		t.Error("expected a refresh after the pass")
	}
	if calls != 1 {
		t.Errorf("sync calls = %d, want 1", calls)
	}
	if line := m.syncResultLine(); !strings.Contains(line, "2 synced") || !strings.Contains(line, "1 rejected") {
		t.Errorf("syncResultLine = %q", line)
	}
}

func TestSyncKeyDisabledWithoutSyncFunc(t *testing.T) {
	m := NewModel(&fakeSource{}, nil, time.Second)
	m, cmd := update(t, m, key("s"))
	if m.Syncing || cmd != nil {
		t.Error("s should do nothing without a sync function")
	}
}

func TestSyncResultLine(t *testing.T) {
	m := NewModel(&fakeSource{}, nil, time.Second)
	if got := m.syncResultLine(); got != "" {
		t.Errorf("syncResultLine before any pass = %q", got)
	}
	m.SyncResult = &syncpkg.PassResult{Skipped: true}
	if got := m.syncResultLine(); !strings.Contains(got, "offline") {
		t.Errorf("skipped pass line = %q", got)
	}
	m.SyncErr = syncerr.Auth(nil)
	if got := m.syncResultLine(); !strings.Contains(got, "Sync failed") {
		t.Errorf("failed pass line = %q", got)
	}
}

func TestQuitKeys(t *testing.T) {
	for _, k := range []tea.KeyMsg{key("q"), {Type: tea.KeyCtrlC}, {Type: tea.KeyEsc}} {
		m := NewModel(&fakeSource{}, nil, time.Second)
		_, cmd := update(t, m, k)
		if cmd == nil {
			t.Fatalf("%q: expected quit command", k.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%q: expected tea.QuitMsg", k.String())
		}
	}
}

func TestView(t *testing.T) {
	last := time.Now().Add(-3 * time.Hour)
	src := &fakeSource{snap: status.Snapshot{
		PendingCount:  4,
		FailedCount:   1,
		LastSyncAt:    &last,
		LastErrorKind: "transport",
		LastError:     "connection refused",
		Problems: []status.Problem{{
			LocalID:   "0b5e2d1c-7f7a",
			StudentID: "s-1",
			Date:      "2026-03-02",
			Period:    "2",
			Kind:      syncerr.KindServerRejection,
			Message:   "unknown student",
		}},
	}}
	m := NewModel(src, nil, time.Second)
	if got := m.View(); got != "Loading..." {
		t.Errorf("View before size = %q", got)
	}

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(t, m, m.fetchData()())
	view := m.View()
	for _, want := range []string{"offline", "Pending:", "3h ago", "connection refused", "FAILED MARKS (1)", "s-1", "2026-03-02/2", "unknown student"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "s:sync now") {
		t.Error("footer should not offer sync without a sync function")
	}

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 30, Height: 8})
	if view := m.View(); !strings.Contains(view, "resize for full view") || !strings.Contains(view, "Pending: 4") {
		t.Errorf("compact view = %q", view)
	}
}

func TestHelpToggle(t *testing.T) {
	m := NewModel(&fakeSource{}, nil, time.Second)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(t, m, key("?"))
	if !strings.Contains(m.View(), "Key Bindings") {
		t.Error("expected help view")
	}
	m, _ = update(t, m, key("?"))
	if strings.Contains(m.View(), "Key Bindings") {
		t.Error("help should toggle off")
	}
}
