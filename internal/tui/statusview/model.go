// Package statusview is the live sync status dashboard: queue counts,
// connectivity, last sync and failed marks, refreshed on a tick.
package statusview

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/rollcall/internal/status"
	syncpkg "github.com/marcus/rollcall/internal/sync"
)

// Source supplies status snapshots.
type Source interface {
	Snapshot() (status.Snapshot, error)
}

// SyncFunc runs one reconciliation pass on demand.
type SyncFunc func(ctx context.Context) (syncpkg.PassResult, error)

// MinWidth is the minimum terminal width for the full view
const MinWidth = 50

// MinHeight is the minimum terminal height for the full view
const MinHeight = 12

// Model is the Bubble Tea model for the status view
type Model struct {
	source Source
	syncFn SyncFunc

	// Window dimensions
	Width  int
	Height int

	Snap        status.Snapshot
	Err         error
	LastRefresh time.Time

	Syncing    bool
	SyncResult *syncpkg.PassResult
	SyncErr    error
	spinner    spinner.Model

	ShowHelp        bool
	RefreshInterval time.Duration
}

// TickMsg triggers a data refresh
type TickMsg time.Time

// RefreshDataMsg carries a refreshed snapshot
type RefreshDataMsg struct {
	Snap      status.Snapshot
	Err       error
	Timestamp time.Time
}

// SyncDoneMsg reports the end of an on-demand pass
type SyncDoneMsg struct {
	Result syncpkg.PassResult
	Err    error
}

// NewModel creates a status view. syncFn may be nil, which disables the
// sync key.
func NewModel(source Source, syncFn SyncFunc, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return Model{
		source:          source,
		syncFn:          syncFn,
		spinner:         sp,
		RefreshInterval: interval,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case RefreshDataMsg:
		m.Err = msg.Err
		if msg.Err == nil {
			m.Snap = msg.Snap
		}
		m.LastRefresh = msg.Timestamp
		return m, nil

	case SyncDoneMsg:
		m.Syncing = false
		res := msg.Result
		m.SyncResult = &res
		m.SyncErr = msg.Err
		return m, m.fetchData()

	case spinner.TickMsg:
		if !m.Syncing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case "r":
		return m, m.fetchData()

	case "s":
		if m.syncFn == nil || m.Syncing {
			return m, nil
		}
		m.Syncing = true
		m.SyncErr = nil
		return m, tea.Batch(m.spinner.Tick, m.runSync())

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchData returns a command that reads a snapshot and sends a RefreshDataMsg
func (m Model) fetchData() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		snap, err := source.Snapshot()
		return RefreshDataMsg{Snap: snap, Err: err, Timestamp: time.Now()}
	}
}

func (m Model) runSync() tea.Cmd {
	syncFn := m.syncFn
	return func() tea.Msg {
		res, err := syncFn(context.Background())
		return SyncDoneMsg{Result: res, Err: err}
	}
}
