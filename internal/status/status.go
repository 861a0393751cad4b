// Package status answers "how far behind is this device?" for the UI.
// Every read goes to the store; nothing is cached here.
package status

import (
	"time"

	"github.com/marcus/rollcall/internal/db"
	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/syncerr"
)

// Connectivity reports whether the server is believed reachable.
type Connectivity interface {
	IsOnline() bool
}

// Problem is a failed mark that needs attention.
type Problem struct {
	LocalID    string       `json:"local_id"`
	StudentID  string       `json:"student_id"`
	Date       string       `json:"date"`
	Period     string       `json:"period,omitempty"`
	Kind       syncerr.Kind `json:"kind"`
	Message    string       `json:"message"`
	Attempts   int          `json:"attempts"`
	CapturedAt time.Time    `json:"captured_at"`
}

// Snapshot is everything the status surfaces show, read at one moment.
type Snapshot struct {
	Online        bool       `json:"online"`
	PendingCount  int        `json:"pending_count"`
	InFlightCount int        `json:"in_flight_count"`
	FailedCount   int        `json:"failed_count"`
	SyncedCount   int        `json:"synced_count"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastPassAt    *time.Time `json:"last_pass_at,omitempty"`
	LastErrorKind string     `json:"last_error_kind,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	Problems      []Problem  `json:"problems,omitempty"`
}

// Reporter reads status from the store and the connectivity observer.
type Reporter struct {
	db     *db.DB
	online Connectivity
}

// New creates a reporter. online may be nil, in which case the device is
// reported offline.
func New(database *db.DB, online Connectivity) *Reporter {
	return &Reporter{db: database, online: online}
}

// PendingCount is the number of marks the server has not acknowledged:
// pending, in-flight and failed.
func (r *Reporter) PendingCount() (int, error) {
	return r.db.CountActive()
}

// FailedCount is the number of marks that need manual attention.
func (r *Reporter) FailedCount() (int, error) {
	counts, err := r.db.CountByState()
	if err != nil {
		return 0, err
	}
	return counts[models.SyncFailed], nil
}

// LastSyncTimestamp is the end of the last pass that completed, or nil.
func (r *Reporter) LastSyncTimestamp() (*time.Time, error) {
	meta, err := r.db.GetSyncMetadata()
	if err != nil {
		return nil, err
	}
	return meta.LastSyncAt, nil
}

// IsOnline reports the observer's current state.
func (r *Reporter) IsOnline() bool {
	return r.online != nil && r.online.IsOnline()
}

// Problems lists failed marks, oldest first.
func (r *Reporter) Problems() ([]Problem, error) {
	failed, err := r.db.GetByState(models.SyncFailed)
	if err != nil {
		return nil, err
	}
	problems := make([]Problem, 0, len(failed))
	for _, ev := range failed {
		kind := syncerr.Kind(ev.ErrorKind)
		if kind == "" {
			kind = syncerr.KindTransport
		}
		problems = append(problems, Problem{
			LocalID:    ev.LocalID,
			StudentID:  ev.StudentID,
			Date:       ev.Date,
			Period:     ev.Period,
			Kind:       kind,
			Message:    ev.LastError,
			Attempts:   ev.Attempts,
			CapturedAt: ev.CapturedAt,
		})
	}
	return problems, nil
}

// Snapshot reads every status value.
func (r *Reporter) Snapshot() (Snapshot, error) {
	var s Snapshot
	counts, err := r.db.CountByState()
	if err != nil {
		return s, err
	}
	meta, err := r.db.GetSyncMetadata()
	if err != nil {
		return s, err
	}
	problems, err := r.Problems()
	if err != nil {
		return s, err
	}

	s.Online = r.IsOnline()
	s.InFlightCount = counts[models.SyncInFlight]
	s.FailedCount = counts[models.SyncFailed]
	s.SyncedCount = counts[models.SyncSynced]
	s.PendingCount = counts[models.SyncPending] + s.InFlightCount + s.FailedCount
	s.LastSyncAt = meta.LastSyncAt
	s.LastPassAt = meta.LastPassAt
	s.LastErrorKind = meta.LastErrorKind
	s.LastError = meta.LastError
	s.Problems = problems
	return s, nil
}
