package sync

import (
	"time"

	"github.com/marcus/rollcall/internal/db"
	"github.com/marcus/rollcall/internal/metrics"
	"github.com/marcus/rollcall/internal/syncerr"
)

// RecordProblem is a mark that left the queue as failed during a pass.
// Err matches the syncerr sentinel for Kind.
type RecordProblem struct {
	LocalID string
	Kind    syncerr.Kind
	Reason  string
	Err     error
}

// PassResult summarizes one reconciliation pass.
type PassResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Skipped    bool // offline; nothing attempted
	Batches    int
	Synced     int
	Rejected   int
	Retried    int
	Exhausted  int // moved to failed at the attempt ceiling
	Requeued   int // returned to pending without counting an attempt
	Problems   []RecordProblem
	Err        error // what stopped the pass early, if anything
}

func (r *PassResult) add(a db.Applied, o db.Outcome) {
	r.Synced += len(a.Synced)
	r.Rejected += len(a.Rejected)
	r.Retried += len(a.Retried)
	r.Exhausted += len(a.Exhausted)
	r.Requeued += len(a.Requeued)
	for _, id := range a.Rejected {
		reason := o.Rejected[id]
		r.Problems = append(r.Problems, RecordProblem{
			LocalID: id, Kind: syncerr.KindServerRejection, Reason: reason, Err: syncerr.Rejection(id, reason),
		})
	}
	for _, id := range a.Exhausted {
		r.Problems = append(r.Problems, RecordProblem{
			LocalID: id, Kind: o.RetryKind, Reason: o.RetryReason, Err: syncerr.New(o.RetryKind, id, o.RetryReason, nil),
		})
	}
}

// Result is the pass label used for metrics.
func (r PassResult) Result() string {
	switch {
	case r.Skipped:
		return metrics.PassOffline
	case r.Err != nil:
		switch syncerr.KindOf(r.Err) {
		case syncerr.KindAuth:
			return metrics.PassAuth
		case syncerr.KindStore:
			return metrics.PassStore
		default:
			return metrics.PassTransport
		}
	case r.Rejected > 0 || r.Retried > 0 || r.Exhausted > 0:
		return metrics.PassPartial
	default:
		return metrics.PassOK
	}
}

// Clean reports whether the pass ran and everything it touched was accepted.
func (r PassResult) Clean() bool {
	return !r.Skipped && r.Err == nil && r.Rejected == 0 && r.Retried == 0 && r.Exhausted == 0
}
