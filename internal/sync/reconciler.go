// Package sync drains the pending event queue against the attendance server.
package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/marcus/rollcall/internal/db"
	"github.com/marcus/rollcall/internal/metrics"
	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/queue"
	"github.com/marcus/rollcall/internal/syncclient"
	"github.com/marcus/rollcall/internal/syncerr"
)

// Defaults for Config zero values.
const (
	DefaultBatchSize   = 50
	DefaultMaxAttempts = 10
	DefaultTimeout     = 15 * time.Second
	DefaultRetention   = 7 * 24 * time.Hour
)

// Submitter sends one batch to the server.
type Submitter interface {
	SubmitAttendance(ctx context.Context, events []models.AttendanceEvent) (*syncclient.BatchResponse, error)
}

// Connectivity reports whether the server is believed reachable.
type Connectivity interface {
	IsOnline() bool
}

// Config tunes a pass.
type Config struct {
	BatchSize   int
	MaxAttempts int
	Timeout     time.Duration // per batch submission
	Retention   time.Duration // how long synced marks are kept locally
}

// Reconciler runs reconciliation passes. Passes may run concurrently from
// separate processes; the queue's atomic claim keeps them from submitting
// the same mark twice.
type Reconciler struct {
	db      *db.DB
	queue   *queue.Queue
	client  Submitter
	online  Connectivity
	metrics *metrics.Sync
	cfg     Config
	now     func() time.Time

	mu        gosync.Mutex
	listeners []func(PassResult)
}

// New creates a reconciler. online may be nil to always attempt passes.
func New(database *db.DB, q *queue.Queue, client Submitter, online Connectivity, m *metrics.Sync, cfg Config) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &Reconciler{
		db:      database,
		queue:   q,
		client:  client,
		online:  online,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}
}

// OnPass registers fn to receive every finished pass.
func (r *Reconciler) OnPass(fn func(PassResult)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Pass drains the queue until it is empty or a batch is not fully
// accepted. Transport failures are absorbed into the result (marks are
// retried on a later pass); auth, store and cancellation errors are
// returned as well.
func (r *Reconciler) Pass(ctx context.Context) (PassResult, error) {
	res := PassResult{StartedAt: r.now()}

	if r.online != nil && !r.online.IsOnline() {
		res.Skipped = true
		slog.Debug("sync: offline, skipping pass")
		return r.finish(res), nil
	}

	for {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		batch, err := r.queue.NextBatch(r.cfg.BatchSize)
		if err != nil {
			res.Err = err
			break
		}
		if len(batch) == 0 {
			break
		}
		res.Batches++

		clean, err := r.submitBatch(ctx, batch, &res)
		if err != nil {
			res.Err = err
			break
		}
		if !clean {
			break
		}
	}

	res = r.finish(res)
	if res.Err != nil && !syncerr.Transient(res.Err) {
		return res, res.Err
	}
	return res, nil
}

// submitBatch sends one claimed batch and applies the verdict. It reports
// whether every record was accepted.
func (r *Reconciler) submitBatch(ctx context.Context, batch []models.AttendanceEvent, res *PassResult) (bool, error) {
	ids := make([]string, len(batch))
	for i, ev := range batch {
		ids[i] = ev.LocalID
	}

	sctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	resp, err := r.client.SubmitAttendance(sctx, batch)
	cancel()

	if err != nil && ctx.Err() != nil {
		// Torn down mid-call: the batch stays in-flight until startup recovery.
		return false, ctx.Err()
	}

	var outcome db.Outcome
	var stopErr error
	switch {
	case err == nil:
		outcome = verdict(ids, resp)
		outcome.RetryKind = syncerr.KindTransport
		outcome.RetryReason = "not acknowledged by server"
	case errors.Is(err, syncerr.ErrAuth):
		outcome = db.Outcome{Requeue: ids}
		stopErr = err
	default:
		if syncerr.KindOf(err) == "" {
			err = syncerr.Transport(err)
		}
		outcome = db.Outcome{Retry: ids, RetryKind: syncerr.KindTransport, RetryReason: err.Error()}
		stopErr = err
	}
	outcome.MaxAttempts = r.cfg.MaxAttempts
	outcome.At = r.now()

	applied, applyErr := r.db.ApplyOutcome(outcome)
	if applyErr != nil {
		return false, applyErr
	}
	res.add(applied, outcome)

	slog.Debug("sync: batch", "size", len(batch), "synced", len(applied.Synced),
		"rejected", len(applied.Rejected), "retried", len(applied.Retried),
		"exhausted", len(applied.Exhausted), "requeued", len(applied.Requeued))

	if stopErr != nil {
		return false, stopErr
	}
	return len(applied.Synced) == len(batch), nil
}

// verdict maps the server response onto the claimed ids. A "duplicate"
// rejection means the server already has the record, which is an ack.
func verdict(ids []string, resp *syncclient.BatchResponse) db.Outcome {
	claimed := make(map[string]bool, len(ids))
	for _, id := range ids {
		claimed[id] = true
	}
	seen := make(map[string]bool, len(ids))
	out := db.Outcome{Rejected: make(map[string]string)}

	if resp != nil {
		for _, id := range resp.Accepted {
			if claimed[id] && !seen[id] {
				seen[id] = true
				out.Accepted = append(out.Accepted, id)
			}
		}
		for _, rej := range resp.Rejected {
			if !claimed[rej.LocalID] || seen[rej.LocalID] {
				continue
			}
			seen[rej.LocalID] = true
			if rej.Code == syncclient.CodeDuplicate {
				out.Accepted = append(out.Accepted, rej.LocalID)
				continue
			}
			reason := rej.Reason
			if reason == "" {
				reason = rej.Code
			}
			out.Rejected[rej.LocalID] = reason
		}
	}

	for _, id := range ids {
		if !seen[id] {
			out.Retry = append(out.Retry, id)
		}
	}
	return out
}

// finish writes metadata, prunes old synced marks, updates metrics and
// notifies listeners.
func (r *Reconciler) finish(res PassResult) PassResult {
	res.FinishedAt = r.now()

	if !res.Skipped {
		if err := r.updateMetadata(&res); err != nil {
			slog.Warn("sync: update metadata", "err", err)
			if res.Err == nil {
				res.Err = err
			}
		}
		if n, err := r.db.PruneSynced(res.FinishedAt.Add(-r.cfg.Retention)); err != nil {
			slog.Warn("sync: prune synced", "err", err)
		} else if n > 0 {
			slog.Debug("sync: pruned synced marks", "count", n)
		}
	}

	r.metrics.ObservePass(res.Result(), res.FinishedAt.Sub(res.StartedAt))
	r.metrics.AddRecords(models.OutcomeSynced, res.Synced)
	r.metrics.AddRecords(models.OutcomeRejected, res.Rejected)
	r.metrics.AddRecords(models.OutcomeRetried, res.Retried)
	r.metrics.AddRecords(models.OutcomeFailed, res.Exhausted)

	if res.Err != nil {
		slog.Warn("sync: pass stopped", "err", res.Err, "synced", res.Synced)
	} else if !res.Skipped {
		slog.Info("sync: pass complete", "batches", res.Batches, "synced", res.Synced,
			"rejected", res.Rejected, "retried", res.Retried)
	}

	r.mu.Lock()
	listeners := append([]func(PassResult){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(res)
	}
	return res
}

func (r *Reconciler) updateMetadata(res *PassResult) error {
	meta, err := r.db.GetSyncMetadata()
	if err != nil {
		return err
	}
	counts, err := r.db.CountByState()
	if err != nil {
		return err
	}
	pending := counts[models.SyncPending] + counts[models.SyncInFlight] + counts[models.SyncFailed]
	r.metrics.SetQueue(pending, counts[models.SyncFailed])

	at := res.FinishedAt
	meta.LastPassAt = &at
	meta.PendingCount = pending
	meta.LastErrorKind = ""
	meta.LastError = ""
	if res.Err != nil {
		meta.LastErrorKind = string(syncerr.KindOf(res.Err))
		meta.LastError = res.Err.Error()
	}
	// Rejections still count as a completed exchange with the server.
	if res.Err == nil {
		meta.LastSyncAt = &at
		r.metrics.SetLastSync(at)
	}
	return r.db.UpdateSyncMetadata(meta)
}
