package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/marcus/rollcall/internal/db"
	"github.com/marcus/rollcall/internal/metrics"
	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/queue"
	"github.com/marcus/rollcall/internal/syncclient"
	"github.com/marcus/rollcall/internal/syncerr"
)

// fakeServer answers batches with respond and records every submission.
type fakeServer struct {
	mu        gosync.Mutex
	batches   [][]string
	respond   func(ids []string) (*syncclient.BatchResponse, error)
	submitted map[string]int
}

func (f *fakeServer) SubmitAttendance(ctx context.Context, events []models.AttendanceEvent) (*syncclient.BatchResponse, error) {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.LocalID
	}
	f.mu.Lock()
	f.batches = append(f.batches, ids)
	if f.submitted == nil {
		f.submitted = make(map[string]int)
	}
	for _, id := range ids {
		f.submitted[id]++
	}
	f.mu.Unlock()

	if f.respond == nil {
		return &syncclient.BatchResponse{Accepted: ids}, nil
	}
	return f.respond(ids)
}

type staticOnline bool

func (s staticOnline) IsOnline() bool { return bool(s) }

type harness struct {
	db      *db.DB
	queue   *queue.Queue
	server  *fakeServer
	metrics *metrics.Sync
	rec     *Reconciler
}

func newHarness(t *testing.T, cfg Config, online Connectivity) *harness {
	t.Helper()
	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	h := &harness{db: database, queue: queue.New(database), server: &fakeServer{}, metrics: metrics.NewSync()}
	h.rec = New(database, h.queue, h.server, online, h.metrics, cfg)
	return h
}

func (h *harness) enqueue(t *testing.T, n int) []string {
	t.Helper()
	var ids []string
	for i := 0; i < n; i++ {
		res, err := h.queue.Enqueue(models.AttendanceEvent{
			StudentID:  fmt.Sprintf("s-%d", i),
			ClassID:    "c-7a",
			Date:       "2026-03-02",
			Status:     models.StatusPresent,
			Method:     models.MethodManual,
			CapturedAt: time.Date(2026, 3, 2, 8, 0, i, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, res.Event.LocalID)
	}
	return ids
}

func (h *harness) event(t *testing.T, id string) models.AttendanceEvent {
	t.Helper()
	ev, err := h.db.Get(id)
	if err != nil || ev == nil {
		t.Fatalf("Get(%s) = %v, %v", id, ev, err)
	}
	return *ev
}

func TestPassDrainsAllBatches(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 2}, nil)
	ids := h.enqueue(t, 5)

	var notified []PassResult
	h.rec.OnPass(func(r PassResult) { notified = append(notified, r) })

	res, err := h.rec.Pass(context.Background())
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if res.Batches != 3 || res.Synced != 5 || !res.Clean() {
		t.Errorf("result = %+v", res)
	}
	// Oldest capture first.
	if h.server.batches[0][0] != ids[0] || h.server.batches[2][0] != ids[4] {
		t.Errorf("batches = %v", h.server.batches)
	}
	if n, _ := h.queue.Len(); n != 0 {
		t.Errorf("queue Len = %d, want 0", n)
	}
	if len(notified) != 1 || notified[0].Synced != 5 {
		t.Errorf("listener got %+v", notified)
	}

	meta, _ := h.db.GetSyncMetadata()
	if meta.LastSyncAt == nil || meta.PendingCount != 0 || meta.LastError != "" {
		t.Errorf("metadata = %+v", meta)
	}

	rec := httptest.NewRecorder()
	h.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`rollcall_sync_passes_total{result="ok"} 1`,
		`rollcall_sync_records_total{outcome="synced"} 5`,
		`rollcall_pending_records 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestEmptyQueueIsNotAnError(t *testing.T) {
	h := newHarness(t, Config{}, staticOnline(true))
	res, err := h.rec.Pass(context.Background())
	if err != nil || res.Batches != 0 || res.Err != nil {
		t.Errorf("Pass = %+v, %v", res, err)
	}
	if len(h.server.batches) != 0 {
		t.Error("nothing to submit")
	}
}

func TestPartialRejection(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 10}, nil)
	ids := h.enqueue(t, 3)
	h.server.respond = func(batch []string) (*syncclient.BatchResponse, error) {
		return &syncclient.BatchResponse{
			Accepted: []string{batch[0], batch[2]},
			Rejected: []syncclient.Rejection{{LocalID: batch[1], Reason: "unknown student s-1", Code: syncclient.CodeUnknownStudent}},
		}, nil
	}

	res, err := h.rec.Pass(context.Background())
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if res.Synced != 2 || res.Rejected != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Problems) != 1 || res.Problems[0].LocalID != ids[1] || res.Problems[0].Kind != syncerr.KindServerRejection {
		t.Fatalf("problems = %+v", res.Problems)
	}
	if p := res.Problems[0]; !errors.Is(p.Err, syncerr.ErrServerRejection) || !strings.Contains(p.Err.Error(), ids[1]) {
		t.Errorf("problem error = %v", p.Err)
	}

	rejected := h.event(t, ids[1])
	if rejected.SyncState != models.SyncFailed || rejected.LastError != "unknown student s-1" {
		t.Errorf("rejected = %+v", rejected)
	}
	for _, id := range []string{ids[0], ids[2]} {
		if ev := h.event(t, id); ev.SyncState != models.SyncSynced {
			t.Errorf("%s state = %q", id, ev.SyncState)
		}
	}

	// Rejected marks are not resubmitted automatically.
	h.server.respond = nil
	res, _ = h.rec.Pass(context.Background())
	if res.Batches != 0 {
		t.Errorf("second pass submitted %d batches", res.Batches)
	}
	meta, _ := h.db.GetSyncMetadata()
	if meta.PendingCount != 1 || meta.LastSyncAt == nil {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestDuplicateRejectionIsAck(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ids := h.enqueue(t, 1)
	h.server.respond = func(batch []string) (*syncclient.BatchResponse, error) {
		return &syncclient.BatchResponse{
			Rejected: []syncclient.Rejection{{LocalID: batch[0], Reason: "already recorded", Code: syncclient.CodeDuplicate}},
		}, nil
	}

	res, err := h.rec.Pass(context.Background())
	if err != nil || res.Synced != 1 || res.Rejected != 0 {
		t.Fatalf("Pass = %+v, %v", res, err)
	}
	if ev := h.event(t, ids[0]); ev.SyncState != models.SyncSynced {
		t.Errorf("state = %q", ev.SyncState)
	}
}

func TestUnechoedRecordsRetry(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 2}, nil)
	ids := h.enqueue(t, 4)
	h.server.respond = func(batch []string) (*syncclient.BatchResponse, error) {
		// Server drops the second record and invents an unknown id.
		return &syncclient.BatchResponse{Accepted: []string{batch[0], "stranger"}}, nil
	}

	res, err := h.rec.Pass(context.Background())
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if res.Batches != 1 {
		t.Errorf("pass should stop after an incomplete batch, batches = %d", res.Batches)
	}
	if res.Synced != 1 || res.Retried != 1 {
		t.Errorf("result = %+v", res)
	}
	ev := h.event(t, ids[1])
	if ev.SyncState != models.SyncPending || ev.Attempts != 1 {
		t.Errorf("unechoed = %+v", ev)
	}
}

func TestTransportFailureRevertsBatch(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ids := h.enqueue(t, 2)
	h.server.respond = func([]string) (*syncclient.BatchResponse, error) {
		return nil, syncerr.Transport(errors.New("connection reset"))
	}

	res, err := h.rec.Pass(context.Background())
	if err != nil {
		t.Fatalf("transport failures are absorbed, got %v", err)
	}
	if !errors.Is(res.Err, syncerr.ErrTransport) || res.Retried != 2 {
		t.Errorf("result = %+v", res)
	}
	for _, id := range ids {
		if ev := h.event(t, id); ev.SyncState != models.SyncPending || ev.Attempts != 1 {
			t.Errorf("%s = %+v", id, ev)
		}
	}

	meta, _ := h.db.GetSyncMetadata()
	if meta.LastSyncAt != nil {
		t.Error("lastSync must not advance on a transport failure")
	}
	if meta.LastErrorKind != string(syncerr.KindTransport) || meta.PendingCount != 2 {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestPlainErrorsCountAsTransport(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.enqueue(t, 1)
	h.server.respond = func([]string) (*syncclient.BatchResponse, error) {
		return nil, errors.New("boom")
	}
	res, err := h.rec.Pass(context.Background())
	if err != nil || syncerr.KindOf(res.Err) != syncerr.KindTransport {
		t.Errorf("Pass = %+v, %v", res, err)
	}
}

func TestRetryCeiling(t *testing.T) {
	h := newHarness(t, Config{MaxAttempts: 3}, nil)
	ids := h.enqueue(t, 1)
	h.server.respond = func([]string) (*syncclient.BatchResponse, error) {
		return nil, syncerr.Transport(errors.New("timeout"))
	}

	var last PassResult
	for i := 0; i < 5; i++ {
		last, _ = h.rec.Pass(context.Background())
	}
	if len(h.server.batches) != 3 {
		t.Errorf("submissions = %d, want 3", len(h.server.batches))
	}
	ev := h.event(t, ids[0])
	if ev.SyncState != models.SyncFailed || ev.Attempts != 3 || ev.ErrorKind != string(syncerr.KindTransport) {
		t.Errorf("event = %+v", ev)
	}
	if last.Batches != 0 {
		t.Errorf("failed marks are not retried automatically: %+v", last)
	}

	// Manual retry gives the mark a fresh budget.
	h.server.respond = nil
	if _, err := h.queue.RetryAll(); err != nil {
		t.Fatalf("RetryAll: %v", err)
	}
	if ev := h.event(t, ids[0]); ev.SyncState != models.SyncPending || ev.Attempts != 0 {
		t.Errorf("after RetryAll = %+v, want pending with 0 attempts", ev)
	}
	res, _ := h.rec.Pass(context.Background())
	if res.Synced != 1 {
		t.Errorf("after retry = %+v", res)
	}
}

func TestRetryCeilingDefault(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ids := h.enqueue(t, 1)
	h.server.respond = func([]string) (*syncclient.BatchResponse, error) {
		return nil, syncerr.Transport(errors.New("connection reset"))
	}

	for pass := 1; pass <= DefaultMaxAttempts+1; pass++ {
		h.rec.Pass(context.Background())
		ev := h.event(t, ids[0])
		switch {
		case pass < DefaultMaxAttempts:
			if ev.SyncState != models.SyncPending || ev.Attempts != pass {
				t.Fatalf("pass %d: event = %+v", pass, ev)
			}
		default:
			if ev.SyncState != models.SyncFailed || ev.Attempts != DefaultMaxAttempts || ev.ErrorKind != string(syncerr.KindTransport) {
				t.Fatalf("pass %d: event = %+v", pass, ev)
			}
		}
	}
	if len(h.server.batches) != DefaultMaxAttempts {
		t.Errorf("submissions = %d, want %d", len(h.server.batches), DefaultMaxAttempts)
	}

	n, err := h.queue.RetryAll()
	if err != nil || n != 1 {
		t.Fatalf("RetryAll = %d, %v", n, err)
	}
	if ev := h.event(t, ids[0]); ev.SyncState != models.SyncPending || ev.Attempts != 0 || ev.ErrorKind != "" {
		t.Errorf("after RetryAll = %+v", ev)
	}
	h.server.respond = nil
	if res, _ := h.rec.Pass(context.Background()); res.Synced != 1 {
		t.Errorf("after retry = %+v", res)
	}
}

func TestAuthFailureRequeuesWithoutAttempt(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ids := h.enqueue(t, 2)
	h.server.respond = func([]string) (*syncclient.BatchResponse, error) {
		return nil, syncerr.Auth(syncclient.ErrUnauthorized)
	}

	res, err := h.rec.Pass(context.Background())
	if !errors.Is(err, syncerr.ErrAuth) {
		t.Fatalf("err = %v, want auth", err)
	}
	if res.Requeued != 2 || res.Result() != metrics.PassAuth {
		t.Errorf("result = %+v", res)
	}
	for _, id := range ids {
		if ev := h.event(t, id); ev.SyncState != models.SyncPending || ev.Attempts != 0 {
			t.Errorf("%s = %+v", id, ev)
		}
	}
	meta, _ := h.db.GetSyncMetadata()
	if meta.LastErrorKind != string(syncerr.KindAuth) {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestOfflineSkipsPass(t *testing.T) {
	h := newHarness(t, Config{}, staticOnline(false))
	h.enqueue(t, 1)

	res, err := h.rec.Pass(context.Background())
	if err != nil || !res.Skipped || res.Result() != metrics.PassOffline {
		t.Errorf("Pass = %+v, %v", res, err)
	}
	if len(h.server.batches) != 0 {
		t.Error("offline pass must not submit")
	}
	if n, _ := h.queue.Len(); n != 1 {
		t.Errorf("Len = %d", n)
	}
}

func TestCancelledPassLeavesBatchInFlight(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ids := h.enqueue(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	h.server.respond = func([]string) (*syncclient.BatchResponse, error) {
		cancel()
		return nil, syncerr.Transport(context.Canceled)
	}

	_, err := h.rec.Pass(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	ev := h.event(t, ids[0])
	if ev.SyncState != models.SyncInFlight || ev.Attempts != 0 {
		t.Errorf("event = %+v", ev)
	}
	if n, _ := h.queue.Recover(); n != 1 {
		t.Errorf("Recover = %d", n)
	}
}

func TestConcurrentPassesNeverDoubleSubmit(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 3}, nil)
	ids := h.enqueue(t, 20)
	other := New(h.db, h.queue, h.server, nil, nil, Config{BatchSize: 3})

	var wg gosync.WaitGroup
	for _, r := range []*Reconciler{h.rec, other} {
		wg.Add(1)
		go func(r *Reconciler) {
			defer wg.Done()
			if _, err := r.Pass(context.Background()); err != nil {
				t.Errorf("Pass: %v", err)
			}
		}(r)
	}
	wg.Wait()

	for _, id := range ids {
		if n := h.server.submitted[id]; n != 1 {
			t.Errorf("%s submitted %d times", id, n)
		}
	}
	history, _ := h.db.GetSyncHistoryTail(100)
	synced := map[string]int{}
	for _, e := range history {
		if e.Outcome == models.OutcomeSynced {
			synced[e.LocalID]++
		}
	}
	if len(synced) != len(ids) {
		t.Errorf("synced transitions for %d ids, want %d", len(synced), len(ids))
	}
	for id, n := range synced {
		if n != 1 {
			t.Errorf("%s synced %d times", id, n)
		}
	}
}

func TestVerdict(t *testing.T) {
	resp := &syncclient.BatchResponse{
		Accepted: []string{"a", "a", "zz"},
		Rejected: []syncclient.Rejection{
			{LocalID: "b", Code: syncclient.CodeInvalid},
			{LocalID: "c", Code: syncclient.CodeDuplicate},
			{LocalID: "a", Reason: "contradicts ack"},
		},
	}
	out := verdict([]string{"a", "b", "c", "d"}, resp)
	if strings.Join(out.Accepted, ",") != "a,c" {
		t.Errorf("Accepted = %v", out.Accepted)
	}
	if out.Rejected["b"] != syncclient.CodeInvalid || len(out.Rejected) != 1 {
		t.Errorf("Rejected = %v", out.Rejected)
	}
	if strings.Join(out.Retry, ",") != "d" {
		t.Errorf("Retry = %v", out.Retry)
	}

	none := verdict([]string{"a"}, nil)
	if len(none.Retry) != 1 {
		t.Errorf("nil response retries everything, got %+v", none)
	}
}
