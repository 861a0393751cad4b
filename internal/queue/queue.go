// Package queue is the pending event queue: every attendance mark not yet
// acknowledged by the server, oldest capture first. It owns validation and
// local id assignment; persistence is the local store's job.
package queue

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/marcus/rollcall/internal/db"
	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/syncerr"
)

// DefaultBatchSize is used when NextBatch is asked for a non-positive size.
const DefaultBatchSize = 50

// Queue is the pending event queue over the local store.
type Queue struct {
	db       *db.DB
	validate *validator.Validate
	trans    ut.Translator
	now      func() time.Time
}

// Result describes a mark accepted into the queue.
type Result struct {
	Event    models.AttendanceEvent
	Replaced string // local id of the earlier mark for the same slot, if any
}

// New returns a queue backed by database.
func New(database *db.DB) *Queue {
	validate, trans := newValidator()
	return &Queue{db: database, validate: validate, trans: trans, now: time.Now}
}

// Validate checks a mark without storing it. Errors are KindValidation with
// one message per offending JSON field.
func (q *Queue) Validate(ev models.AttendanceEvent) error {
	err := q.validate.Struct(ev)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return syncerr.New(syncerr.KindValidation, "", "invalid attendance event", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Translate(q.trans)
	}
	return syncerr.Validation(fields)
}

// Enqueue validates ev, stamps it with a fresh local id (and a capture time
// when the caller left it zero), and stores it as pending. A mark for a slot
// that already has one replaces it: the latest mark wins.
func (q *Queue) Enqueue(ev models.AttendanceEvent) (Result, error) {
	ev.StudentID = strings.TrimSpace(ev.StudentID)
	ev.ClassID = strings.TrimSpace(ev.ClassID)
	ev.Period = strings.TrimSpace(ev.Period)
	ev.Date = strings.TrimSpace(ev.Date)

	if err := q.Validate(ev); err != nil {
		return Result{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Result{}, syncerr.New(syncerr.KindStore, "", "generate local id", err)
	}
	ev.LocalID = id.String()
	if ev.CapturedAt.IsZero() {
		ev.CapturedAt = q.now()
	}
	ev.SyncState = models.SyncPending
	ev.Attempts = 0
	ev.ErrorKind = ""
	ev.LastError = ""

	replaced, err := q.db.Put(ev)
	if err != nil {
		return Result{}, err
	}
	slog.Debug("queue: enqueued", "local_id", ev.LocalID, "student", ev.StudentID, "date", ev.Date, "replaced", replaced)
	return Result{Event: ev, Replaced: replaced}, nil
}

// NextBatch claims up to maxSize pending marks for submission, moving them
// to in-flight. An empty batch with a nil error means nothing to sync.
func (q *Queue) NextBatch(maxSize int) ([]models.AttendanceEvent, error) {
	if maxSize <= 0 {
		maxSize = DefaultBatchSize
	}
	return q.db.ClaimPending(maxSize)
}

// Active returns pending, in-flight and failed marks, oldest first.
func (q *Queue) Active() ([]models.AttendanceEvent, error) {
	return q.db.ActiveEvents()
}

// Len is the number of active marks.
func (q *Queue) Len() (int, error) {
	return q.db.CountActive()
}

// Failed returns marks that need attention.
func (q *Queue) Failed() ([]models.AttendanceEvent, error) {
	return q.db.GetByState(models.SyncFailed)
}

// Retry returns the given failed marks to pending with a fresh attempt budget.
func (q *Queue) Retry(localIDs ...string) (int, error) {
	if len(localIDs) == 0 {
		return 0, nil
	}
	return q.db.ResetFailed(localIDs)
}

// RetryAll returns every failed mark to pending.
func (q *Queue) RetryAll() (int, error) {
	return q.db.ResetFailed(nil)
}

// Recover returns marks left in-flight by an interrupted process to pending.
func (q *Queue) Recover() (int, error) {
	n, err := q.db.RecoverInFlight()
	if n > 0 {
		slog.Info("queue: recovered in-flight marks", "count", n)
	}
	return n, err
}
