// Package engine wires the sync components together with an explicit
// open/close lifecycle. Commands open an Engine, use it, and close it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/marcus/rollcall/internal/connectivity"
	"github.com/marcus/rollcall/internal/db"
	"github.com/marcus/rollcall/internal/metrics"
	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/queue"
	"github.com/marcus/rollcall/internal/roster"
	"github.com/marcus/rollcall/internal/scheduler"
	"github.com/marcus/rollcall/internal/status"
	syncpkg "github.com/marcus/rollcall/internal/sync"
	"github.com/marcus/rollcall/internal/syncclient"
	"github.com/marcus/rollcall/internal/syncconfig"
)

// Options configure Open.
type Options struct {
	Config    *syncconfig.Config
	Token     string
	TeacherID string // stamped on marks that do not carry one
	DeviceID  string
	Offline   bool // force offline; nothing touches the network
	Recover   bool // return in-flight marks to pending (process startup)
}

// Engine owns the local store and every component built on it.
type Engine struct {
	cfg       *syncconfig.Config
	teacherID string
	offline   bool

	DB         *db.DB
	Queue      *queue.Queue
	Client     *syncclient.Client
	Observer   *connectivity.Observer
	Reconciler *syncpkg.Reconciler
	Scheduler  *scheduler.Scheduler
	Roster     *roster.Cache
	Status     *status.Reporter
	Metrics    *metrics.Sync

	closeOnce sync.Once
}

// Open opens the store and builds the components.
func Open(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("engine: no config")
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		teacherID: opts.TeacherID,
		offline:   opts.Offline,
		DB:        database,
		Queue:     queue.New(database),
		Client:    syncclient.New(cfg.ServerURL, opts.Token, opts.DeviceID, cfg.Sync.Timeout),
		Metrics:   metrics.NewSync(),
	}

	if opts.Recover {
		if _, err := e.Queue.Recover(); err != nil {
			database.Close()
			return nil, err
		}
	}

	e.Observer = connectivity.New(func(ctx context.Context) error {
		_, err := e.Client.HealthCheck(ctx)
		return err
	}, connectivity.Config{
		Interval: cfg.Connectivity.ProbeInterval,
		HoldDown: cfg.Connectivity.HoldDown,
	}, e.Metrics)
	if opts.Offline {
		e.Observer.Force(false)
	}

	e.Reconciler = syncpkg.New(database, e.Queue, e.Client, e.Observer, e.Metrics, syncpkg.Config{
		BatchSize:   cfg.Sync.BatchSize,
		MaxAttempts: cfg.Sync.MaxAttempts,
		Timeout:     cfg.Sync.Timeout,
		Retention:   cfg.Sync.Retention,
	})
	e.Scheduler = scheduler.New(e.Reconciler, e.Observer.Subscribe(), scheduler.Config{
		Interval: cfg.Sync.Interval,
		OnStart:  cfg.Sync.OnStart,
	})

	var fetcher roster.Fetcher
	if !opts.Offline {
		fetcher = e.Client
	}
	e.Roster = roster.New(database, fetcher, cfg.RosterTimeout)
	e.Status = status.New(database, e.Observer)

	if err := e.refreshQueueMetrics(); err != nil {
		slog.Debug("engine: queue metrics", "err", err)
	}
	return e, nil
}

// Close closes the store. It is safe to call more than once.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.DB.Close()
	})
	return err
}

// Mark records an attendance mark. It never touches the network.
func (e *Engine) Mark(ev models.AttendanceEvent) (queue.Result, error) {
	if strings.TrimSpace(ev.TeacherID) == "" {
		ev.TeacherID = e.teacherID
	}
	res, err := e.Queue.Enqueue(ev)
	if err != nil {
		return res, err
	}
	if res.Replaced != "" {
		slog.Debug("engine: mark replaced earlier mark", "local_id", res.Event.LocalID, "replaced", res.Replaced)
	}
	if err := e.refreshQueueMetrics(); err != nil {
		slog.Debug("engine: queue metrics", "err", err)
	}
	return res, nil
}

// SyncOnce probes the server and runs one pass. Used by one-shot commands
// where no observer loop is running.
func (e *Engine) SyncOnce(ctx context.Context) (syncpkg.PassResult, error) {
	if !e.offline {
		e.Observer.ProbeOnce(ctx)
	}
	return e.Reconciler.Pass(ctx)
}

// Run starts the connectivity observer, the scheduler and, if configured,
// the metrics endpoint, and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if !e.offline {
		wg.Go(func() { e.Observer.Run(ctx) })
	}

	var srv *http.Server
	if e.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", e.Metrics.Handler())
		srv = &http.Server{Addr: e.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		wg.Go(func() {
			slog.Info("engine: metrics listening", "addr", e.cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("engine: metrics server", "err", err)
			}
		})
	}

	err := e.Scheduler.Run(ctx)

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(shutdownCtx)
		done()
	}
	cancel()
	wg.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) refreshQueueMetrics() error {
	counts, err := e.DB.CountByState()
	if err != nil {
		return fmt.Errorf("count by state: %w", err)
	}
	failed := counts[models.SyncFailed]
	e.Metrics.SetQueue(counts[models.SyncPending]+counts[models.SyncInFlight]+failed, failed)
	return nil
}
