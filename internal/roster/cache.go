// Package roster is the read-through cache of student and class data. It
// always tries the server first and falls back to the last snapshot when
// the fetch fails, so marks can be labelled offline.
package roster

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/marcus/rollcall/internal/db"
	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/syncclient"
)

// DefaultTimeout bounds the live fetch.
const DefaultTimeout = 10 * time.Second

// ErrUnavailableOffline means the fetch failed and nothing is cached for
// the requested scope.
var ErrUnavailableOffline = errors.New("roster unavailable offline: no cached copy")

// Fetcher downloads the authoritative roster.
type Fetcher interface {
	FetchRoster(ctx context.Context, classID string) (*syncclient.RosterResponse, error)
}

// Roster is what callers receive: the snapshot plus where it came from.
type Roster struct {
	models.RosterSnapshot
	Stale    bool  // served from cache after a failed fetch
	FetchErr error // why the live fetch failed, when Stale
}

// Cache is the only writer of the roster tables.
type Cache struct {
	db      *db.DB
	fetcher Fetcher
	timeout time.Duration
	now     func() time.Time
}

// New creates a cache. fetcher may be nil for cache-only use.
func New(database *db.DB, fetcher Fetcher, timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Cache{db: database, fetcher: fetcher, timeout: timeout, now: time.Now}
}

// Get returns the roster for classID ("" for all classes), refreshing the
// cache from the server when possible.
func (c *Cache) Get(ctx context.Context, classID string) (*Roster, error) {
	fetchErr := errors.New("no server configured")
	if c.fetcher != nil {
		fctx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.fetcher.FetchRoster(fctx, classID)
		cancel()
		if err == nil {
			snap := models.RosterSnapshot{
				ClassID:   classID,
				Students:  resp.Students,
				Classes:   resp.Classes,
				FetchedAt: c.now(),
			}
			if err := c.db.ReplaceRoster(snap); err != nil {
				// Still serve what the server said; the cache is just not updated.
				slog.Warn("roster: cache write failed", "class", classID, "err", err)
			}
			return &Roster{RosterSnapshot: snap}, nil
		}
		fetchErr = err
		slog.Debug("roster: fetch failed, using cache", "class", classID, "err", err)
	}

	snap, err := c.db.RosterSnapshot(classID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.Join(ErrUnavailableOffline, fetchErr)
	}
	return &Roster{RosterSnapshot: *snap, Stale: true, FetchErr: fetchErr}, nil
}

// Cached returns the cached roster without touching the network, or nil.
func (c *Cache) Cached(classID string) (*models.RosterSnapshot, error) {
	return c.db.RosterSnapshot(classID)
}

// LookupStudent resolves a student from the cache only.
func (c *Cache) LookupStudent(studentID string) (*models.Student, error) {
	return c.db.GetStudent(studentID)
}

// LookupRFID resolves a scanned tag from the cache only.
func (c *Cache) LookupRFID(tag string) (*models.Student, error) {
	return c.db.GetStudentByRFID(tag)
}
