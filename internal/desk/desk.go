// Package desk implements the two workflows behind the login and
// registration screens: session bootstrap and the attendance
// challenge-and-submit loop. Screens (terminal UI, CLI, HTTP gateway) call
// into a Desk and render whatever it returns.
package desk

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/puce/registro/internal/attendance"
	"github.com/puce/registro/internal/journal"
	"github.com/puce/registro/internal/logging"
	"github.com/puce/registro/internal/session"
)

// Remote is the attendance endpoint as seen by the workflows.
type Remote interface {
	Authenticate(ctx context.Context, user, pass string) (attendance.Identity, error)
	ListUsers(ctx context.Context) ([]attendance.Identity, error)
	SubmitAttendance(ctx context.Context, recordID int64) (bool, error)
	ListAttendance(ctx context.Context, recordID int64) ([]attendance.Entry, error)
}

// Options configures a Desk. Remote and Store are required.
type Options struct {
	Remote  Remote
	Store   session.Store
	Journal journal.Journal
	Rand    *rand.Rand
	Now     func() time.Time
	NewKey  func() string
	Logger  *slog.Logger
}

// Desk runs the login and registration workflows against a session store.
type Desk struct {
	remote  Remote
	store   session.Store
	journal journal.Journal
	now     func() time.Time
	newKey  func() string
	logger  *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.Mutex
	inFlight map[string]struct{}

	// sessionMu serialises load-modify-save of stored sessions so a logout
	// or a fresh challenge is never overwritten by a stale copy.
	sessionMu sync.Mutex
}

// New builds a Desk.
func New(opts Options) (*Desk, error) {
	if opts.Remote == nil {
		return nil, errors.New("desk: remote is required")
	}
	if opts.Store == nil {
		return nil, errors.New("desk: session store is required")
	}
	d := &Desk{
		remote:   opts.Remote,
		store:    opts.Store,
		journal:  opts.Journal,
		now:      opts.Now,
		newKey:   opts.NewKey,
		logger:   opts.Logger,
		rng:      opts.Rand,
		inFlight: make(map[string]struct{}),
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.newKey == nil {
		d.newKey = uuid.NewString
	}
	if d.logger == nil {
		d.logger = logging.Discard()
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return d, nil
}

// Now returns the desk's notion of the current time.
func (d *Desk) Now() time.Time { return d.now() }

// acquire marks a workflow call in flight for key. The returned func
// releases it.
func (d *Desk) acquire(key string) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[key]; busy {
		return nil, attendance.ErrBusy
	}
	d.inFlight[key] = struct{}{}
	return func() {
		d.mu.Lock()
		delete(d.inFlight, key)
		d.mu.Unlock()
	}, nil
}

func (d *Desk) drawChallenge(nationalID string) (attendance.Challenge, error) {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return attendance.NewChallenge(nationalID, d.rng)
}

// loadSession maps a missing or empty session onto attendance.ErrNoSession.
func (d *Desk) loadSession(ctx context.Context, key string) (session.Session, error) {
	if key == "" {
		return session.Session{}, attendance.ErrNoSession
	}
	s, err := d.store.Load(ctx, key)
	if errors.Is(err, session.ErrNotFound) {
		return session.Session{}, attendance.ErrNoSession
	}
	if err != nil {
		return session.Session{}, err
	}
	if s.Identity.IsZero() {
		return session.Session{}, attendance.ErrNoSession
	}
	return s, nil
}
