package desk

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/puce/registro/internal/attendance"
	"github.com/puce/registro/internal/journal"
	"github.com/puce/registro/internal/session"
)

// Receipt describes an accepted submission: the journal entry, the
// challenge to show next and the refreshed history.
type Receipt struct {
	journal.Receipt
	Next    attendance.Challenge
	History []attendance.Entry
}

// History is the remote list of entries and the subset a filter selects.
type History struct {
	All   []attendance.Entry
	Shown []attendance.Entry
}

// Enter opens the registration screen for key: it loads the session and
// draws a fresh challenge. attendance.ErrNoSession means the caller must go
// back to login.
func (d *Desk) Enter(ctx context.Context, key string) (session.Session, error) {
	d.sessionMu.Lock()
	defer d.sessionMu.Unlock()
	s, err := d.loadSession(ctx, key)
	if err != nil {
		return session.Session{}, err
	}
	c, err := d.drawChallenge(s.Identity.NationalID)
	if err != nil {
		return session.Session{}, err
	}
	s.Challenge = c
	if err := d.store.Save(ctx, s); err != nil {
		return session.Session{}, err
	}
	return s, nil
}

// Submit checks the two typed characters against the current challenge and,
// on a match, registers attendance. Only one submission per key may be in
// flight.
func (d *Desk) Submit(ctx context.Context, key, first, second string) (Receipt, error) {
	release, err := d.acquire("submit:" + key)
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	s, err := d.loadSession(ctx, key)
	if err != nil {
		return Receipt{}, err
	}
	if s.Challenge.IsZero() {
		return Receipt{}, attendance.Invalid("no challenge has been issued; open the registration screen again")
	}
	if err := attendance.Verify(s.Identity.NationalID, s.Challenge, first, second); err != nil {
		return Receipt{}, err
	}

	ok, err := d.remote.SubmitAttendance(ctx, s.Identity.RecordID)
	if err != nil {
		d.logger.Warn("submit failed", slog.Int64("record", s.Identity.RecordID), slog.Any("error", err))
		return Receipt{}, err
	}
	if !ok {
		return Receipt{}, attendance.Invalid("attendance was not recorded, please try again")
	}

	receipt := Receipt{Receipt: journal.Receipt{
		ID:          uuid.NewString(),
		RecordID:    s.Identity.RecordID,
		Challenge:   s.Challenge,
		SubmittedAt: d.now(),
	}}
	if d.journal != nil {
		if err := d.journal.Record(ctx, receipt.Receipt); err != nil {
			// The remote already accepted the submission.
			d.logger.Error("journal record failed", slog.String("receipt", receipt.ID), slog.Any("error", err))
		}
	}

	next, err := d.advanceChallenge(ctx, key, s.Challenge)
	if errors.Is(err, attendance.ErrNoSession) {
		// Logged out while the remote call ran; the registration stands
		// but the session stays cleared.
		d.logger.Info("session ended during submit", slog.Int64("record", s.Identity.RecordID), slog.String("receipt", receipt.ID))
		return receipt, nil
	}
	if err != nil {
		return Receipt{}, err
	}
	receipt.Next = next

	history, err := d.remote.ListAttendance(ctx, s.Identity.RecordID)
	if err != nil {
		d.logger.Warn("history refresh failed", slog.Int64("record", s.Identity.RecordID), slog.Any("error", err))
	} else {
		receipt.History = history
	}

	d.logger.Info("attendance registered", slog.Int64("record", s.Identity.RecordID), slog.String("receipt", receipt.ID))
	return receipt, nil
}

// advanceChallenge replaces the answered challenge with a new one on the
// stored session. It re-reads the session first: a cleared session yields
// attendance.ErrNoSession and is not recreated, and a challenge issued by a
// concurrent Enter is kept.
func (d *Desk) advanceChallenge(ctx context.Context, key string, answered attendance.Challenge) (attendance.Challenge, error) {
	d.sessionMu.Lock()
	defer d.sessionMu.Unlock()
	s, err := d.loadSession(ctx, key)
	if err != nil {
		return attendance.Challenge{}, err
	}
	if s.Challenge != answered {
		return s.Challenge, nil
	}
	next, err := d.drawChallenge(s.Identity.NationalID)
	if err != nil {
		return attendance.Challenge{}, err
	}
	s.Challenge = next
	if err := d.store.Save(ctx, s); err != nil {
		return attendance.Challenge{}, err
	}
	return next, nil
}

// History fetches the entries for the session under key and applies f.
func (d *Desk) History(ctx context.Context, key string, f attendance.Filter) (History, error) {
	if err := f.Validate(); err != nil {
		return History{}, err
	}
	s, err := d.loadSession(ctx, key)
	if err != nil {
		return History{}, err
	}
	entries, err := d.remote.ListAttendance(ctx, s.Identity.RecordID)
	if err != nil {
		return History{}, err
	}
	return History{All: entries, Shown: f.Apply(entries, d.now())}, nil
}

// Receipts lists the journal receipts for the session under key.
func (d *Desk) Receipts(ctx context.Context, key string) ([]journal.Receipt, error) {
	s, err := d.loadSession(ctx, key)
	if err != nil {
		return nil, err
	}
	if d.journal == nil {
		return []journal.Receipt{}, nil
	}
	return d.journal.List(ctx, s.Identity.RecordID)
}

// IsRedirect reports whether err should send the user back to login.
func IsRedirect(err error) bool {
	return errors.Is(err, attendance.ErrNoSession)
}
