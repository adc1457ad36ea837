package desk

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/puce/registro/internal/attendance"
	"github.com/puce/registro/internal/session"
)

// Credentials is the pair typed on the login screen.
type Credentials struct {
	Username string
	Password string
}

// Login authenticates creds and persists a new session under key. An empty
// key asks the desk to mint one. Missing credentials fail before any
// network call.
func (d *Desk) Login(ctx context.Context, creds Credentials, key string) (session.Session, error) {
	username := strings.TrimSpace(creds.Username)
	if username == "" || creds.Password == "" {
		return session.Session{}, attendance.Invalid("enter username and password")
	}
	if key == "" {
		key = d.newKey()
	}
	release, err := d.acquire("login:" + key)
	if err != nil {
		return session.Session{}, err
	}
	defer release()

	identity, err := d.remote.Authenticate(ctx, username, creds.Password)
	if errors.Is(err, attendance.ErrNotFound) {
		d.logger.Info("login rejected", slog.String("user", username))
		return session.Session{}, attendance.Invalid("incorrect username or password")
	}
	if err != nil {
		d.logger.Warn("login failed", slog.String("user", username), slog.Any("error", err))
		return session.Session{}, err
	}

	s := session.Session{Key: key, Identity: identity, CreatedAt: d.now().UTC()}
	d.sessionMu.Lock()
	err = d.store.Save(ctx, s)
	d.sessionMu.Unlock()
	if err != nil {
		return session.Session{}, err
	}
	d.logger.Info("login completed", slog.String("user", username), slog.Int64("record", identity.RecordID))
	return s, nil
}

// Logout removes the session stored under key.
func (d *Desk) Logout(ctx context.Context, key string) error {
	d.sessionMu.Lock()
	defer d.sessionMu.Unlock()
	return d.store.Clear(ctx, key)
}

// Current returns the session under key without touching its challenge.
func (d *Desk) Current(ctx context.Context, key string) (session.Session, error) {
	return d.loadSession(ctx, key)
}

// Users lists every identity known to the remote.
func (d *Desk) Users(ctx context.Context) ([]attendance.Identity, error) {
	return d.remote.ListUsers(ctx)
}
