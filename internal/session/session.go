// Package session holds the authenticated identity between the login and
// registration workflows. A session is created by login, read by
// registration and removed by logout.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/puce/registro/internal/attendance"
)

// DeviceKey is the well-known key of the single session kept on a device.
const DeviceKey = "current-user"

// ErrNotFound is returned by Load when no session exists for a key.
var ErrNotFound = errors.New("session not found")

// Session is the identity record persisted after login, together with the
// challenge currently shown on the registration screen.
type Session struct {
	Key       string               `json:"key"`
	Identity  attendance.Identity  `json:"identity"`
	Challenge attendance.Challenge `json:"challenge"`
	CreatedAt time.Time            `json:"created_at"`
}

// Store persists sessions.
type Store interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context, key string) (Session, error)
	Clear(ctx context.Context, key string) error
}
