package session

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore builds an in-memory store for tests and development.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[string]Session)}
}

func (m *memoryStore) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Key] = s
	return nil
}

func (m *memoryStore) Load(_ context.Context, key string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *memoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}
