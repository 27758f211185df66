package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/unilend/internal/domain"
)

// ErrTokenNotFound is returned for unknown or expired tokens.
var ErrTokenNotFound = errors.New("token not found")

// SessionStore keeps session and password reset tokens. The redis store
// implements it for deployments; MemorySessions serves the memory backend.
type SessionStore interface {
	SaveSession(ctx context.Context, token string, ident domain.Identity, ttl time.Duration) error
	LookupSession(ctx context.Context, token string) (domain.Identity, error)
	DeleteSession(ctx context.Context, token string) error
	// DeleteUserSessions revokes every session of userID.
	DeleteUserSessions(ctx context.Context, userID string) (int, error)
	SaveResetToken(ctx context.Context, token, email string, ttl time.Duration) error
	ConsumeResetToken(ctx context.Context, token string) (string, error)
}

type entry struct {
	value   any
	expires time.Time
}

// MemorySessions is a process-local SessionStore.
type MemorySessions struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{entries: make(map[string]entry), now: time.Now}
}

func (m *MemorySessions) SaveSession(_ context.Context, token string, ident domain.Identity, ttl time.Duration) error {
	m.put("session:"+token, ident, ttl)
	return nil
}

func (m *MemorySessions) LookupSession(_ context.Context, token string) (domain.Identity, error) {
	v, ok := m.get("session:"+token, false)
	if !ok {
		return domain.Identity{}, ErrTokenNotFound
	}
	return v.(domain.Identity), nil
}

func (m *MemorySessions) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, "session:"+token)
	return nil
}

func (m *MemorySessions) DeleteUserSessions(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if ident, ok := e.value.(domain.Identity); ok && ident.UserID == userID && strings.HasPrefix(k, "session:") {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *MemorySessions) SaveResetToken(_ context.Context, token, email string, ttl time.Duration) error {
	m.put("reset:"+token, email, ttl)
	return nil
}

func (m *MemorySessions) ConsumeResetToken(_ context.Context, token string) (string, error) {
	v, ok := m.get("reset:"+token, true)
	if !ok {
		return "", ErrTokenNotFound
	}
	return v.(string), nil
}

// Purge drops expired entries and returns how many were removed.
func (m *MemorySessions) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

func (m *MemorySessions) put(key string, v any, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: v, expires: m.now().Add(ttl)}
}

func (m *MemorySessions) get(key string, consume bool) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	expired := !m.now().Before(e.expires)
	if expired || consume {
		delete(m.entries, key)
	}
	if expired {
		return nil, false
	}
	return e.value, true
}
