/*
Package store implements the session and user lookups consumed by the realtime core.

Memory keeps everything in process and backs development and tests; Postgres is the
persistent implementation over pgx.
*/
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roomchat/internal/app/user"
	"roomchat/internal/pkg/randx"
)

// Memory is an in-process session store and user directory.
type Memory struct {
	mu       sync.RWMutex
	nextID   user.ID
	users    map[user.ID]user.User
	logins   map[string]user.ID
	sessions map[string]user.Session
	now      func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[user.ID]user.User),
		logins:   make(map[string]user.ID),
		sessions: make(map[string]user.Session),
		now:      time.Now,
	}
}

// CreateUser adds a user with a fresh id.
func (m *Memory) CreateUser(_ context.Context, login string, role user.Role) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.logins[login]; taken {
		return user.User{}, fmt.Errorf("create user %q: %w", login, user.ErrLoginTaken)
	}

	m.nextID++
	u := user.User{ID: m.nextID, Login: login, Role: role}
	m.users[u.ID] = u
	m.logins[login] = u.ID
	return u, nil
}

// DeleteUser removes a user and every session they own.
func (m *Memory) DeleteUser(_ context.Context, id user.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return user.ErrUserNotFound
	}

	delete(m.users, id)
	delete(m.logins, u.Login)
	for sid, s := range m.sessions {
		if s.UserID == id {
			delete(m.sessions, sid)
		}
	}
	return nil
}

// CreateSession opens a session for userID that expires after ttl.
func (m *Memory) CreateSession(_ context.Context, userID user.ID, ttl time.Duration) (user.Session, error) {
	sid, err := randx.SessionID()
	if err != nil {
		return user.Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return user.Session{}, user.ErrUserNotFound
	}

	s := user.Session{ID: sid, UserID: userID, ExpiresAt: m.now().Add(ttl)}
	m.sessions[sid] = s
	return s, nil
}

// DeleteSession forgets sid. Unknown ids are ignored.
func (m *Memory) DeleteSession(_ context.Context, sid string) error {
	m.mu.Lock()
	delete(m.sessions, sid)
	m.mu.Unlock()
	return nil
}

// LookupSession returns the session with id sid, expired or not.
func (m *Memory) LookupSession(_ context.Context, sid string) (user.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sid]
	if !ok {
		return user.Session{}, user.ErrSessionNotFound
	}
	return s, nil
}

// LookupUser returns the user with the given id.
func (m *Memory) LookupUser(_ context.Context, id user.ID) (user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return user.User{}, user.ErrUserNotFound
	}
	return u, nil
}

// PurgeExpired deletes sessions that expired before now.
func (m *Memory) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for sid, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, sid)
			n++
		}
	}
	return n, nil
}
