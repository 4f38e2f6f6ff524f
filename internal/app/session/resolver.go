/*
Package session resolves the session cookie on an upgrade request to a user.

Missing, malformed, expired and unknown credentials all collapse into
ErrUnauthenticated; any other failure is a store problem and is returned wrapped.
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"roomchat/internal/app/user"
	"roomchat/internal/pkg/auth/cookie"
	"roomchat/internal/pkg/randx"
)

// ErrUnauthenticated means the request carries no usable session.
var ErrUnauthenticated = errors.New("unauthenticated")

// Store looks up persisted sessions.
type Store interface {
	LookupSession(ctx context.Context, sid string) (user.Session, error)
}

// Directory resolves user ids to display identity.
type Directory interface {
	LookupUser(ctx context.Context, id user.ID) (user.User, error)
}

// Resolver maps a request's session cookie to the owning user.
type Resolver struct {
	cookieName string
	secret     string
	sessions   Store
	users      Directory
	now        func() time.Time
}

// NewResolver builds a Resolver reading cookieName and verifying it with secret.
func NewResolver(cookieName, secret string, sessions Store, users Directory) *Resolver {
	return &Resolver{
		cookieName: cookieName,
		secret:     secret,
		sessions:   sessions,
		users:      users,
		now:        time.Now,
	}
}

// Resolve returns the user owning r's session.
func (res *Resolver) Resolve(ctx context.Context, r *http.Request) (user.User, error) {
	c, err := r.Cookie(res.cookieName)
	if err != nil || c.Value == "" {
		return user.User{}, fmt.Errorf("%w: no %s cookie", ErrUnauthenticated, res.cookieName)
	}

	sid, err := cookie.Verify(c.Value, res.secret)
	if err != nil {
		return user.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if !randx.IsValidSessionID(sid) {
		return user.User{}, fmt.Errorf("%w: malformed session id", ErrUnauthenticated)
	}

	s, err := res.sessions.LookupSession(ctx, sid)
	switch {
	case errors.Is(err, user.ErrSessionNotFound):
		return user.User{}, fmt.Errorf("%w: unknown session", ErrUnauthenticated)
	case err != nil:
		return user.User{}, fmt.Errorf("resolve session: %w", err)
	case s.Expired(res.now()):
		return user.User{}, fmt.Errorf("%w: session expired", ErrUnauthenticated)
	}

	u, err := res.users.LookupUser(ctx, s.UserID)
	switch {
	case errors.Is(err, user.ErrUserNotFound):
		return user.User{}, fmt.Errorf("%w: session owner %d no longer exists", ErrUnauthenticated, s.UserID)
	case err != nil:
		return user.User{}, fmt.Errorf("resolve user: %w", err)
	}

	return u, nil
}
