package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/store"
	"roomchat/internal/app/user"
	"roomchat/internal/pkg/auth/cookie"
	"roomchat/internal/pkg/randx"
)

const (
	cookieName = "roomchat_session"
	secret     = "resolver-secret"
)

type failingStore struct{}

func (failingStore) LookupSession(context.Context, string) (user.Session, error) {
	return user.Session{}, errors.New("connection refused")
}

func requestWith(t *testing.T, value string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if value != "" {
		r.AddCookie(&http.Cookie{Name: cookieName, Value: value})
	}
	return r
}

func freshSID(t *testing.T) string {
	t.Helper()
	sid, err := randx.SessionID()
	require.NoError(t, err)
	return sid
}

func issue(t *testing.T, sid string) string {
	t.Helper()
	v, err := cookie.Issue(sid, secret, time.Hour)
	require.NoError(t, err)
	return v
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	alice, err := mem.CreateUser(ctx, "alice", user.RoleMember)
	require.NoError(t, err)
	live, err := mem.CreateSession(ctx, alice.ID, time.Hour)
	require.NoError(t, err)
	expired, err := mem.CreateSession(ctx, alice.ID, -time.Minute)
	require.NoError(t, err)

	ghost, err := mem.CreateUser(ctx, "ghost", user.RoleMember)
	require.NoError(t, err)
	orphan, err := mem.CreateSession(ctx, ghost.ID, time.Hour)
	require.NoError(t, err)
	// DeleteUser drops the session too; the overlay below keeps serving it.
	require.NoError(t, mem.DeleteUser(ctx, ghost.ID))

	res := NewResolver(cookieName, secret, sessionsWith(mem, orphan), mem)

	got, err := res.Resolve(ctx, requestWith(t, issue(t, live.ID)))
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	refused := map[string]*http.Request{
		"missing cookie":  requestWith(t, ""),
		"malformed":       requestWith(t, "garbage"),
		"unknown session": requestWith(t, issue(t, freshSID(t))),
		"expired":         requestWith(t, issue(t, expired.ID)),
		"deleted user":    requestWith(t, issue(t, orphan.ID)),
	}
	for name, r := range refused {
		t.Run(name, func(t *testing.T) {
			_, err := res.Resolve(ctx, r)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestResolveStoreFailureIsNotUnauthenticated(t *testing.T) {
	res := NewResolver(cookieName, secret, failingStore{}, store.NewMemory())

	_, err := res.Resolve(context.Background(), requestWith(t, issue(t, freshSID(t))))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveRejectsMalformedSessionIDBeforeLookup(t *testing.T) {
	// failingStore would turn any lookup into a store error.
	res := NewResolver(cookieName, secret, failingStore{}, store.NewMemory())

	for _, sid := range []string{"sid", freshSID(t)[:31], freshSID(t)[:31] + "!"} {
		_, err := res.Resolve(context.Background(), requestWith(t, issue(t, sid)))
		assert.ErrorIs(t, err, ErrUnauthenticated, "sid %q", sid)
	}
}

// overlay serves extra sessions in front of a base store.
type overlay struct {
	base  Store
	extra map[string]user.Session
}

func (o overlay) LookupSession(ctx context.Context, sid string) (user.Session, error) {
	if s, ok := o.extra[sid]; ok {
		return s, nil
	}
	return o.base.LookupSession(ctx, sid)
}

func sessionsWith(base Store, extra ...user.Session) Store {
	o := overlay{base: base, extra: make(map[string]user.Session)}
	for _, s := range extra {
		o.extra[s.ID] = s
	}
	return o
}
