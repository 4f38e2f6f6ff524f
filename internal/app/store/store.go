package store

import (
	"context"
	"time"

	"roomchat/internal/app/user"
	"roomchat/internal/pkg/logx"
)

// Store is the full surface both implementations provide.
type Store interface {
	CreateUser(ctx context.Context, login string, role user.Role) (user.User, error)
	DeleteUser(ctx context.Context, id user.ID) error
	CreateSession(ctx context.Context, userID user.ID, ttl time.Duration) (user.Session, error)
	DeleteSession(ctx context.Context, sid string) error
	LookupSession(ctx context.Context, sid string) (user.Session, error)
	LookupUser(ctx context.Context, id user.ID) (user.User, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)

// Janitor periodically deletes expired sessions from a Store.
type Janitor struct {
	store    Store
	interval time.Duration
}

// NewJanitor returns a Janitor purging every interval.
func NewJanitor(s Store, interval time.Duration) *Janitor {
	return &Janitor{store: s, interval: interval}
}

// Serve purges until ctx is cancelled.
func (j *Janitor) Serve(ctx context.Context) error {
	logger := logx.Component("session-janitor")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			n, err := j.store.PurgeExpired(ctx, now)
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to purge expired sessions")
				continue
			}
			if n > 0 {
				logger.Info().Int64("purged", n).Msg("Expired sessions purged")
			}
		}
	}
}

func (j *Janitor) String() string {
	return "session-janitor"
}
