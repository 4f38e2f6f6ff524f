package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"roomchat/internal/app/db"
	"roomchat/internal/app/user"
	"roomchat/internal/pkg/randx"
)

// Postgres implements the session store and user directory on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already migrated pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// CreateUser inserts a user and returns it with its generated id.
func (p *Postgres) CreateUser(ctx context.Context, login string, role user.Role) (user.User, error) {
	u := user.User{Login: login, Role: role}

	err := p.pool.QueryRow(ctx,
		`INSERT INTO users (login, role) VALUES ($1, $2) RETURNING id`,
		login, string(role),
	).Scan(&u.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return user.User{}, fmt.Errorf("create user %q: %w", login, user.ErrLoginTaken)
		}
		return user.User{}, fmt.Errorf("create user %q: %w", login, err)
	}
	return u, nil
}

// DeleteUser removes a user. Sessions go with it through the foreign key.
func (p *Postgres) DeleteUser(ctx context.Context, id user.ID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, int64(id))
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

// CreateSession opens a session for userID that expires after ttl.
func (p *Postgres) CreateSession(ctx context.Context, userID user.ID, ttl time.Duration) (user.Session, error) {
	sid, err := randx.SessionID()
	if err != nil {
		return user.Session{}, err
	}

	s := user.Session{ID: sid, UserID: userID}
	err = p.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, user_id, expires_at) VALUES ($1, $2, $3) RETURNING expires_at`,
		sid, int64(userID), time.Now().Add(ttl),
	).Scan(&s.ExpiresAt)
	if err != nil {
		return user.Session{}, fmt.Errorf("create session for user %d: %w", userID, err)
	}
	return s, nil
}

// DeleteSession removes sid. Unknown ids are ignored.
func (p *Postgres) DeleteSession(ctx context.Context, sid string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sid); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// LookupSession returns the session with id sid, expired or not.
func (p *Postgres) LookupSession(ctx context.Context, sid string) (user.Session, error) {
	s := user.Session{ID: sid}

	var uid int64
	err := p.pool.QueryRow(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE id = $1`, sid,
	).Scan(&uid, &s.ExpiresAt)
	if err != nil {
		if db.IsNoRows(err) {
			return user.Session{}, user.ErrSessionNotFound
		}
		return user.Session{}, fmt.Errorf("lookup session: %w", err)
	}

	s.UserID = user.ID(uid)
	return s, nil
}

// LookupUser returns the user with the given id.
func (p *Postgres) LookupUser(ctx context.Context, id user.ID) (user.User, error) {
	u := user.User{ID: id}

	var role string
	err := p.pool.QueryRow(ctx,
		`SELECT login, role FROM users WHERE id = $1`, int64(id),
	).Scan(&u.Login, &role)
	if err != nil {
		if db.IsNoRows(err) {
			return user.User{}, user.ErrUserNotFound
		}
		return user.User{}, fmt.Errorf("lookup user %d: %w", id, err)
	}

	u.Role = user.Role(role)
	return u, nil
}

// PurgeExpired deletes sessions that expired before now.
func (p *Postgres) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
