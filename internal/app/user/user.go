/*
Package user contains the identity types shared by the realtime core and its stores.
*/
package user

import (
	"errors"
	"time"
)

// ID identifies a registered user.
type ID int64

// Role is the permission level reported by the user directory.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// User is the resolved identity attached to a realtime connection.
type User struct {
	ID    ID     `json:"id"`
	Login string `json:"login"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether u holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Session is one persisted login session.
type Session struct {
	ID        string
	UserID    ID
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Lookup failures shared by every store implementation.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrLoginTaken      = errors.New("login already taken")
)
