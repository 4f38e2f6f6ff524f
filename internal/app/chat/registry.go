/*
Package chat is the realtime core: the connection registry, the per-connection
pumps, the inbound protocol router and the broadcast hub.

This file defines the Registry, the single source of truth for which connection
belongs to which user and which room each connection currently has joined.
*/
package chat

import (
	"errors"
	"slices"
	"sync"

	"roomchat/internal/app/user"
)

// ConnID is the stable opaque id of one realtime connection.
type ConnID string

// RoomID identifies a persisted room.
type RoomID int64

var (
	// ErrAlreadyAdmitted is returned when a sink is admitted twice.
	ErrAlreadyAdmitted = errors.New("connection already admitted")

	// ErrConnClosed is returned by a sink that no longer accepts frames.
	ErrConnClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned by a sink whose outbound buffer is full.
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrUnknownConn is returned for ids the registry does not hold.
	ErrUnknownConn = errors.New("unknown connection")
)

// Sink is the outbound side of a connection. TrySend must never block.
type Sink interface {
	ID() ConnID
	TrySend(frame []byte) error
	Close(code int, reason string)
}

// Conn is the registry's record of one admitted connection.
// Its owner never changes; its room is guarded by the registry lock.
type Conn struct {
	id   ConnID
	user user.User
	sink Sink

	room   RoomID
	joined bool
}

// ID returns the connection id.
func (c *Conn) ID() ConnID { return c.id }

// User returns the user the connection was admitted for.
func (c *Conn) User() user.User { return c.user }

// RemoveResult describes a completed Remove.
type RemoveResult struct {
	UserID user.ID
	Login  string

	// LastForUser is set when the removed connection was the user's last one.
	LastForUser bool
}

// Registry holds every live connection, indexed by id and by owning user.
// A connection's current room lives on its record and nowhere else.
type Registry struct {
	mu     sync.RWMutex
	order  []*Conn
	byID   map[ConnID]*Conn
	byUser map[user.ID]map[ConnID]*Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[ConnID]*Conn),
		byUser: make(map[user.ID]map[ConnID]*Conn),
	}
}

// Admit registers sink as a live connection owned by u, not joined to any room.
func (r *Registry) Admit(sink Sink, u user.User) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := sink.ID()
	if _, ok := r.byID[id]; ok {
		return nil, ErrAlreadyAdmitted
	}

	c := &Conn{id: id, user: u, sink: sink}

	r.order = append(r.order, c)
	r.byID[id] = c

	set, ok := r.byUser[u.ID]
	if !ok {
		set = make(map[ConnID]*Conn)
		r.byUser[u.ID] = set
	}
	set[id] = c

	return c, nil
}

// SetRoom makes room the connection's only room. There is no existence check.
func (r *Registry) SetRoom(id ConnID, room RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return false
	}
	c.room, c.joined = room, true
	return true
}

// ClearRoom leaves the connection joined to no room.
func (r *Registry) ClearRoom(id ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return false
	}
	c.room, c.joined = 0, false
	return true
}

// RoomOf returns the connection's current room. joined is false when it has none.
func (r *Registry) RoomOf(id ConnID) (room RoomID, joined bool, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return 0, false, false
	}
	return c.room, c.joined, true
}

// Remove unregisters the connection. The user's entry goes away with its last connection.
func (r *Registry) Remove(id ConnID) (RemoveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return RemoveResult{}, false
	}

	delete(r.byID, id)
	if i := slices.Index(r.order, c); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}

	res := RemoveResult{UserID: c.user.ID, Login: c.user.Login}
	if set, ok := r.byUser[c.user.ID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byUser, c.user.ID)
			res.LastForUser = true
		}
	}

	return res, true
}

// Get returns the record for id.
func (r *Registry) Get(id ConnID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	return c, ok
}

// ConnectionsForUser returns u's live connections in admission order.
func (r *Registry) ConnectionsForUser(u user.ID) []*Conn {
	return r.collect(func(c *Conn) bool { return c.user.ID == u })
}

// ConnectionsForRoom returns the connections currently joined to room, in admission order.
func (r *Registry) ConnectionsForRoom(room RoomID) []*Conn {
	return r.collect(func(c *Conn) bool { return c.joined && c.room == room })
}

// AllConnections returns every live connection in admission order.
func (r *Registry) AllConnections() []*Conn {
	return r.collect(func(*Conn) bool { return true })
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// UserCount returns the number of users with at least one live connection.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// IsOnline reports whether u has a live connection.
func (r *Registry) IsOnline(u user.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[u]
	return ok
}

func (r *Registry) collect(match func(*Conn) bool) []*Conn {
	var out []*Conn
	r.each(match, func(c *Conn) { out = append(out, c) })
	return out
}

// each calls fn for every matching connection in admission order while holding the read lock.
// fn must not call back into the registry.
func (r *Registry) each(match func(*Conn) bool, fn func(*Conn)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.order {
		if match(c) {
			fn(c)
		}
	}
}
