/*
Package chat is the realtime core: the connection registry, the per-connection
pumps, the inbound protocol router and the broadcast hub.

This file defines the Hub, which scopes outbound events to all connections, one
room or one user, and announces presence as connections come and go.
*/
package chat

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"roomchat/internal/app/user"
	"roomchat/internal/metrics"
	"roomchat/internal/pkg/logx"
)

// Broadcaster is what HTTP handlers call after a write has committed.
// Each method returns the number of connections the frame was queued on.
type Broadcaster interface {
	BroadcastAll(ev Event) int
	BroadcastRoom(room RoomID, ev Event) int
	BroadcastUser(u user.ID, ev Event) int
}

var _ Broadcaster = (*Hub)(nil)

// Hub fans events out to the connections held by a Registry.
//
// Delivery is best effort: each frame is marshaled once and offered to every
// matching connection without blocking. A connection that is closed or whose
// buffer is full misses the frame; nothing is retried.
//
// Admit and Remove hold presenceMu across the registry change and its presence
// broadcast, so observers see presence transitions in registry order.
type Hub struct {
	reg        *Registry
	presenceMu sync.Mutex
	logger     zerolog.Logger
}

// NewHub returns a Hub over reg.
func NewHub(reg *Registry) *Hub {
	return &Hub{
		reg:    reg,
		logger: logx.Component("hub"),
	}
}

// Registry exposes the underlying registry.
func (h *Hub) Registry() *Registry {
	return h.reg
}

// Admit registers sink for u and announces u online.
func (h *Hub) Admit(sink Sink, u user.User) (*Conn, error) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	c, err := h.reg.Admit(sink, u)
	if err != nil {
		return nil, err
	}

	h.updateGauges()
	h.logger.Info().
		Str("conn_id", string(c.ID())).
		Int64("user_id", int64(u.ID)).
		Msg("Connection admitted")

	h.BroadcastAll(NewPresence(u, true))
	return c, nil
}

// Remove unregisters the connection and announces the user offline if it was their last.
func (h *Hub) Remove(id ConnID) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	res, ok := h.reg.Remove(id)
	if !ok {
		return
	}

	h.updateGauges()
	h.logger.Info().
		Str("conn_id", string(id)).
		Int64("user_id", int64(res.UserID)).
		Bool("last_for_user", res.LastForUser).
		Msg("Connection removed")

	if res.LastForUser {
		h.BroadcastAll(NewPresence(user.User{ID: res.UserID, Login: res.Login}, false))
	}
}

// BroadcastAll queues ev on every live connection.
func (h *Hub) BroadcastAll(ev Event) int {
	return h.fanout("all", ev, func(*Conn) bool { return true })
}

// BroadcastRoom queues ev on every connection whose current room is room.
func (h *Hub) BroadcastRoom(room RoomID, ev Event) int {
	return h.fanout("room", ev, func(c *Conn) bool { return c.joined && c.room == room })
}

// BroadcastUser queues ev once on each of u's connections.
func (h *Hub) BroadcastUser(u user.ID, ev Event) int {
	return h.fanout("user", ev, func(c *Conn) bool { return c.user.ID == u })
}

// SendTo queues ev on a single connection.
func (h *Hub) SendTo(id ConnID, ev Event) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}

	c, ok := h.reg.Get(id)
	if !ok {
		return ErrUnknownConn
	}

	if err := c.sink.TrySend(frame); err != nil {
		h.recordDrop(c, ev, err)
		return err
	}
	metrics.WSMessagesSent.WithLabelValues(ev.EventType()).Inc()
	return nil
}

// DisconnectUser closes every connection owned by u with code and reason.
// Frames queued before the call are flushed ahead of the close frame.
func (h *Hub) DisconnectUser(u user.ID, code int, reason string) int {
	conns := h.reg.ConnectionsForUser(u)
	for _, c := range conns {
		c.sink.Close(code, reason)
	}

	if len(conns) > 0 {
		h.logger.Warn().
			Int64("user_id", int64(u)).
			Int("close_code", code).
			Str("reason", reason).
			Int("connections", len(conns)).
			Msg("User disconnected")
	}
	return len(conns)
}

// Shutdown closes every connection with 1001 going away.
func (h *Hub) Shutdown() {
	conns := h.reg.AllConnections()
	for _, c := range conns {
		c.sink.Close(websocket.CloseGoingAway, ReasonShutdown)
	}
	h.logger.Info().Int("connections", len(conns)).Msg("Hub shut down")
}

func (h *Hub) fanout(scope string, ev Event, match func(*Conn) bool) int {
	frame, err := Encode(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("type", ev.EventType()).Msg("Failed to encode event")
		return 0
	}

	metrics.Broadcasts.WithLabelValues(scope).Inc()

	delivered := 0
	h.reg.each(match, func(c *Conn) {
		if err := c.sink.TrySend(frame); err != nil {
			h.recordDrop(c, ev, err)
			return
		}
		delivered++
	})

	metrics.WSMessagesSent.WithLabelValues(ev.EventType()).Add(float64(delivered))
	return delivered
}

func (h *Hub) recordDrop(c *Conn, ev Event, err error) {
	reason := metrics.DropClosed
	if errors.Is(err, ErrSendBufferFull) {
		reason = metrics.DropBufferFull
	}
	metrics.FramesDropped.WithLabelValues(reason).Inc()

	h.logger.Debug().
		Str("conn_id", string(c.ID())).
		Str("type", ev.EventType()).
		Str("reason", reason).
		Msg("Frame skipped")
}

func (h *Hub) updateGauges() {
	metrics.WSConnections.Set(float64(h.reg.Count()))
	metrics.WSOnlineUsers.Set(float64(h.reg.UserCount()))
}
