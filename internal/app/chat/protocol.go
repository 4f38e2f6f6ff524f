/*
Package chat is the realtime core: the connection registry, the per-connection
pumps, the inbound protocol router and the broadcast hub.

This file defines the Router, which parses inbound frames into join, typing and
ping intents and applies them.
*/
package chat

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"roomchat/internal/metrics"
	"roomchat/internal/pkg/logx"
)

// Inbound intent types.
const (
	IntentJoin   = "join"
	IntentTyping = "typing"
	IntentPing   = "ping"
)

// inboundHead carries the discriminator alone. Fields an intent does not use are never decoded.
type inboundHead struct {
	Type string `json:"type"`
}

// roomFrame is the body of join and typing.
type roomFrame struct {
	RoomID *RoomID `json:"roomId"`
}

// Router turns inbound frames into registry mutations and replies.
// Frames it cannot parse or does not recognize are dropped without a reply.
type Router struct {
	hub *Hub

	typingRate  rate.Limit
	typingBurst int

	mu     sync.Mutex
	typing map[ConnID]*rate.Limiter

	logger zerolog.Logger
}

// NewRouter builds a Router; typing frames are limited to typingRate per second per connection.
func NewRouter(hub *Hub, typingRate float64, typingBurst int) *Router {
	return &Router{
		hub:         hub,
		typingRate:  rate.Limit(typingRate),
		typingBurst: typingBurst,
		typing:      make(map[ConnID]*rate.Limiter),
		logger:      logx.Component("router"),
	}
}

// Handle processes one frame from c and returns the intent it carried, or "" if ignored.
func (rt *Router) Handle(c *Conn, frame []byte) string {
	var head inboundHead
	if err := json.Unmarshal(frame, &head); err != nil {
		rt.ignore(c, "invalid json")
		return ""
	}

	switch head.Type {
	case IntentJoin:
		var in roomFrame
		if err := json.Unmarshal(frame, &in); err != nil {
			rt.ignore(c, "invalid roomId")
			return ""
		}
		if in.RoomID == nil {
			rt.hub.Registry().ClearRoom(c.ID())
		} else {
			rt.hub.Registry().SetRoom(c.ID(), *in.RoomID)
		}

	case IntentTyping:
		var in roomFrame
		if err := json.Unmarshal(frame, &in); err != nil || in.RoomID == nil {
			rt.ignore(c, "typing without roomId")
			return ""
		}
		if rt.allowTyping(c.ID()) {
			u := c.User()
			rt.hub.BroadcastRoom(*in.RoomID, NewTyping(u.ID, u.Login))
		}

	case IntentPing:
		if err := rt.hub.SendTo(c.ID(), NewPong()); err != nil {
			rt.logger.Debug().Err(err).Str("conn_id", string(c.ID())).Msg("Pong not delivered")
		}

	default:
		rt.ignore(c, "unknown type")
		return ""
	}

	metrics.RecordReceived(head.Type)
	return head.Type
}

// Forget drops per-connection router state. Call it once the connection is gone.
func (rt *Router) Forget(id ConnID) {
	rt.mu.Lock()
	delete(rt.typing, id)
	rt.mu.Unlock()
}

func (rt *Router) allowTyping(id ConnID) bool {
	rt.mu.Lock()
	l, ok := rt.typing[id]
	if !ok {
		l = rate.NewLimiter(rt.typingRate, rt.typingBurst)
		rt.typing[id] = l
	}
	rt.mu.Unlock()

	return l.Allow()
}

func (rt *Router) ignore(c *Conn, why string) {
	metrics.RecordReceived("")
	rt.logger.Debug().Str("conn_id", string(c.ID())).Str("reason", why).Msg("Inbound frame ignored")
}
