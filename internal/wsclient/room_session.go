package wsclient

import (
	"errors"
	"sync"

	"roomchat/internal/app/chat"
)

type joinIntent struct {
	Type   string       `json:"type"`
	RoomID *chat.RoomID `json:"roomId"`
}

// RoomSession remembers the room the application is viewing and re-sends the
// join intent every time the controller (re)opens.
type RoomSession struct {
	ctl *Controller

	mu     sync.Mutex
	room   chat.RoomID
	joined bool

	unsubscribe func()
}

// NewRoomSession attaches to ctl. Call Stop to detach.
func NewRoomSession(ctl *Controller) *RoomSession {
	s := &RoomSession{ctl: ctl}
	s.unsubscribe = ctl.OnOpen(s.replay)
	return s
}

// Join switches to room. If the connection is not open the join is sent on the next open.
func (s *RoomSession) Join(room chat.RoomID) error {
	s.mu.Lock()
	s.room, s.joined = room, true
	s.mu.Unlock()

	return ignoreNotOpen(s.ctl.Send(joinIntent{Type: chat.IntentJoin, RoomID: &room}))
}

// Leave clears the current room on the server.
func (s *RoomSession) Leave() error {
	s.mu.Lock()
	s.joined = false
	s.mu.Unlock()

	return ignoreNotOpen(s.ctl.Send(joinIntent{Type: chat.IntentJoin}))
}

// Room returns the remembered room.
func (s *RoomSession) Room() (chat.RoomID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room, s.joined
}

func (s *RoomSession) Stop() {
	s.unsubscribe()
}

func (s *RoomSession) replay() {
	room, joined := s.Room()
	if !joined {
		return
	}
	if err := s.ctl.Send(joinIntent{Type: chat.IntentJoin, RoomID: &room}); err != nil {
		s.ctl.logger.Debug().Err(err).Int64("room_id", int64(room)).Msg("Room re-join failed")
	}
}

func ignoreNotOpen(err error) error {
	if errors.Is(err, ErrNotOpen) {
		return nil
	}
	return err
}
