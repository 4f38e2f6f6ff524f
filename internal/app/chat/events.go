/*
Package chat is the realtime core: the connection registry, the per-connection
pumps, the inbound protocol router and the broadcast hub.

This file defines the outbound events. Every event marshals to a flat JSON object
whose "type" field names it.
*/
package chat

import (
	"time"

	"github.com/goccy/go-json"

	"roomchat/internal/app/user"
)

// Outbound event types.
const (
	TypeMessage             = "message"
	TypeMessageUpdated      = "message_updated"
	TypeMessageDeleted      = "message_deleted"
	TypeMessagesDeleted     = "messages_deleted"
	TypeTyping              = "typing"
	TypeRoomCreated         = "room_created"
	TypeRoomUpdated         = "room_updated"
	TypeRoomDeleted         = "room_deleted"
	TypeRoomMessagesCleared = "room_messages_cleared"
	TypeUserDeleted         = "user_deleted"
	TypeUserVerified        = "user_verified"
	TypeUserRejected        = "user_rejected"
	TypePresence            = "presence"
	TypePong                = "pong"
)

// Event is an outbound payload. Build one with the New* constructors.
type Event interface {
	EventType() string
}

// Kind carries the type tag and is embedded in every event.
type Kind struct {
	Type string `json:"type"`
}

// EventType implements Event.
func (k Kind) EventType() string { return k.Type }

// Message is the persisted chat message as the HTTP layer hands it over.
type Message struct {
	ID        int64      `json:"id"`
	RoomID    RoomID     `json:"roomId"`
	UserID    user.ID    `json:"userId"`
	Login     string     `json:"login"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
}

// Room is the persisted room as the HTTP layer hands it over.
type Room struct {
	ID        RoomID    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy user.ID   `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageEvent announces a new or edited message to its room.
type MessageEvent struct {
	Kind
	Message Message `json:"message"`
}

// MessageDeletedEvent tells a room one message is gone.
type MessageDeletedEvent struct {
	Kind
	MessageID int64 `json:"messageId"`
}

// MessagesDeletedEvent tells a room a batch of messages is gone.
type MessagesDeletedEvent struct {
	Kind
	MessageIDs []int64 `json:"messageIds"`
}

// TypingEvent relays that a user is typing in the receiver's room.
type TypingEvent struct {
	Kind
	UserID user.ID `json:"userId"`
	Login  string  `json:"login"`
}

// RoomEvent carries a full room after it is created or updated.
type RoomEvent struct {
	Kind
	Room Room `json:"room"`
}

// RoomRefEvent names a room that was deleted or had its messages cleared.
type RoomRefEvent struct {
	Kind
	RoomID RoomID `json:"roomId"`
}

// UserDeletedEvent is sent to a removed user before their connections are closed.
type UserDeletedEvent struct {
	Kind
	UserID user.ID `json:"userId"`
	Reason string  `json:"reason"`
}

// UserVerifiedEvent tells a user their account was approved.
type UserVerifiedEvent struct {
	Kind
	UserID user.ID `json:"userId"`
}

// UserRejectedEvent tells a user their account was rejected, with the moderator's message.
type UserRejectedEvent struct {
	Kind
	UserID  user.ID `json:"userId"`
	Message string  `json:"message"`
}

// PresenceEvent reports a user gaining their first or losing their last connection.
type PresenceEvent struct {
	Kind
	UserID user.ID `json:"userId"`
	Login  string  `json:"login"`
	Online bool    `json:"online"`
}

// NewMessage builds the event for a newly posted message.
func NewMessage(m Message) MessageEvent {
	return MessageEvent{Kind{TypeMessage}, m}
}

// NewMessageUpdated builds the event for an edited message.
func NewMessageUpdated(m Message) MessageEvent {
	return MessageEvent{Kind{TypeMessageUpdated}, m}
}

// NewMessageDeleted builds the event for a single deleted message.
func NewMessageDeleted(id int64) MessageDeletedEvent {
	return MessageDeletedEvent{Kind{TypeMessageDeleted}, id}
}

// NewMessagesDeleted never encodes a null id list.
func NewMessagesDeleted(ids []int64) MessagesDeletedEvent {
	if ids == nil {
		ids = []int64{}
	}
	return MessagesDeletedEvent{Kind{TypeMessagesDeleted}, ids}
}

// NewTyping builds a typing notice for u.
func NewTyping(u user.ID, login string) TypingEvent {
	return TypingEvent{Kind{TypeTyping}, u, login}
}

// NewRoomCreated builds the event for a new room.
func NewRoomCreated(r Room) RoomEvent {
	return RoomEvent{Kind{TypeRoomCreated}, r}
}

// NewRoomUpdated builds the event for a renamed or edited room.
func NewRoomUpdated(r Room) RoomEvent {
	return RoomEvent{Kind{TypeRoomUpdated}, r}
}

// NewRoomDeleted builds the event for a deleted room.
func NewRoomDeleted(id RoomID) RoomRefEvent {
	return RoomRefEvent{Kind{TypeRoomDeleted}, id}
}

// NewRoomMessagesCleared builds the event for a room whose history was wiped.
func NewRoomMessagesCleared(id RoomID) RoomRefEvent {
	return RoomRefEvent{Kind{TypeRoomMessagesCleared}, id}
}

// NewUserDeleted builds the notice sent to u before a kick.
func NewUserDeleted(u user.ID, reason string) UserDeletedEvent {
	return UserDeletedEvent{Kind{TypeUserDeleted}, u, reason}
}

// NewUserVerified builds the approval notice for u.
func NewUserVerified(u user.ID) UserVerifiedEvent {
	return UserVerifiedEvent{Kind{TypeUserVerified}, u}
}

// NewUserRejected builds the rejection notice for u.
func NewUserRejected(u user.ID, message string) UserRejectedEvent {
	return UserRejectedEvent{Kind{TypeUserRejected}, u, message}
}

// NewPresence builds a presence change for u.
func NewPresence(u user.User, online bool) PresenceEvent {
	return PresenceEvent{Kind{TypePresence}, u.ID, u.Login, online}
}

// NewPong builds the reply to a ping intent.
func NewPong() Kind {
	return Kind{TypePong}
}

// Encode serializes ev into one text frame.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
