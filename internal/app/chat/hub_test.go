package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/user"
)

func testMessage(room RoomID) Message {
	return Message{ID: 10, RoomID: room, UserID: alice.ID, Login: "alice", Content: "hi", CreatedAt: time.Unix(1700000000, 0).UTC()}
}

func TestBroadcastRoomScenario(t *testing.T) {
	h := NewHub(NewRegistry())

	a, aSink := admit(t, h, alice)
	b, bSink := admit(t, h, bob)
	c, cSink := admit(t, h, carol)

	h.Registry().SetRoom(a.ID(), 5)
	h.Registry().SetRoom(b.ID(), 5)
	h.Registry().SetRoom(c.ID(), 6)

	for _, s := range []*fakeSink{aSink, bSink, cSink} {
		s.reset()
	}

	n := h.BroadcastRoom(5, NewMessage(testMessage(5)))
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, aSink.count(TypeMessage))
	assert.Equal(t, 1, bSink.count(TypeMessage))
	assert.Zero(t, cSink.count(TypeMessage))
}

func TestBroadcastUserReachesEveryTab(t *testing.T) {
	h := NewHub(NewRegistry())

	tab1, s1 := admit(t, h, alice)
	tab2, s2 := admit(t, h, alice)
	_, other := admit(t, h, bob)

	h.Registry().SetRoom(tab1.ID(), 5)
	h.Registry().SetRoom(tab2.ID(), 9)

	n := h.BroadcastUser(alice.ID, NewUserDeleted(alice.ID, "spam"))
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s1.count(TypeUserDeleted))
	assert.Equal(t, 1, s2.count(TypeUserDeleted))
	assert.Zero(t, other.count(TypeUserDeleted))
}

func TestRoomSwitchChangesScope(t *testing.T) {
	h := NewHub(NewRegistry())
	c, s := admit(t, h, alice)

	h.Registry().SetRoom(c.ID(), 5)
	h.Registry().SetRoom(c.ID(), 7)
	s.reset()

	assert.Zero(t, h.BroadcastRoom(5, NewRoomMessagesCleared(5)))
	assert.Equal(t, 1, h.BroadcastRoom(7, NewRoomMessagesCleared(7)))
	assert.Equal(t, []string{TypeRoomMessagesCleared}, s.types())
}

func TestBroadcastUsesStateAtSendTime(t *testing.T) {
	h := NewHub(NewRegistry())
	c, s := admit(t, h, alice)
	h.Registry().SetRoom(c.ID(), 5)

	earlier := h.Registry().ConnectionsForRoom(5)
	require.Len(t, earlier, 1)

	h.Registry().SetRoom(c.ID(), 6)
	s.reset()

	assert.Zero(t, h.BroadcastRoom(5, NewRoomDeleted(5)))
	assert.Empty(t, s.types())
}

func TestBroadcastAllSkipsDeadConnections(t *testing.T) {
	h := NewHub(NewRegistry())

	_, full := admit(t, h, alice)
	_, closed := admit(t, h, bob)
	_, healthy := admit(t, h, carol)

	full.reset()
	full.capacity = 1
	require.NoError(t, full.TrySend([]byte(`{}`)))
	closed.Close(websocket.CloseNormalClosure, "")
	healthy.reset()

	n := h.BroadcastAll(NewRoomCreated(Room{ID: 3, Name: "general"}))
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{TypeRoomCreated}, healthy.types())
}

func TestPresenceOnAdmitAndLastRemove(t *testing.T) {
	h := NewHub(NewRegistry())
	_, watcher := admit(t, h, bob)

	tab1, _ := admit(t, h, alice)
	tab2, _ := admit(t, h, alice)
	watcher.reset()

	h.Remove(tab1.ID())
	assert.Zero(t, watcher.count(TypePresence))

	h.Remove(tab2.ID())
	require.Equal(t, 1, watcher.count(TypePresence))

	var ev PresenceEvent
	require.NoError(t, json.Unmarshal(watcher.frames[0], &ev))
	assert.Equal(t, PresenceEvent{Kind: Kind{TypePresence}, UserID: alice.ID, Login: "alice", Online: false}, ev)

	h.Remove(tab2.ID())
	assert.Equal(t, 1, watcher.count(TypePresence))
}

func TestAdmitAnnouncesOnline(t *testing.T) {
	h := NewHub(NewRegistry())
	_, watcher := admit(t, h, bob)
	watcher.reset()

	admit(t, h, alice)
	require.Len(t, watcher.frames, 1)
	assert.JSONEq(t, `{"type":"presence","userId":1,"login":"alice","online":true}`, string(watcher.frames[0]))
}

func lastPresence(t *testing.T, s *fakeSink, u user.ID) (online, seen bool) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.frames {
		var ev PresenceEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		if ev.Type == TypePresence && ev.UserID == u {
			online, seen = ev.Online, true
		}
	}
	return online, seen
}

func TestPresenceFollowsRegistryUnderConcurrentAdmitAndRemove(t *testing.T) {
	h := NewHub(NewRegistry())
	_, watcher := admit(t, h, bob)

	for i := 0; i < 2000; i++ {
		old, _ := admit(t, h, alice)
		watcher.reset()

		var wg sync.WaitGroup
		var fresh *Conn
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Remove(old.ID())
		}()
		go func() {
			defer wg.Done()
			c, err := h.Admit(newSink(), alice)
			assert.NoError(t, err)
			fresh = c
		}()
		wg.Wait()

		online, seen := lastPresence(t, watcher, alice.ID)
		require.True(t, seen, "iteration %d", i)
		require.Equal(t, h.Registry().IsOnline(alice.ID), online, "iteration %d", i)

		h.Remove(fresh.ID())
	}
}

func TestSendTo(t *testing.T) {
	h := NewHub(NewRegistry())
	c, s := admit(t, h, alice)
	s.reset()

	require.NoError(t, h.SendTo(c.ID(), NewPong()))
	assert.Equal(t, []string{TypePong}, s.types())
	assert.ErrorIs(t, h.SendTo("missing", NewPong()), ErrUnknownConn)

	s.Close(websocket.CloseNormalClosure, "")
	assert.ErrorIs(t, h.SendTo(c.ID(), NewPong()), ErrConnClosed)
}

func TestDisconnectUser(t *testing.T) {
	h := NewHub(NewRegistry())
	_, s1 := admit(t, h, alice)
	_, s2 := admit(t, h, alice)
	_, other := admit(t, h, bob)

	assert.Equal(t, 2, h.DisconnectUser(alice.ID, CloseCodeKicked, "banned"))
	for _, s := range []*fakeSink{s1, s2} {
		assert.True(t, s.closed)
		assert.Equal(t, CloseCodeKicked, s.closeCode)
		assert.Equal(t, "banned", s.closeReason)
	}
	assert.False(t, other.closed)
}

func TestShutdownClosesGoingAway(t *testing.T) {
	h := NewHub(NewRegistry())
	_, s1 := admit(t, h, alice)
	_, s2 := admit(t, h, bob)

	h.Shutdown()
	assert.Equal(t, websocket.CloseGoingAway, s1.closeCode)
	assert.Equal(t, websocket.CloseGoingAway, s2.closeCode)
}

func TestEventWireFormat(t *testing.T) {
	edited := time.Unix(1700000100, 0).UTC()
	msg := testMessage(5)
	msg.EditedAt = &edited

	cases := []struct {
		ev   Event
		want string
	}{
		{NewMessageDeleted(4), `{"type":"message_deleted","messageId":4}`},
		{NewMessagesDeleted(nil), `{"type":"messages_deleted","messageIds":[]}`},
		{NewTyping(2, "bob"), `{"type":"typing","userId":2,"login":"bob"}`},
		{NewRoomDeleted(5), `{"type":"room_deleted","roomId":5}`},
		{NewUserDeleted(2, "spam"), `{"type":"user_deleted","userId":2,"reason":"spam"}`},
		{NewUserVerified(2), `{"type":"user_verified","userId":2}`},
		{NewUserRejected(2, "no"), `{"type":"user_rejected","userId":2,"message":"no"}`},
		{NewPong(), `{"type":"pong"}`},
		{NewMessageUpdated(msg), `{"type":"message_updated","message":{"id":10,"roomId":5,"userId":1,"login":"alice","content":"hi","createdAt":"2023-11-14T22:13:20Z","editedAt":"2023-11-14T22:15:00Z"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.ev.EventType(), func(t *testing.T) {
			got, err := Encode(tc.ev)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(got))
		})
	}
}
