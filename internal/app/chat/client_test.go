package chat

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPump = PumpConfig{
	SendBuffer:     8,
	MaxMessageSize: 512,
	WriteWait:      time.Second,
	PongWait:       5 * time.Second,
	PingPeriod:     4 * time.Second,
}

// serveClients upgrades every request, hands the Client to setup and runs both pumps.
func serveClients(t *testing.T, setup func(*Client) func([]byte)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(conn, testPump)
		handle := setup(c)
		go c.WritePump()
		c.ReadPump(handle)
		c.Close(websocket.CloseNormalClosure, "")
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestTrySendBufferFullAndClosed(t *testing.T) {
	cfg := testPump
	cfg.SendBuffer = 1
	c := NewClient(nil, cfg)

	require.NoError(t, c.TrySend([]byte("a")))
	assert.ErrorIs(t, c.TrySend([]byte("b")), ErrSendBufferFull)

	c.Close(websocket.CloseNormalClosure, "")
	c.Close(websocket.CloseGoingAway, "ignored")
	assert.ErrorIs(t, c.TrySend([]byte("c")), ErrConnClosed)
	assert.Equal(t, websocket.CloseNormalClosure, c.closeCode)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestCloseFlushesQueuedFramesBeforeCloseFrame(t *testing.T) {
	url := serveClients(t, func(c *Client) func([]byte) {
		return func(frame []byte) {
			_ = c.TrySend([]byte(`{"type":"user_deleted","userId":1,"reason":"spam"}`))
			c.Close(CloseCodeKicked, "removed")
		}
	})

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"user_deleted","userId":1,"reason":"spam"}`, string(frame))

	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CloseCodeKicked, ce.Code)
	assert.Equal(t, "removed", ce.Text)
}

func TestHandlerPanicEndsOnlyThatConnection(t *testing.T) {
	url := serveClients(t, func(c *Client) func([]byte) {
		return func(frame []byte) {
			if string(frame) == "boom" {
				panic("handler exploded")
			}
			_ = c.TrySend(frame)
		}
	})

	victim := dial(t, url)
	bystander := dial(t, url)

	require.NoError(t, victim.WriteMessage(websocket.TextMessage, []byte("boom")))
	_ = victim.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := victim.ReadMessage()
	require.Error(t, err)

	require.NoError(t, bystander.WriteMessage(websocket.TextMessage, []byte("echo")))
	_ = bystander.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := bystander.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "echo", string(frame))
}

func TestOversizedFrameEndsRead(t *testing.T) {
	url := serveClients(t, func(c *Client) func([]byte) {
		return func([]byte) {}
	})

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 2048))))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseMessageTooBig, ce.Code)
}
