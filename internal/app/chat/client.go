/*
Package chat is the realtime core: the connection registry, the per-connection
pumps, the inbound protocol router and the broadcast hub.

This file defines the Client, the gorilla websocket behind a registered Sink, with
its read and write pumps and the close codes the server sends.
*/
package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"roomchat/internal/configs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/randx"
)

// Close codes and reasons sent by the server.
const (
	// CloseCodeKicked tells the client a moderator ended its session. Clients must not reconnect.
	CloseCodeKicked = 4001

	// ReasonUnauthorized accompanies 1008 when the session cannot be resolved.
	ReasonUnauthorized = "unauthorized"
	ReasonInternal     = "internal error"
	ReasonShutdown     = "server shutting down"
)

// PumpConfig tunes the read and write loops of a Client.
type PumpConfig struct {
	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

// PumpConfigFrom copies the realtime section of the application config.
func PumpConfigFrom(rc configs.RealtimeConfig) PumpConfig {
	return PumpConfig{
		SendBuffer:     rc.SendBuffer,
		MaxMessageSize: rc.MaxMessageSize,
		WriteWait:      rc.WriteWait,
		PongWait:       rc.PongWait,
		PingPeriod:     rc.PingPeriod,
	}
}

// Client owns one websocket: a buffered send queue drained by WritePump and the
// read loop in ReadPump. It implements Sink.
type Client struct {
	id   ConnID
	conn *websocket.Conn
	cfg  PumpConfig

	send chan []byte

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
	quit        chan struct{}

	logger zerolog.Logger
}

// NewClient wraps an upgraded connection with a fresh connection id.
func NewClient(conn *websocket.Conn, cfg PumpConfig) *Client {
	id := ConnID(randx.ConnID())

	return &Client{
		id:     id,
		conn:   conn,
		cfg:    cfg,
		send:   make(chan []byte, cfg.SendBuffer),
		quit:   make(chan struct{}),
		logger: logx.Logger().With().Str("component", "client").Str("conn_id", string(id)).Logger(),
	}
}

// ID implements Sink.
func (c *Client) ID() ConnID { return c.id }

// TrySend queues frame without blocking.
func (c *Client) TrySend(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the client. WritePump flushes what is already queued, sends a close
// frame carrying code and reason, and closes the socket. Later calls are no-ops.
func (c *Client) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.closeCode, c.closeReason = code, reason
	close(c.quit)
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.quit
}

// ReadPump reads frames and hands each one to handle until the socket fails or closes.
// A panic in handle ends this connection only.
func (c *Client) ReadPump(handle func(frame []byte)) {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		msgType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection read ended unexpectedly")
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		if err := c.dispatch(handle, frame); err != nil {
			c.logger.Error().Err(err).Msg("Frame handler panicked, dropping connection")
			return
		}
	}
}

func (c *Client) dispatch(handle func([]byte), frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	handle(frame)
	return nil
}

// WritePump drains the send queue to the socket and pings on PingPeriod.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)

	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.quit:
			c.flush()
			c.writeClose()
			return
		}
	}
}

// flush writes whatever was queued before Close.
func (c *Client) flush() {
	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) writeClose() {
	c.mu.Lock()
	code, reason := c.closeCode, c.closeReason
	c.mu.Unlock()

	if code == websocket.CloseAbnormalClosure {
		return
	}

	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait)); err != nil {
		c.logger.Debug().Err(err).Int("close_code", code).Msg("Failed to send close frame")
	}
}

func (c *Client) write(msgType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(msgType, data); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing frame")
		return false
	}
	return true
}

// Refuse sends a close frame with code and reason on a freshly upgraded socket and closes it.
func Refuse(conn *websocket.Conn, code int, reason string, writeWait time.Duration) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}
