/*
Package wsclient is the client side of the realtime socket.

A Controller owns one shared connection: it dials, sends a heartbeat ping while open,
reconnects with capped exponential backoff, and fans every inbound frame out to
subscribers. Room membership does not survive a reconnect, so callers replay it
through OnOpen hooks; RoomSession does that for the join intent.
*/
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"roomchat/internal/app/chat"
	"roomchat/internal/pkg/logx"
)

var (
	// ErrReconnectExhausted means every reconnect attempt failed. The application should
	// tell the user the connection is lost and a reload is needed.
	ErrReconnectExhausted = errors.New("connection lost, reload")

	// ErrUnauthorized means the server refused the session (close 1008).
	ErrUnauthorized = errors.New("session unauthorized")

	// ErrKicked means the server removed this user (close 4001).
	ErrKicked = errors.New("session kicked")

	// ErrNotOpen is returned by Send while no socket is open.
	ErrNotOpen = errors.New("connection not open")

	// ErrAlreadyStarted is returned by a second Connect.
	ErrAlreadyStarted = errors.New("controller already started")
)

// State is the connection lifecycle state.
type State int

const (
	// StateDisconnected: no socket, either waiting out a backoff or stopped.
	StateDisconnected State = iota
	// StateConnecting: a dial is in flight.
	StateConnecting
	// StateOpen: the socket is up and frames flow.
	StateOpen
	// StateClosing: Close was called; no reconnect follows.
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Frame is one inbound message. Data holds the raw JSON.
type Frame struct {
	Type string
	Data []byte
}

// Decode unmarshals the frame into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Data, v)
}

// Handler receives inbound frames on the controller's read goroutine.
type Handler func(Frame)

type entry[T any] struct {
	fn      T
	removed atomic.Bool
}

// Controller manages the shared connection.
type Controller struct {
	opts   Options
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	started  bool
	closing  bool
	finished bool
	handlers []*entry[Handler]
	onOpen   []*entry[func()]
	onTerm   []func(error)
	err      error

	writeMu sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New returns an idle Controller. Call Connect to start it.
func New(opts Options) (*Controller, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	logger := logx.Component("wsclient")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Controller{
		opts:   opts,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Connect starts the connection loop in the background. It returns immediately;
// watch State, OnOpen or Done for progress.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	go c.run(ctx)
	return nil
}

// Close ends the connection with 1000 and suppresses reconnect. It does not wait;
// use Done for that.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	started := c.started
	if conn != nil {
		c.state = StateClosing
	}
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteWait))
		c.writeMu.Unlock()
		_ = conn.Close()
	}

	if !started {
		c.finish(nil)
	}
}

// Send marshals v and writes it as one text frame.
func (c *Controller) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if conn == nil || !open {
		return ErrNotOpen
	}
	return c.write(conn, data)
}

// Subscribe registers h. The returned func removes it and may be called at any
// time, including from inside a handler.
func (c *Controller) Subscribe(h Handler) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[Handler]{fn: h}
	c.handlers = appendCOW(c.handlers, e)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		e.removed.Store(true)
		c.handlers = removeCOW(c.handlers, e)
	}
}

// OnOpen registers fn to run after every successful (re)connect, before any frame is read.
func (c *Controller) OnOpen(fn func()) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[func()]{fn: fn}
	c.onOpen = appendCOW(c.onOpen, e)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		e.removed.Store(true)
		c.onOpen = removeCOW(c.onOpen, e)
	}
}

// OnTerminal registers fn to run once if the controller stops with an error.
func (c *Controller) OnTerminal(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTerm = append(c.onTerm, fn)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the controller has stopped for good.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err is the terminal error, nil after a clean stop or while still running.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) run(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	retries := 0
	for {
		if c.stopping(ctx) {
			c.finish(nil)
			return
		}

		conn, err := c.dial(ctx)
		if err == nil {
			retries = 0
			code := c.serve(conn)
			if stop, terminal := c.classify(ctx, code); stop {
				c.finish(terminal)
				return
			}
		} else {
			c.logger.Debug().Err(err).Int("attempt", retries).Msg("Dial failed")
		}

		if c.stopping(ctx) {
			c.finish(nil)
			return
		}
		if retries >= c.opts.MaxAttempts {
			c.logger.Warn().Int("attempts", retries).Msg("Giving up reconnecting")
			c.finish(fmt.Errorf("%w: gave up after %d attempts", ErrReconnectExhausted, retries))
			return
		}

		// retries counts reconnects started, so the Nth "Reconnecting" line carries attempt N.
		retries++
		delay := c.opts.Backoff(retries - 1)
		c.logger.Info().
			Dur("delay", delay).
			Int("attempt", retries).
			Int("max_attempts", c.opts.MaxAttempts).
			Msg("Reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.stop:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
		}
	}
}

// classify decides whether a close code ends the controller.
func (c *Controller) classify(ctx context.Context, code int) (stop bool, terminal error) {
	if c.stopping(ctx) {
		return true, nil
	}
	switch code {
	case websocket.CloseNormalClosure:
		return true, nil
	case websocket.ClosePolicyViolation:
		return true, ErrUnauthorized
	case chat.CloseCodeKicked:
		return true, ErrKicked
	}
	c.logger.Warn().Int("code", code).Msg("Connection lost")
	return false, nil
}

func (c *Controller) dial(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	prev := c.conn
	c.conn = nil
	c.state = StateConnecting
	c.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		c.setState(StateDisconnected)
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = conn.Close()
		return nil, ErrNotOpen
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()
	return conn, nil
}

// serve runs one open connection to completion and returns its close code.
func (c *Controller) serve(conn *websocket.Conn) int {
	c.logger.Info().Str("url", c.opts.URL).Msg("Connected")

	c.mu.Lock()
	hooks := c.onOpen
	c.mu.Unlock()
	for _, h := range hooks {
		if !h.removed.Load() {
			h.fn()
		}
	}

	beatDone := make(chan struct{})
	go c.heartbeat(conn, beatDone)

	code := websocket.CloseAbnormalClosure
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			break
		}
		c.dispatch(data)
	}

	close(beatDone)
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	if c.state != StateClosing {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	return code
}

func (c *Controller) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	ping := []byte(`{"type":"` + chat.IntentPing + `"}`)
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(conn, ping); err != nil {
				c.logger.Debug().Err(err).Msg("Heartbeat failed")
				return
			}
		}
	}
}

func (c *Controller) dispatch(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		c.logger.Debug().Err(err).Msg("Dropping unparseable frame")
		return
	}
	if head.Type == chat.TypePong {
		return
	}

	frame := Frame{Type: head.Type, Data: data}

	c.mu.Lock()
	handlers := c.handlers
	c.mu.Unlock()

	for _, h := range handlers {
		if h.removed.Load() {
			continue
		}
		h.fn(frame)
	}
}

func (c *Controller) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Controller) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosing {
		c.state = s
	}
}

func (c *Controller) finish(err error) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.state = StateDisconnected
	c.err = err
	hooks := c.onTerm
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Msg("Connection controller stopped")
		for _, fn := range hooks {
			fn(err)
		}
	}
	close(c.done)
}

// appendCOW and removeCOW never mutate the backing array of s, so a snapshot
// taken before the call stays valid.
func appendCOW[T any](s []*entry[T], e *entry[T]) []*entry[T] {
	out := make([]*entry[T], 0, len(s)+1)
	out = append(out, s...)
	return append(out, e)
}

func removeCOW[T any](s []*entry[T], e *entry[T]) []*entry[T] {
	out := make([]*entry[T], 0, len(s))
	for _, x := range s {
		if x != e {
			out = append(out, x)
		}
	}
	return out
}
