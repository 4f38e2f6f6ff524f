package wsclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Options configures a Controller. Zero values take the defaults below.
type Options struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// Header is sent with every handshake. Put the session cookie here.
	Header http.Header

	// Dialer defaults to a copy of websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// HeartbeatInterval is how often a ping intent is sent while open.
	HeartbeatInterval time.Duration

	// BaseDelay and MaxDelay bound the reconnect backoff.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// MaxAttempts is the number of consecutive reconnects tried before giving up.
	MaxAttempts int

	// WriteWait bounds each frame write, heartbeat included.
	WriteWait time.Duration

	Logger *zerolog.Logger
}

// Defaults applied to zero Options fields.
const (
	DefaultHeartbeatInterval = 25 * time.Second
	DefaultBaseDelay         = time.Second
	DefaultMaxDelay          = 30 * time.Second
	DefaultMaxAttempts       = 10
	DefaultWriteWait         = 10 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Dialer == nil {
		d := *websocket.DefaultDialer
		o.Dialer = &d
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultWriteWait
	}
	return o
}

// Validate reports option combinations that cannot work.
func (o Options) Validate() error {
	if o.URL == "" {
		return errors.New("wsclient: URL is required")
	}
	if o.BaseDelay > 0 && o.MaxDelay > 0 && o.MaxDelay < o.BaseDelay {
		return fmt.Errorf("wsclient: max delay %s is below base delay %s", o.MaxDelay, o.BaseDelay)
	}
	if o.MaxAttempts < 0 {
		return fmt.Errorf("wsclient: max attempts must not be negative, got %d", o.MaxAttempts)
	}
	return nil
}

// Backoff returns the delay before reconnect number attempt (zero based):
// BaseDelay doubled attempt times, capped at MaxDelay.
func (o Options) Backoff(attempt int) time.Duration {
	o = o.withDefaults()
	if attempt < 0 {
		attempt = 0
	}
	d := o.BaseDelay
	for i := 0; i < attempt; i++ {
		if d >= o.MaxDelay/2 {
			return o.MaxDelay
		}
		d *= 2
	}
	return min(d, o.MaxDelay)
}
