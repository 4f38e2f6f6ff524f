/*
Command roomtail connects to a roomchat server, optionally joins a room, and prints
every inbound frame as one JSON line on stdout. It exits when the server ends the
session for good or on SIGINT.

	roomtail -url ws://localhost:8080/ws -cookie 'roomchat_session=...' -room 5
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomchat/internal/app/chat"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/wsclient"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
		cookie    = flag.String("cookie", "", "session cookie, name=value")
		origin    = flag.String("origin", "", "Origin header to send")
		room      = flag.Int64("room", 0, "room to join; 0 joins none")
		heartbeat = flag.Duration("heartbeat", wsclient.DefaultHeartbeatInterval, "ping interval")
		baseDelay = flag.Duration("backoff-base", wsclient.DefaultBaseDelay, "first reconnect delay")
		maxDelay  = flag.Duration("backoff-max", wsclient.DefaultMaxDelay, "reconnect delay cap")
		attempts  = flag.Int("attempts", wsclient.DefaultMaxAttempts, "reconnects before giving up")
		logLevel  = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	logx.InitGlobalLogger(logx.Options{Level: *logLevel, Format: "console", Out: os.Stderr})

	header := http.Header{}
	if *cookie != "" {
		header.Set("Cookie", *cookie)
	}
	if *origin != "" {
		header.Set("Origin", *origin)
	}

	ctl, err := wsclient.New(wsclient.Options{
		URL:               *url,
		Header:            header,
		HeartbeatInterval: *heartbeat,
		BaseDelay:         *baseDelay,
		MaxDelay:          *maxDelay,
		MaxAttempts:       *attempts,
		WriteWait:         10 * time.Second,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomtail: %v\n", err)
		os.Exit(2)
	}

	rooms := wsclient.NewRoomSession(ctl)
	if *room != 0 {
		_ = rooms.Join(chat.RoomID(*room))
	}

	ctl.OnOpen(func() { logx.Info("Connected", "url", *url) })
	ctl.Subscribe(func(f wsclient.Frame) {
		fmt.Fprintln(os.Stdout, string(f.Data))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctl.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "roomtail: %v\n", err)
		os.Exit(1)
	}
	<-ctl.Done()

	switch err := ctl.Err(); {
	case err == nil:
	case errors.Is(err, wsclient.ErrUnauthorized):
		fmt.Fprintln(os.Stderr, "roomtail: session rejected, log in again")
		os.Exit(3)
	case errors.Is(err, wsclient.ErrKicked):
		fmt.Fprintln(os.Stderr, "roomtail: removed by a moderator")
		os.Exit(4)
	default:
		fmt.Fprintf(os.Stderr, "roomtail: %v\n", err)
		os.Exit(1)
	}
}
