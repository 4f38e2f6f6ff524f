/*
Package main is the entry point for the roomchat realtime server.

It loads layered configuration, initializes the global logger, opens the session store,
builds the hub and HTTP routes, and runs everything under a supervisor tree until
SIGINT or SIGTERM arrives.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"roomchat/internal/app/chat"
	"roomchat/internal/app/db"
	"roomchat/internal/app/session"
	"roomchat/internal/app/store"
	"roomchat/internal/app/supervisor"
	"roomchat/internal/app/user"
	"roomchat/internal/configs"
	"roomchat/internal/handler"
	"roomchat/internal/pkg/auth/cookie"
	"roomchat/internal/pkg/limiter"
	"roomchat/internal/pkg/logx"
)

const janitorInterval = 10 * time.Minute

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(logx.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logx.Logger().Info().
		Str("environment", cfg.Server.Environment).
		Str("addr", cfg.Addr()).
		Str("session_store", cfg.Session.Store).
		Strs("allowed_origins", cfg.Server.AllowedOrigins).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open session store")
	}
	defer closeStore()

	if cfg.IsDevelopment() && cfg.Session.Store == configs.StoreMemory {
		seedDevSession(ctx, cfg, st)
	}

	hub := chat.NewHub(chat.NewRegistry())
	upgrades := limiter.NewIPRateLimiter("ws-upgrade", rate.Limit(cfg.Server.UpgradeRate), cfg.Server.UpgradeBurst)

	deps := &handler.AppDeps{
		Config:         cfg,
		Hub:            hub,
		Router:         chat.NewRouter(hub, cfg.Realtime.TypingRate, cfg.Realtime.TypingBurst),
		Resolver:       session.NewResolver(cfg.Session.CookieName, cfg.Session.Secret, st, st),
		UpgradeLimiter: upgrades,
		Pump:           chat.PumpConfigFrom(cfg.Realtime),
	}

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     handler.Router(deps),
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout * 2})
	tree.AddRealtimeService(supervisor.NewHubService(hub))
	tree.AddRealtimeService(upgrades)
	tree.AddRealtimeService(store.NewJanitor(st, janitorInterval))
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logx.Info(fmt.Sprintf("roomchat server starting on %s", cfg.Addr()))

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logx.Fatal(err, "Supervisor tree stopped unexpectedly")
	}

	logx.Info("Server gracefully stopped.")
}

// openStore returns the configured session store and a function releasing it.
func openStore(ctx context.Context, cfg *configs.Config) (store.Store, func(), error) {
	switch cfg.Session.Store {
	case configs.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgres(pool), pool.Close, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}

// seedDevSession creates a throwaway admin with a live session and logs its cookie,
// so a local client can connect without a login service.
func seedDevSession(ctx context.Context, cfg *configs.Config, st store.Store) {
	u, err := st.CreateUser(ctx, "dev", user.RoleAdmin)
	if err != nil {
		logx.Error(err, "Failed to seed development user")
		return
	}
	sess, err := st.CreateSession(ctx, u.ID, cfg.Session.TTL)
	if err != nil {
		logx.Error(err, "Failed to seed development session")
		return
	}
	value, err := cookie.Issue(sess.ID, cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		logx.Error(err, "Failed to sign development session cookie")
		return
	}
	logx.Logger().Warn().
		Str("cookie", cfg.Session.CookieName+"="+value).
		Int64("user_id", int64(u.ID)).
		Msg("Development session seeded; pass this cookie to roomtail")
}
