/*
Package handler wires the HTTP surface: the realtime upgrade endpoint, health and metrics.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"roomchat/internal/metrics"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/resp"
)

// Router builds the chi router with CORS, request ids, real IPs, request logging and panic recovery.
func Router(deps *AppDeps) http.Handler {
	r := chi.NewRouter()

	cfg := deps.Config.Server

	corsOrigins := cfg.AllowedOrigins
	if deps.Config.IsDevelopment() {
		corsOrigins = []string{"*"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger("/health", "/metrics"))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		reg := deps.Hub.Registry()
		resp.RespondSuccess(w, r, map[string]any{
			"status":      "ok",
			"service":     "roomchat",
			"connections": reg.Count(),
			"onlineUsers": reg.UserCount(),
		})
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	countRejected := func(*http.Request) {
		metrics.Admissions.WithLabelValues(metrics.AdmitRateLimited).Inc()
	}
	r.With(deps.UpgradeLimiter.Middleware(countRejected)).
		Get("/ws", HandleWebSocket(deps, newUpgrader(deps)))

	return r
}

func newUpgrader(deps *AppDeps) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(deps.Config.Server.AllowedOrigins))
	for _, origin := range deps.Config.Server.AllowedOrigins {
		allowed[origin] = struct{}{}
	}
	dev := deps.Config.IsDevelopment()

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if dev {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			if status == http.StatusForbidden {
				origin := r.Header.Get("Origin")
				logx.Warn("WebSocket connection rejected: origin not allowed", "origin", origin)
				resp.RespondError(w, r, errs.NewError(errs.ErrOriginNotAllowed, origin))
				return
			}
			logx.Warn("WebSocket handshake failed", "status", status, "reason", reason.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
		},
	}
}
