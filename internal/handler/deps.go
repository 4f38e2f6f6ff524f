package handler

import (
	"context"
	"net/http"

	"roomchat/internal/app/chat"
	"roomchat/internal/app/user"
	"roomchat/internal/configs"
	"roomchat/internal/pkg/limiter"
)

// SessionResolver maps an upgrade request to the user owning its session cookie.
type SessionResolver interface {
	Resolve(ctx context.Context, r *http.Request) (user.User, error)
}

// AppDeps carries everything the HTTP layer needs.
type AppDeps struct {
	Config         *configs.Config
	Hub            *chat.Hub
	Router         *chat.Router
	Resolver       SessionResolver
	UpgradeLimiter *limiter.IPRateLimiter
	Pump           chat.PumpConfig
}
