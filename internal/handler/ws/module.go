package ws

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/omnitalk/signaling-service/config"
	"github.com/omnitalk/signaling-service/internal/domain/registry"
	"github.com/omnitalk/signaling-service/internal/matchmaker"
	"github.com/omnitalk/signaling-service/internal/origin"
	"github.com/omnitalk/signaling-service/internal/ratelimit"
	"github.com/omnitalk/signaling-service/internal/relay"
)

var Module = fx.Module("ws-handler",
	fx.Provide(
		func(cfg *config.Config) *ratelimit.Limiter {
			return ratelimit.NewLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
		},
		func(cfg *config.Config) *origin.Allowlist {
			return origin.NewAllowlist(cfg.AllowedOrigins)
		},
		func(reg *registry.Registry, mm *matchmaker.Matchmaker, rel *relay.Relay,
			limiter *ratelimit.Limiter, cfg *config.Config, logger *slog.Logger) *Sessions {
			return NewSessions(reg, mm, rel, limiter, cfg.SendBuffer, cfg.SendTimeout, logger)
		},
		NewWSHandler,
	),
)
