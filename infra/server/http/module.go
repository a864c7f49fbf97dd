package http

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/omnitalk/signaling-service/config"
	"github.com/omnitalk/signaling-service/internal/domain/registry"
	wshandler "github.com/omnitalk/signaling-service/internal/handler/ws"
	"github.com/omnitalk/signaling-service/internal/matchqueue"
)

var Module = fx.Module("http-server",
	fx.Provide(
		func(cfg *config.Config, wsh *wshandler.WSHandler, reg *registry.Registry,
			queue matchqueue.Queue, logger *slog.Logger) *Server {
			return NewServer(cfg.Listen, wsh, reg, queue, logger)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Server) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error { return s.Start() },
			OnStop:  func(ctx context.Context) error { return s.Stop(ctx) },
		})
	}),
)
