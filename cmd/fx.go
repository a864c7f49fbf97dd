package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/omnitalk/signaling-service/config"
	httpserver "github.com/omnitalk/signaling-service/infra/server/http"
	"github.com/omnitalk/signaling-service/internal/adapter/pubsub"
	"github.com/omnitalk/signaling-service/internal/domain/registry"
	bushandler "github.com/omnitalk/signaling-service/internal/handler/bus"
	wshandler "github.com/omnitalk/signaling-service/internal/handler/ws"
	"github.com/omnitalk/signaling-service/internal/liveness"
	"github.com/omnitalk/signaling-service/internal/matchmaker"
	"github.com/omnitalk/signaling-service/internal/matchqueue"
	"github.com/omnitalk/signaling-service/internal/relay"
)

func NewApp(cfg *config.Config) *fx.App {
	opts := []fx.Option{
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
		),
		registry.Module,
		matchmaker.Module,
		relay.Module,
		wshandler.Module,
		httpserver.Module,
		livenessModule,
	}

	if cfg.Distributed {
		opts = append(opts, distributedModule)
	} else {
		opts = append(opts, localModule)
	}

	return fx.New(opts...)
}

func ProvideLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}

// localModule: single-instance deployment, in-process waiting queue, no bus.
var localModule = fx.Module("local-mode",
	fx.Provide(
		fx.Annotate(matchqueue.NewLocalQueue, fx.As(new(matchqueue.Queue))),
	),
)

// distributedModule: shared Redis waiting queue plus the cross-instance
// envelope stream, consumed by the bus handler.
var distributedModule = fx.Module("distributed-mode",
	fx.Provide(
		func(cfg *config.Config) redis.UniversalClient {
			return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		},
		fx.Annotate(
			func(rdb redis.UniversalClient, cfg *config.Config, logger *slog.Logger) *matchqueue.RedisQueue {
				return matchqueue.NewRedisQueue(rdb, cfg.QueueKey, logger)
			},
			fx.As(new(matchqueue.Queue)),
		),
		pubsub.NewRedisPublisher,
		func(lc fx.Lifecycle, rdb redis.UniversalClient, wlog watermill.LoggerAdapter,
			logger *slog.Logger) (message.Subscriber, error) {
			instanceID := uuid.NewString()[:8]
			sub, err := pubsub.NewRedisSubscriber(rdb, instanceID, wlog)
			if err != nil {
				return nil, err
			}
			// Drop the per-instance groups on shutdown so restarts do not
			// accumulate dead groups and their pending lists on the streams.
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					if err := pubsub.DestroyGroups(ctx, rdb, instanceID); err != nil {
						logger.Warn("consumer group cleanup failed", "error", err)
					}
					return nil
				},
			})
			return sub, nil
		},
		pubsub.NewDispatcher,
	),
	bushandler.Module,
)

var livenessModule = fx.Module("liveness",
	fx.Provide(
		func(reg *registry.Registry, sessions *wshandler.Sessions, cfg *config.Config,
			logger *slog.Logger) *liveness.Monitor {
			return liveness.NewMonitor(reg, sessions, cfg.HeartbeatPeriod, logger)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, m *liveness.Monitor) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error { m.Start(); return nil },
			OnStop:  func(context.Context) error { m.Stop(); return nil },
		})
	}),
)
