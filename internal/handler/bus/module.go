package bus

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"
)

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{}, logger)
}

// Module wires the stream consumers. Included only in distributed mode.
var Module = fx.Module("bus-handler",
	fx.Provide(
		NewHandler,
		NewWatermillRouter,
	),
	fx.Invoke(func(lc fx.Lifecycle, h *Handler, router *message.Router, sub message.Subscriber) {
		h.RegisterHandlers(router, sub)

		runCtx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := router.Run(runCtx); err != nil {
						h.logger.Error("bus router stopped", "error", err)
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				cancel()
				return router.Close()
			},
		})
	}),
)
