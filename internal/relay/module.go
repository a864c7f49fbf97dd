package relay

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/omnitalk/signaling-service/config"
	"github.com/omnitalk/signaling-service/internal/adapter/pubsub"
	"github.com/omnitalk/signaling-service/internal/domain/registry"
)

type Params struct {
	fx.In

	Registry *registry.Registry
	Config   *config.Config
	Logger   *slog.Logger
	Bus      *pubsub.Dispatcher `optional:"true"`
}

func NewFromParams(p Params) *Relay {
	var bus Publisher
	if p.Bus != nil {
		bus = p.Bus
	}
	return New(p.Registry, bus, p.Config.SendTimeout, p.Logger)
}

var Module = fx.Module("relay",
	fx.Provide(NewFromParams),
)
