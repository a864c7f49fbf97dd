package matchmaker

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/omnitalk/signaling-service/config"
	"github.com/omnitalk/signaling-service/internal/adapter/pubsub"
	"github.com/omnitalk/signaling-service/internal/domain/registry"
	"github.com/omnitalk/signaling-service/internal/matchqueue"
)

// Params assembles the matchmaker; the bus dispatcher is present only in
// distributed mode.
type Params struct {
	fx.In

	Registry *registry.Registry
	Queue    matchqueue.Queue
	Config   *config.Config
	Logger   *slog.Logger
	Bus      *pubsub.Dispatcher `optional:"true"`
}

func NewFromParams(p Params) *Matchmaker {
	var bus BusPublisher
	if p.Bus != nil {
		bus = p.Bus
	}
	return New(p.Registry, p.Queue, bus, Options{
		Distributed: p.Config.Distributed,
		Requeue:     p.Config.RequeueOnPartnerLoss,
		SendTimeout: p.Config.SendTimeout,
	}, p.Logger)
}

var Module = fx.Module("matchmaker",
	fx.Provide(NewFromParams),
)
