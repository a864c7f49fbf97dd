// Package relay forwards opaque signaling payloads from a connection to its
// recorded partner. It never mutates pairing state.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/omnitalk/signaling-service/internal/domain/model"
	"github.com/omnitalk/signaling-service/internal/domain/peer"
	"github.com/omnitalk/signaling-service/internal/domain/registry"
)

// Publisher is the bus-side escape hatch for partners owned by another
// instance. Nil in local mode.
type Publisher interface {
	PublishRelay(ctx context.Context, env model.RelayEnvelope) error
}

type Relay struct {
	reg         *registry.Registry
	bus         Publisher
	sendTimeout time.Duration
	logger      *slog.Logger
}

func New(reg *registry.Registry, bus Publisher, sendTimeout time.Duration, logger *slog.Logger) *Relay {
	if sendTimeout <= 0 {
		sendTimeout = 500 * time.Millisecond
	}
	return &Relay{reg: reg, bus: bus, sendTimeout: sendTimeout, logger: logger}
}

// Forward routes one in-session payload to the sender's partner: direct
// delivery when the partner is local, a bus envelope when it is not, and a
// silent drop when neither applies. The drop is deliberate best-effort; the
// sender is not told.
func (r *Relay) Forward(ctx context.Context, sender *peer.Peer, kind model.Kind, payload map[string]json.RawMessage) error {
	partnerID, _, ok := sender.Partner()
	if !ok {
		return model.ErrNotPaired
	}

	if partner, found := r.reg.Lookup(partnerID); found {
		partner.Send(model.NewSignal(kind, sender.ID(), payload), r.sendTimeout)
		return nil
	}

	if r.bus != nil {
		err := r.bus.PublishRelay(ctx, model.RelayEnvelope{
			Dest:    partnerID,
			From:    sender.ID(),
			Kind:    kind,
			Payload: payload,
		})
		if err != nil {
			r.logger.Warn("relay publish failed", "dest", partnerID, "error", err)
		}
		return nil
	}

	r.logger.Debug("dropping relay for unreachable partner",
		"sender", sender.ID(), "partner", partnerID)
	return nil
}

// Deliver performs the local leg of a bus relay envelope. Returns false when
// the destination is not registered here.
func (r *Relay) Deliver(env model.RelayEnvelope) bool {
	dest, found := r.reg.Lookup(env.Dest)
	if !found {
		return false
	}
	dest.Send(model.NewSignal(env.Kind, env.From, env.Payload), r.sendTimeout)
	return true
}
