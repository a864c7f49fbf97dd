// Package bus consumes cross-instance envelopes from the shared stream and
// applies the ones addressed to connections owned by this instance.
package bus

import (
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/omnitalk/signaling-service/internal/adapter/pubsub"
	"github.com/omnitalk/signaling-service/internal/domain/model"
	"github.com/omnitalk/signaling-service/internal/domain/registry"
	"github.com/omnitalk/signaling-service/internal/matchmaker"
	"github.com/omnitalk/signaling-service/internal/relay"
)

type Handler struct {
	reg    *registry.Registry
	mm     *matchmaker.Matchmaker
	relay  *relay.Relay
	logger *slog.Logger
}

func NewHandler(reg *registry.Registry, mm *matchmaker.Matchmaker, rel *relay.Relay, logger *slog.Logger) *Handler {
	return &Handler{reg: reg, mm: mm, relay: rel, logger: logger}
}

// RegisterHandlers attaches the envelope consumers to the router. Handlers
// never return an error: delivery is best-effort, a failed or unroutable
// envelope is logged and acked, never retried.
func (h *Handler) RegisterHandlers(router *message.Router, sub message.Subscriber) {
	router.AddMiddleware(
		CorrelationMiddleware,
		LoggingMiddleware(h.logger),
		middleware.Recoverer,
	)

	router.AddNoPublisherHandler("on_relay", pubsub.TopicRelay, sub, h.OnRelay)
	router.AddNoPublisherHandler("on_match", pubsub.TopicMatch, sub, h.OnMatch)
}

// OnRelay delivers a signaling payload or a partner-left notice to a local
// destination. Envelopes for peers owned elsewhere are ignored; every
// instance sees every envelope and only the owner acts.
func (h *Handler) OnRelay(msg *message.Message) error {
	var env model.RelayEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		h.logger.Warn("dropping malformed relay envelope", "msg_id", msg.UUID, "error", err)
		return nil
	}

	if _, ok := h.reg.Lookup(env.Dest); !ok {
		if !h.reg.RecentlyDeparted(env.Dest) {
			h.logger.Debug("relay envelope for foreign destination", "dest", env.Dest)
		}
		return nil
	}

	if env.Kind == model.KindPartnerLeft {
		h.mm.AcceptRemoteRelease(msg.Context(), env)
		return nil
	}
	h.relay.Deliver(env)
	return nil
}

// OnMatch applies a cross-instance match notification to a local waiting
// connection.
func (h *Handler) OnMatch(msg *message.Message) error {
	var env model.MatchEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		h.logger.Warn("dropping malformed match envelope", "msg_id", msg.UUID, "error", err)
		return nil
	}

	if _, ok := h.reg.Lookup(env.Dest); !ok {
		return nil
	}
	if !h.mm.AcceptRemoteMatch(msg.Context(), env) {
		h.logger.Debug("match envelope for connection no longer available", "dest", env.Dest)
	}
	return nil
}
