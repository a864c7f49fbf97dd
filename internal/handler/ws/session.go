package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/omnitalk/signaling-service/internal/domain/model"
	"github.com/omnitalk/signaling-service/internal/domain/peer"
	"github.com/omnitalk/signaling-service/internal/domain/registry"
	"github.com/omnitalk/signaling-service/internal/matchmaker"
	"github.com/omnitalk/signaling-service/internal/ratelimit"
	"github.com/omnitalk/signaling-service/internal/relay"
)

// Sessions orchestrates the per-connection state machine:
// connect -> auth -> available -> matched -> relay -> next/leave/disconnect.
// Each rate-admitted inbound frame is dispatched by kind to exactly one
// operation; errors go back to the sender, the connection stays open.
type Sessions struct {
	reg         *registry.Registry
	mm          *matchmaker.Matchmaker
	relay       *relay.Relay
	limiter     *ratelimit.Limiter
	sendBuffer  int
	sendTimeout time.Duration
	logger      *slog.Logger
}

func NewSessions(reg *registry.Registry, mm *matchmaker.Matchmaker, rel *relay.Relay,
	limiter *ratelimit.Limiter, sendBuffer int, sendTimeout time.Duration, logger *slog.Logger) *Sessions {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	if sendTimeout <= 0 {
		sendTimeout = 500 * time.Millisecond
	}
	return &Sessions{
		reg:         reg,
		mm:          mm,
		relay:       rel,
		limiter:     limiter,
		sendBuffer:  sendBuffer,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Connect creates and registers a connection record and greets the client
// with its process-unique id.
func (s *Sessions) Connect(ctx context.Context) *peer.Peer {
	p := peer.New(ctx, s.sendBuffer)
	s.reg.Register(p)
	p.Send(model.NewReady(p.ID()), s.sendTimeout)
	s.logger.Info("connection opened", "conn_id", p.ID())
	return p
}

// Handle processes one raw inbound frame for the connection.
func (s *Sessions) Handle(ctx context.Context, p *peer.Peer, raw []byte) {
	if !s.limiter.Admit(p.ID()) {
		p.Send(model.NewError(model.CodeRateLimit, "message rate limit exceeded"), s.sendTimeout)
		return
	}

	in, err := model.DecodeInbound(raw)
	if err != nil {
		p.Send(model.NewError(model.CodeInvalidFormat, "malformed message"), s.sendTimeout)
		return
	}

	switch in.Kind {
	case model.KindAuth:
		// The label is informational only; nothing is verified.
		p.SetUserID(in.StringField("userId"))

	case model.KindAvailable:
		if err := s.mm.DeclareAvailable(ctx, p); err != nil {
			p.Send(model.NewError(model.CodeAlreadyPaired, "already in a session"), s.sendTimeout)
		}

	case model.KindOffer, model.KindAnswer, model.KindIce:
		if err := s.relay.Forward(ctx, p, in.Kind, in.Payload()); err != nil {
			p.Send(model.NewError(model.CodeNotPaired, "no active session"), s.sendTimeout)
		}

	case model.KindNext, model.KindLeave:
		// Both dissolve the pairing and leave the caller idle; next does
		// not re-enter the queue by itself, the client declares again.
		if err := s.mm.ReleasePartner(ctx, p); err != nil {
			p.Send(model.NewError(model.CodeNotPaired, "no active session"), s.sendTimeout)
		}

	case model.KindPing:
		p.Send(model.NewPong(), s.sendTimeout)

	default:
		p.Send(model.NewError(model.CodeUnknownType, "unknown message type: "+string(in.Kind)), s.sendTimeout)
	}
}

// Teardown runs the full close path: dissolve pairing, clean queues, remove
// the registry entry, close the mailbox, drop limiter state. Idempotent.
func (s *Sessions) Teardown(ctx context.Context, p *peer.Peer) {
	s.mm.Disconnect(ctx, p)
	s.limiter.Forget(p.ID())
	s.logger.Info("connection closed", "conn_id", p.ID())
}

// Evict implements liveness.Evictor; an unresponsive connection is treated
// identically to an abrupt disconnect.
func (s *Sessions) Evict(ctx context.Context, p *peer.Peer) {
	s.Teardown(ctx, p)
}
