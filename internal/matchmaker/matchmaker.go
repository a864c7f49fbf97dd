// Package matchmaker pairs available connections FIFO-style and tears the
// pairings down again.
//
// Every pairing/unpairing transition runs under one mutex, so the two-record
// update is atomic to any concurrent observer: there is no window where
// partner state is set on one side only. Relay and transport code never
// mutate pairing state; all registry and waiting-queue writes funnel through
// this package.
package matchmaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnitalk/signaling-service/internal/domain/model"
	"github.com/omnitalk/signaling-service/internal/domain/peer"
	"github.com/omnitalk/signaling-service/internal/domain/registry"
	"github.com/omnitalk/signaling-service/internal/matchqueue"
)

// maxSelfPops bounds the retry loop when the distributed queue keeps handing
// back our own id. Prevents livelock; on exhaustion the id is re-enqueued so
// the client is guaranteed to be waiting afterwards.
const maxSelfPops = 3

// BusPublisher publishes cross-instance notifications. Nil in local mode.
type BusPublisher interface {
	PublishMatch(ctx context.Context, env model.MatchEnvelope) error
	PublishRelay(ctx context.Context, env model.RelayEnvelope) error
}

type Matchmaker struct {
	mu sync.Mutex

	reg   *registry.Registry
	queue matchqueue.Queue
	bus   BusPublisher

	distributed bool
	requeue     bool
	sendTimeout time.Duration
	logger      *slog.Logger
}

type Options struct {
	// Distributed makes the queue authoritative across instances and
	// enables bus notifications for remote candidates.
	Distributed bool
	// Requeue re-enters an abandoned partner at the queue tail.
	Requeue     bool
	SendTimeout time.Duration
}

func New(reg *registry.Registry, queue matchqueue.Queue, bus BusPublisher, opts Options, logger *slog.Logger) *Matchmaker {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 500 * time.Millisecond
	}
	return &Matchmaker{
		reg:         reg,
		queue:       queue,
		bus:         bus,
		distributed: opts.Distributed,
		requeue:     opts.Requeue,
		sendTimeout: opts.SendTimeout,
		logger:      logger,
	}
}

// DeclareAvailable moves the connection into the waiting state and tries to
// find it a partner. Fails with ErrAlreadyPaired, without any state change,
// while the connection is matched.
func (m *Matchmaker) DeclareAvailable(ctx context.Context, p *peer.Peer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.Status() == peer.StatusMatched {
		return model.ErrAlreadyPaired
	}
	p.BecomeAvailable()

	if m.distributed {
		return m.matchDistributed(ctx, p)
	}
	return m.matchLocal(ctx, p)
}

// matchLocal pops candidates until one resolves to another available local
// connection. Stale entries (disconnected or no longer available) are
// consumed and dropped; an accidental own entry from an earlier declaration
// is discarded the same way since the id is re-pushed when no match is found.
func (m *Matchmaker) matchLocal(ctx context.Context, p *peer.Peer) error {
	for {
		id, ok, err := m.queue.Pop(ctx)
		if err != nil || !ok {
			break
		}
		if id == p.ID() {
			continue
		}
		q, found := m.reg.Lookup(id)
		if !found || q.Status() != peer.StatusAvailable {
			continue
		}
		m.pairLocked(ctx, p, q)
		return nil
	}

	if err := m.queue.Push(ctx, p.ID()); err != nil {
		m.logger.Warn("waiting queue push failed", "conn_id", p.ID(), "error", err)
	}
	return nil
}

// matchDistributed pops from the shared queue. A popped id resolving locally
// pairs in-process; a foreign id gets a synthesized room, an immediate local
// notification and a match envelope addressed to its owning instance.
func (m *Matchmaker) matchDistributed(ctx context.Context, p *peer.Peer) error {
	selfPops := 0
	for {
		id, ok, err := m.queue.Pop(ctx)
		if err != nil {
			// Store unreachable: degrade to "no match found".
			m.logger.Warn("waiting queue pop failed", "error", err)
			break
		}
		if !ok {
			break
		}

		if id == p.ID() {
			// Our own entry from an earlier declaration. Put it back and
			// retry a few times; give up before livelock.
			if pushErr := m.queue.Push(ctx, id); pushErr != nil {
				m.logger.Warn("self re-push failed", "conn_id", id, "error", pushErr)
			}
			selfPops++
			if selfPops >= maxSelfPops {
				return nil
			}
			continue
		}

		if q, found := m.reg.Lookup(id); found {
			if q.Status() != peer.StatusAvailable {
				continue
			}
			m.pairLocked(ctx, p, q)
			return nil
		}

		if m.reg.RecentlyDeparted(id) {
			// Leftover duplicate of a closed connection; consume silently.
			continue
		}

		if m.pairRemoteLocked(ctx, p, id) {
			return nil
		}
		// Publish failed, the stream is likely down with the store; stop
		// popping and fall through to the plain enqueue.
		break
	}

	if err := m.queue.Push(ctx, p.ID()); err != nil {
		m.logger.Warn("waiting queue push failed", "conn_id", p.ID(), "error", err)
	}
	return nil
}

// pairLocked links two local connections all-or-nothing: fresh room id, both
// records flipped, both queue entries cleared, both sides notified.
func (m *Matchmaker) pairLocked(ctx context.Context, a, b *peer.Peer) {
	roomID := uuid.New()
	a.BecomeMatched(b.ID(), roomID)
	b.BecomeMatched(a.ID(), roomID)

	_ = m.queue.Remove(ctx, a.ID())
	_ = m.queue.Remove(ctx, b.ID())

	a.Send(model.NewMatched(roomID, b.ID()), m.sendTimeout)
	b.Send(model.NewMatched(roomID, a.ID()), m.sendTimeout)

	m.logger.Info("paired", "room_id", roomID, "a", a.ID(), "b", b.ID())
}

// pairRemoteLocked links a local connection with a candidate owned by
// another instance. The match envelope goes out first; only once it is on
// the stream is the local side committed and notified, so a publish failure
// leaves the local connection untouched.
func (m *Matchmaker) pairRemoteLocked(ctx context.Context, p *peer.Peer, remoteID uuid.UUID) bool {
	roomID := uuid.New()
	err := m.bus.PublishMatch(ctx, model.MatchEnvelope{
		Dest:      remoteID,
		PartnerID: p.ID(),
		RoomID:    roomID,
	})
	if err != nil {
		// The remote side will never hear about this match. Put its id
		// back, best-effort.
		m.logger.Warn("match publish failed", "remote", remoteID, "error", err)
		_ = m.queue.Push(ctx, remoteID)
		return false
	}

	p.BecomeMatched(remoteID, roomID)
	_ = m.queue.Remove(ctx, p.ID())
	p.Send(model.NewMatched(roomID, remoteID), m.sendTimeout)
	m.logger.Info("paired remote", "room_id", roomID, "local", p.ID(), "remote", remoteID)
	return true
}

// AcceptRemoteMatch applies a match envelope addressed to a connection owned
// by this instance. The destination may have vanished or been paired in the
// meantime; the envelope is then dropped, consistent with fire-and-forget
// bus semantics.
func (m *Matchmaker) AcceptRemoteMatch(ctx context.Context, env model.MatchEnvelope) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.reg.Lookup(env.Dest)
	if !ok || p.Status() != peer.StatusAvailable {
		return false
	}

	p.BecomeMatched(env.PartnerID, env.RoomID)
	_ = m.queue.Remove(ctx, p.ID())
	p.Send(model.NewMatched(env.RoomID, env.PartnerID), m.sendTimeout)
	return true
}

// ReleasePartner dissolves the caller's current pairing: the partner is
// notified, both sides are cleared, and the partner is re-queued at the tail
// when the requeue policy is enabled. The caller itself is left idle and is
// not re-queued by this operation.
func (m *Matchmaker) ReleasePartner(ctx context.Context, p *peer.Peer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.Status() != peer.StatusMatched {
		return model.ErrNotPaired
	}
	m.releaseLocked(ctx, p)
	return nil
}

// releaseLocked clears the pairing from p's side and handles the partner:
// local partners are notified (and optionally re-queued) directly, remote
// ones via a partner-left envelope handled by their owning instance.
func (m *Matchmaker) releaseLocked(ctx context.Context, p *peer.Peer) {
	partnerID, _, ok := p.Partner()
	p.BecomeIdle()
	if !ok {
		return
	}

	if q, found := m.reg.Lookup(partnerID); found {
		q.BecomeIdle()
		q.Send(model.NewPartnerLeft(), m.sendTimeout)
		if m.requeue {
			q.BecomeAvailable()
			if err := m.queue.Push(ctx, q.ID()); err != nil {
				m.logger.Warn("partner requeue failed", "conn_id", q.ID(), "error", err)
			}
		}
		return
	}

	if m.bus != nil {
		err := m.bus.PublishRelay(ctx, model.RelayEnvelope{
			Dest: partnerID,
			From: p.ID(),
			Kind: model.KindPartnerLeft,
		})
		if err != nil {
			m.logger.Warn("partner-left publish failed", "dest", partnerID, "error", err)
		}
	}
}

// AcceptRemoteRelease applies a partner-left envelope to a local connection
// whose partner lived on another instance.
func (m *Matchmaker) AcceptRemoteRelease(ctx context.Context, env model.RelayEnvelope) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.reg.Lookup(env.Dest)
	if !ok || p.Status() != peer.StatusMatched {
		return false
	}
	if partnerID, _, _ := p.Partner(); partnerID != env.From {
		// Stale envelope from a pairing that has already been replaced.
		return false
	}

	p.BecomeIdle()
	p.Send(model.NewPartnerLeft(), m.sendTimeout)
	if m.requeue {
		p.BecomeAvailable()
		if err := m.queue.Push(ctx, p.ID()); err != nil {
			m.logger.Warn("partner requeue failed", "conn_id", p.ID(), "error", err)
		}
	}
	return true
}

// Disconnect runs the full teardown for a closing connection: dissolve any
// pairing, drop the waiting-queue entry, remove the registry record and
// close the mailbox. Safe to call more than once.
func (m *Matchmaker) Disconnect(ctx context.Context, p *peer.Peer) {
	m.mu.Lock()
	m.releaseLocked(ctx, p)
	if err := m.queue.Remove(ctx, p.ID()); err != nil {
		m.logger.Warn("waiting queue cleanup failed", "conn_id", p.ID(), "error", err)
	}
	m.reg.Unregister(p.ID())
	m.mu.Unlock()

	p.Close()
}
