package matchmaker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/omnitalk/signaling-service/internal/domain/model"
	"github.com/omnitalk/signaling-service/internal/domain/peer"
	"github.com/omnitalk/signaling-service/internal/domain/registry"
	"github.com/omnitalk/signaling-service/internal/matchqueue"
)

// fakeBus records published envelopes in place of the redis stream.
type fakeBus struct {
	matches  []model.MatchEnvelope
	relays   []model.RelayEnvelope
	matchErr error
}

func (b *fakeBus) PublishMatch(_ context.Context, env model.MatchEnvelope) error {
	if b.matchErr != nil {
		return b.matchErr
	}
	b.matches = append(b.matches, env)
	return nil
}

func (b *fakeBus) PublishRelay(_ context.Context, env model.RelayEnvelope) error {
	b.relays = append(b.relays, env)
	return nil
}

// failingQueue simulates an unreachable store.
type failingQueue struct{}

func (failingQueue) Push(context.Context, uuid.UUID) error { return matchqueue.ErrUnavailable }
func (failingQueue) Pop(context.Context) (uuid.UUID, bool, error) {
	return uuid.Nil, false, matchqueue.ErrUnavailable
}
func (failingQueue) Remove(context.Context, uuid.UUID) error { return matchqueue.ErrUnavailable }
func (failingQueue) Len(context.Context) (int, error)        { return 0, matchqueue.ErrUnavailable }

func newDistributedMatchmaker(t *testing.T, q matchqueue.Queue, bus BusPublisher) (*Matchmaker, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	m := New(reg, q, bus, Options{Distributed: true, Requeue: true}, testLogger())
	return m, reg
}

func TestDistributedRemoteMatch(t *testing.T) {
	t.Parallel()

	q := matchqueue.NewLocalQueue()
	bus := &fakeBus{}
	m, reg := newDistributedMatchmaker(t, q, bus)
	ctx := context.Background()

	// An id owned by some other instance is already waiting.
	remoteID := uuid.New()
	q.Push(ctx, remoteID)

	a := newTestPeer(t, reg)
	if err := m.DeclareAvailable(ctx, a); err != nil {
		t.Fatalf("DeclareAvailable() error = %v", err)
	}

	// The local side commits and is notified immediately.
	room := assertMatchedEvent(t, a, remoteID)
	if partnerID, gotRoom, ok := a.Partner(); !ok || partnerID != remoteID || gotRoom != room {
		t.Fatal("local pairing state not committed")
	}

	// The remote side is told over the bus.
	if len(bus.matches) != 1 {
		t.Fatalf("published %d match envelopes, want 1", len(bus.matches))
	}
	env := bus.matches[0]
	if env.Dest != remoteID || env.PartnerID != a.ID() || env.RoomID != room {
		t.Fatalf("unexpected match envelope: %+v", env)
	}

	if n, _ := q.Len(ctx); n != 0 {
		t.Fatalf("queue length = %d, want 0", n)
	}
}

func TestDistributedSelfPopBounded(t *testing.T) {
	t.Parallel()

	q := matchqueue.NewLocalQueue()
	m, reg := newDistributedMatchmaker(t, q, &fakeBus{})
	ctx := context.Background()

	a := newTestPeer(t, reg)
	// A duplicate of our own id is the only entry, so every pop is a
	// self-pop. The retry loop must terminate and leave the id queued.
	q.Push(ctx, a.ID())

	if err := m.DeclareAvailable(ctx, a); err != nil {
		t.Fatalf("DeclareAvailable() error = %v", err)
	}

	assertNoEvent(t, a)
	if a.Status() != peer.StatusAvailable {
		t.Fatalf("status = %v, want available", a.Status())
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("queue length = %d, want 1 (id guaranteed re-enqueued)", n)
	}
}

func TestDistributedSkipsDepartedDuplicate(t *testing.T) {
	t.Parallel()

	q := matchqueue.NewLocalQueue()
	m, reg := newDistributedMatchmaker(t, q, &fakeBus{})
	ctx := context.Background()

	// A stale queue duplicate of a connection that already closed here.
	ghost := newTestPeer(t, reg)
	reg.Unregister(ghost.ID())
	q.Push(ctx, ghost.ID())

	a := newTestPeer(t, reg)
	m.DeclareAvailable(ctx, a)

	assertNoEvent(t, a)
	if a.Status() != peer.StatusAvailable {
		t.Fatalf("status = %v, want available (ghost consumed, no match)", a.Status())
	}
}

func TestDistributedPublishFailureRollsBack(t *testing.T) {
	t.Parallel()

	q := matchqueue.NewLocalQueue()
	bus := &fakeBus{matchErr: errors.New("stream down")}
	m, reg := newDistributedMatchmaker(t, q, bus)
	ctx := context.Background()

	remoteID := uuid.New()
	q.Push(ctx, remoteID)

	a := newTestPeer(t, reg)
	m.DeclareAvailable(ctx, a)

	assertNoEvent(t, a)
	if a.Status() != peer.StatusAvailable {
		t.Fatalf("status = %v, want available after failed publish", a.Status())
	}
	if n, _ := q.Len(ctx); n != 2 {
		t.Fatalf("queue length = %d, want 2 (both ids queued)", n)
	}
}

func TestDistributedStoreUnavailableDegrades(t *testing.T) {
	t.Parallel()

	m, reg := newDistributedMatchmaker(t, failingQueue{}, &fakeBus{})
	a := newTestPeer(t, reg)

	// Store failures degrade to "no match found"; the handling path never
	// surfaces an error to the client.
	if err := m.DeclareAvailable(context.Background(), a); err != nil {
		t.Fatalf("DeclareAvailable() error = %v, want nil", err)
	}
	if a.Status() != peer.StatusAvailable {
		t.Fatalf("status = %v, want available", a.Status())
	}
}

func TestAcceptRemoteMatch(t *testing.T) {
	t.Parallel()

	q := matchqueue.NewLocalQueue()
	m, reg := newDistributedMatchmaker(t, q, &fakeBus{})
	ctx := context.Background()

	b := newTestPeer(t, reg)
	m.DeclareAvailable(ctx, b) // waits in the shared queue

	env := model.MatchEnvelope{Dest: b.ID(), PartnerID: uuid.New(), RoomID: uuid.New()}
	if !m.AcceptRemoteMatch(ctx, env) {
		t.Fatal("AcceptRemoteMatch() = false for waiting local peer")
	}

	assertMatchedEvent(t, b, env.PartnerID)
	if partnerID, roomID, ok := b.Partner(); !ok || partnerID != env.PartnerID || roomID != env.RoomID {
		t.Fatal("remote match not applied")
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatalf("queue length = %d, want 0", n)
	}
}

func TestAcceptRemoteMatchUnavailablePeer(t *testing.T) {
	t.Parallel()

	m, reg := newDistributedMatchmaker(t, matchqueue.NewLocalQueue(), &fakeBus{})
	ctx := context.Background()

	b := newTestPeer(t, reg) // idle, never declared
	env := model.MatchEnvelope{Dest: b.ID(), PartnerID: uuid.New(), RoomID: uuid.New()}
	if m.AcceptRemoteMatch(ctx, env) {
		t.Fatal("AcceptRemoteMatch() = true for idle peer, want drop")
	}
	if env := (model.MatchEnvelope{Dest: uuid.New()}); m.AcceptRemoteMatch(ctx, env) {
		t.Fatal("AcceptRemoteMatch() = true for unknown destination")
	}
}

func TestReleaseNotifiesRemotePartner(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	m, reg := newDistributedMatchmaker(t, matchqueue.NewLocalQueue(), bus)
	ctx := context.Background()

	remoteID := uuid.New()
	a := newTestPeer(t, reg)
	a.BecomeMatched(remoteID, uuid.New())

	if err := m.ReleasePartner(ctx, a); err != nil {
		t.Fatalf("ReleasePartner() error = %v", err)
	}
	if len(bus.relays) != 1 {
		t.Fatalf("published %d relay envelopes, want 1", len(bus.relays))
	}
	env := bus.relays[0]
	if env.Dest != remoteID || env.From != a.ID() || env.Kind != model.KindPartnerLeft {
		t.Fatalf("unexpected partner-left envelope: %+v", env)
	}
}

func TestAcceptRemoteRelease(t *testing.T) {
	t.Parallel()

	q := matchqueue.NewLocalQueue()
	m, reg := newDistributedMatchmaker(t, q, &fakeBus{})
	ctx := context.Background()

	remoteID := uuid.New()
	b := newTestPeer(t, reg)
	b.BecomeMatched(remoteID, uuid.New())

	if !m.AcceptRemoteRelease(ctx, model.RelayEnvelope{Dest: b.ID(), From: remoteID, Kind: model.KindPartnerLeft}) {
		t.Fatal("AcceptRemoteRelease() = false for matched peer")
	}
	if ev := nextEvent(t, b); ev.Kind != model.KindPartnerLeft {
		t.Fatalf("b got %s, want partner-left", ev.Kind)
	}
	if b.Status() != peer.StatusAvailable {
		t.Fatalf("status = %v, want available (requeue enabled)", b.Status())
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("queue length = %d, want 1", n)
	}
}

func TestAcceptRemoteReleaseStaleEnvelope(t *testing.T) {
	t.Parallel()

	m, reg := newDistributedMatchmaker(t, matchqueue.NewLocalQueue(), &fakeBus{})
	ctx := context.Background()

	b := newTestPeer(t, reg)
	b.BecomeMatched(uuid.New(), uuid.New())

	// Envelope from a previous, already-replaced pairing must not tear
	// down the current one.
	if m.AcceptRemoteRelease(ctx, model.RelayEnvelope{Dest: b.ID(), From: uuid.New(), Kind: model.KindPartnerLeft}) {
		t.Fatal("stale partner-left envelope applied")
	}
	if b.Status() != peer.StatusMatched {
		t.Fatalf("status = %v, want matched", b.Status())
	}
}
