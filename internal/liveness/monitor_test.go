package liveness

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/omnitalk/signaling-service/internal/domain/peer"
	"github.com/omnitalk/signaling-service/internal/domain/registry"
)

type fakeEvictor struct {
	evicted []uuid.UUID
}

func (e *fakeEvictor) Evict(_ context.Context, p *peer.Peer) {
	e.evicted = append(e.evicted, p.ID())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPeer(t *testing.T, reg *registry.Registry) *peer.Peer {
	t.Helper()
	p := peer.New(context.Background(), 4)
	t.Cleanup(p.Close)
	reg.Register(p)
	return p
}

func TestSweepEvictsAfterTwoSilentPasses(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ev := &fakeEvictor{}
	m := NewMonitor(reg, ev, time.Minute, testLogger())

	p := newTestPeer(t, reg)
	p.SetAlive()

	// First sweep consumes the alive flag and arms a probe.
	m.Sweep(context.Background())
	if len(ev.evicted) != 0 {
		t.Fatalf("evicted after first sweep: %v", ev.evicted)
	}
	select {
	case <-p.Probe():
	default:
		t.Fatal("no probe requested for a live connection")
	}

	// The client never responds: the second sweep evicts.
	m.Sweep(context.Background())
	if len(ev.evicted) != 1 || ev.evicted[0] != p.ID() {
		t.Fatalf("evicted = %v, want [%s]", ev.evicted, p.ID())
	}
}

func TestSweepSparesRefreshedConnection(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ev := &fakeEvictor{}
	m := NewMonitor(reg, ev, time.Minute, testLogger())

	p := newTestPeer(t, reg)
	p.SetAlive()

	m.Sweep(context.Background())
	p.SetAlive() // pong (or any inbound traffic) between sweeps
	m.Sweep(context.Background())

	if len(ev.evicted) != 0 {
		t.Fatalf("refreshed connection evicted: %v", ev.evicted)
	}
}

func TestSweepHandlesMixedPopulation(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ev := &fakeEvictor{}
	m := NewMonitor(reg, ev, time.Minute, testLogger())

	live := newTestPeer(t, reg)
	dead := newTestPeer(t, reg)
	live.SetAlive()
	dead.SetAlive()

	m.Sweep(context.Background())
	live.SetAlive()
	m.Sweep(context.Background())

	if len(ev.evicted) != 1 || ev.evicted[0] != dead.ID() {
		t.Fatalf("evicted = %v, want only %s", ev.evicted, dead.ID())
	}
}
