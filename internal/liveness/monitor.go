// Package liveness is a pure failure detector: a fixed-period sweep that
// evicts connections whose alive flag was not refreshed since the last pass.
// No backoff, no distinction between slow and dead peers.
package liveness

import (
	"context"
	"log/slog"
	"time"

	"github.com/omnitalk/signaling-service/internal/domain/peer"
	"github.com/omnitalk/signaling-service/internal/domain/registry"
)

const DefaultPeriod = 30 * time.Second

// Evictor runs the full teardown path for a dead connection, identical to an
// abrupt disconnect.
type Evictor interface {
	Evict(ctx context.Context, p *peer.Peer)
}

type Monitor struct {
	reg     *registry.Registry
	evictor Evictor
	period  time.Duration
	logger  *slog.Logger

	done chan struct{}
}

func NewMonitor(reg *registry.Registry, evictor Evictor, period time.Duration, logger *slog.Logger) *Monitor {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Monitor{
		reg:     reg,
		evictor: evictor,
		period:  period,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start launches the sweep loop. Stop it with Stop.
func (m *Monitor) Start() {
	go func() {
		ticker := time.NewTicker(m.period)
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.Sweep(context.Background())
			}
		}
	}()
}

func (m *Monitor) Stop() {
	close(m.done)
}

// Sweep terminates every connection that failed to acknowledge the previous
// probe, then arms and probes the rest.
func (m *Monitor) Sweep(ctx context.Context) {
	var dead []*peer.Peer
	m.reg.Range(func(p *peer.Peer) bool {
		if !p.ClearAlive() {
			dead = append(dead, p)
			return true
		}
		p.RequestProbe()
		return true
	})

	for _, p := range dead {
		m.logger.Info("evicting unresponsive connection", "conn_id", p.ID())
		m.evictor.Evict(ctx, p)
	}
}
