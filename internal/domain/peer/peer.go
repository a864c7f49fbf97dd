package peer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/omnitalk/signaling-service/internal/domain/model"
)

// Status is the explicit per-connection pairing state. Keeping it a single
// tagged value makes available-and-matched unrepresentable.
type Status int32

const (
	StatusIdle Status = iota
	StatusAvailable
	StatusMatched
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusMatched:
		return "matched"
	default:
		return "idle"
	}
}

// Peer is the per-connection record: identity, pairing state and the outbound
// mailbox the transport write pump drains. Pairing transitions are driven by
// the matchmaker only; the transport layer never touches them.
type Peer struct {
	id        uuid.UUID
	createdAt time.Time

	ctx      context.Context
	cancelFn context.CancelFunc

	// Mailbox decoupling delivery from the transport, as a shock absorber
	// against slow consumers.
	sendCh  chan *model.Outbound
	probeCh chan struct{}

	closeOnce sync.Once
	sendMu    sync.RWMutex
	closed    bool

	mu        sync.Mutex
	userID    string
	status    Status
	partnerID uuid.UUID
	roomID    uuid.UUID

	alive atomic.Bool
}

// New creates a record bound to the transport context. The connection starts
// idle and alive; bufferSize caps the outbound mailbox.
func New(ctx context.Context, bufferSize int) *Peer {
	childCtx, cancel := context.WithCancel(ctx)
	p := &Peer{
		id:        uuid.New(),
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		sendCh:    make(chan *model.Outbound, bufferSize),
		probeCh:   make(chan struct{}, 1),
	}
	p.alive.Store(true)
	return p
}

func (p *Peer) ID() uuid.UUID { return p.id }

// Done is closed once the connection is terminated; the transport watches it
// to tear the socket down.
func (p *Peer) Done() <-chan struct{} { return p.ctx.Done() }

func (p *Peer) SetUserID(id string) {
	p.mu.Lock()
	p.userID = id
	p.mu.Unlock()
}

func (p *Peer) UserID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userID
}

func (p *Peer) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Partner returns the current partner and room, valid only while matched.
func (p *Peer) Partner() (partnerID, roomID uuid.UUID, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusMatched {
		return uuid.Nil, uuid.Nil, false
	}
	return p.partnerID, p.roomID, true
}

// BecomeAvailable marks the connection as waiting for a partner.
func (p *Peer) BecomeAvailable() {
	p.mu.Lock()
	p.status = StatusAvailable
	p.partnerID = uuid.Nil
	p.roomID = uuid.Nil
	p.mu.Unlock()
}

// BecomeMatched links the connection to a partner inside a shared room.
func (p *Peer) BecomeMatched(partnerID, roomID uuid.UUID) {
	p.mu.Lock()
	p.status = StatusMatched
	p.partnerID = partnerID
	p.roomID = roomID
	p.mu.Unlock()
}

// BecomeIdle clears pairing and availability state.
func (p *Peer) BecomeIdle() {
	p.mu.Lock()
	p.status = StatusIdle
	p.partnerID = uuid.Nil
	p.roomID = uuid.Nil
	p.mu.Unlock()
}

// SetAlive refreshes the liveness flag; called from the transport's
// pong-acknowledgment path.
func (p *Peer) SetAlive() { p.alive.Store(true) }

// ClearAlive arms the next liveness check and reports whether the flag was
// refreshed since the previous one.
func (p *Peer) ClearAlive() (wasAlive bool) { return p.alive.Swap(false) }

// RequestProbe asks the transport write pump to emit a liveness probe.
// Non-blocking; a pending probe request is enough.
func (p *Peer) RequestProbe() {
	select {
	case p.probeCh <- struct{}{}:
	default:
	}
}

// Probe exposes pending probe requests to the write pump.
func (p *Peer) Probe() <-chan struct{} { return p.probeCh }

// Send enqueues a frame for the client, waiting up to timeout for mailbox
// space. Returns false when the connection is closed or the buffer stayed
// saturated for the whole window.
func (p *Peer) Send(ev *model.Outbound, timeout time.Duration) bool {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if p.closed {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.ctx.Done():
		return false
	case p.sendCh <- ev:
		return true
	case <-timer.C:
		return false
	}
}

// Recv is drained by the transport write pump; it is closed on teardown after
// any buffered frames.
func (p *Peer) Recv() <-chan *model.Outbound { return p.sendCh }

// Close terminates the connection exactly once: cancels the context so pumps
// exit, then closes the mailbox so the write pump can flush and stop.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		p.cancelFn()
		p.sendMu.Lock()
		p.closed = true
		close(p.sendCh)
		p.sendMu.Unlock()
	})
}
