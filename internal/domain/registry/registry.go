package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/omnitalk/signaling-service/internal/domain/peer"
)

// departedCacheSize bounds the lookaside cache of recently closed connection
// ids. Bus consumers use it to tell "peer just left" apart from envelopes
// addressed to a destination this process never knew.
const departedCacheSize = 4096

// Registry is the process-local source of truth for which connections are
// reachable from this instance. Lookups never cross instances.
type Registry struct {
	peers    sync.Map // map[uuid.UUID]*peer.Peer
	count    atomic.Int64
	departed *lru.Cache[uuid.UUID, time.Time]
}

func New() *Registry {
	departed, _ := lru.New[uuid.UUID, time.Time](departedCacheSize)
	return &Registry{departed: departed}
}

// Register makes the connection reachable. Ids are process-unique and never
// reused, so a double register of the same id cannot happen.
func (r *Registry) Register(p *peer.Peer) {
	if _, loaded := r.peers.LoadOrStore(p.ID(), p); !loaded {
		r.count.Add(1)
	}
}

// Lookup resolves an id to a live local connection.
func (r *Registry) Lookup(id uuid.UUID) (*peer.Peer, bool) {
	val, ok := r.peers.Load(id)
	if !ok {
		return nil, false
	}
	return val.(*peer.Peer), true
}

// Unregister removes the record permanently and remembers the id as departed.
// Idempotent: unregistering an absent id is a no-op.
func (r *Registry) Unregister(id uuid.UUID) {
	if _, loaded := r.peers.LoadAndDelete(id); loaded {
		r.count.Add(-1)
		r.departed.Add(id, time.Now())
	}
}

// RecentlyDeparted reports whether the id belonged to a connection that was
// registered here and has since closed.
func (r *Registry) RecentlyDeparted(id uuid.UUID) bool {
	return r.departed.Contains(id)
}

// Count returns the number of live local connections.
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// Range visits every live connection until fn returns false.
func (r *Registry) Range(fn func(p *peer.Peer) bool) {
	r.peers.Range(func(_, val any) bool {
		return fn(val.(*peer.Peer))
	})
}
