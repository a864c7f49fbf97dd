// Package matchqueue provides the FIFO of connections waiting for a partner.
//
// Two implementations exist, selected once at startup: an in-process queue
// for single-instance deployments and a Redis-list queue shared by
// cooperating instances.
package matchqueue

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnavailable marks a distributed-store failure. Callers degrade to
// "no candidate found" / "push skipped"; it never aborts the handling path.
var ErrUnavailable = errors.New("matchqueue: store unavailable")

// Queue is a FIFO of connection ids awaiting a partner.
//
// Push must keep an id present at most once, Remove must be idempotent, and
// Pop returns ok=false on an empty queue.
type Queue interface {
	Push(ctx context.Context, id uuid.UUID) error
	Pop(ctx context.Context) (id uuid.UUID, ok bool, err error)
	Remove(ctx context.Context, id uuid.UUID) error
	Len(ctx context.Context) (int, error)
}
