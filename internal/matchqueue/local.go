package matchqueue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// LocalQueue is the in-process waiting queue used when no distributed store
// is configured.
type LocalQueue struct {
	mu      sync.Mutex
	order   []uuid.UUID
	present map[uuid.UUID]struct{}
}

var _ Queue = (*LocalQueue)(nil)

func NewLocalQueue() *LocalQueue {
	return &LocalQueue{present: make(map[uuid.UUID]struct{})}
}

// Push appends the id to the tail. An id already queued stays where it is.
func (q *LocalQueue) Push(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.present[id]; ok {
		return nil
	}
	q.present[id] = struct{}{}
	q.order = append(q.order, id)
	return nil
}

// Pop removes and returns the head of the queue.
func (q *LocalQueue) Pop(_ context.Context) (uuid.UUID, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return uuid.Nil, false, nil
	}
	id := q.order[0]
	q.order = q.order[1:]
	delete(q.present, id)
	return id, true, nil
}

// Remove deletes the id wherever it sits. Removing an absent id is a no-op
// and never disturbs the order of the remaining entries.
func (q *LocalQueue) Remove(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.present[id]; !ok {
		return nil
	}
	delete(q.present, id)
	for i, queued := range q.order {
		if queued == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

func (q *LocalQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order), nil
}
