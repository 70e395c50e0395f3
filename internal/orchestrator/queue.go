package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// queue is an unbounded FIFO of job IDs. A job is queued at most once.
type queue struct {
	mu     sync.Mutex
	items  []uuid.UUID
	queued map[uuid.UUID]bool
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{
		queued: make(map[uuid.UUID]bool),
		notify: make(chan struct{}, 1),
	}
}

// push appends id unless it is already waiting
func (q *queue) push(id uuid.UUID) bool {
	q.mu.Lock()
	if q.queued[id] {
		q.mu.Unlock()
		return false
	}
	q.queued[id] = true
	q.items = append(q.items, id)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// pop blocks until an item is available or ctx is done
func (q *queue) pop(ctx context.Context) (uuid.UUID, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items[0] = uuid.Nil
			q.items = q.items[1:]
			delete(q.queued, id)
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				// wake another waiting worker
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return uuid.Nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
