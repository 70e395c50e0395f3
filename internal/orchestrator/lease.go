package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// leases grants one worker at a time the right to process a job. A lease
// that is not released expires after its TTL.
type leases struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	expires map[uuid.UUID]time.Time
}

func newLeases(ttl time.Duration, now func() time.Time) *leases {
	return &leases{ttl: ttl, now: now, expires: make(map[uuid.UUID]time.Time)}
}

func (l *leases) acquire(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.expires[id]; ok && now.Before(exp) {
		return false
	}
	l.expires[id] = now.Add(l.ttl)
	return true
}

func (l *leases) release(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.expires, id)
}

func (l *leases) held(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.expires[id]
	return ok && l.now().Before(exp)
}
