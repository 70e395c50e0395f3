package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/persona-transformer/internal/types"
)

const subscriberBuffer = 16

// ProgressEvent is published on every committed job change
type ProgressEvent struct {
	JobID      uuid.UUID       `json:"job_id"`
	Status     types.JobStatus `json:"status"`
	Progress   int             `json:"progress"`
	RetryCount int             `json:"retry_count"`
	RevisionID *uuid.UUID      `json:"revision_id,omitempty"`
	Error      string          `json:"error,omitempty"`
	Retryable  bool            `json:"retryable,omitempty"`
	At         time.Time       `json:"at"`
}

// broker fans events out to per-job subscribers. Slow subscribers lose
// events instead of blocking workers.
type broker struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan ProgressEvent]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[uuid.UUID]map[chan ProgressEvent]struct{})}
}

func (b *broker) subscribe(jobID uuid.UUID) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, subscriberBuffer)
	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan ProgressEvent]struct{})
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[jobID], ch)
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// publish never blocks. A subscriber that falls behind misses progress
// events, but a terminal event evicts the oldest buffered one so the stream
// always ends.
func (b *broker) publish(ev ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.JobID] {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !ev.Status.IsTerminal() {
			continue
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func eventFor(job *types.Job, at time.Time) ProgressEvent {
	ev := ProgressEvent{
		JobID:      job.ID,
		Status:     job.Status,
		Progress:   job.Progress,
		RetryCount: job.RetryCount,
		RevisionID: job.CurrentRevisionID,
		At:         at,
	}
	if job.Status == types.JobFailed && job.LastError != nil {
		ev.Error = job.LastError.Message
		ev.Retryable = job.LastError.Retryable
	}
	return ev
}
