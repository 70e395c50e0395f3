package types

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the state of a transformation job
type JobStatus string

// Job states
const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Progress checkpoints advertised while a job runs
const (
	ProgressDequeued = 10
	ProgressAdapted  = 50
	ProgressScored   = 80
	ProgressDone     = 100
)

// transitions is the full job state graph. completed -> queued is only taken
// when a reviewer asks for another revision.
var transitions = map[JobStatus][]JobStatus{
	JobQueued:     {JobProcessing, JobCancelled},
	JobProcessing: {JobCompleted, JobFailed, JobCancelled, JobQueued},
	JobCompleted:  {JobQueued},
}

// IsTerminal reports whether no worker will pick the job up again on its own
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// CanTransitionTo reports whether s -> next is an edge of the state graph
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// JobError is the human-readable failure recorded on a job
type JobError struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Job is one (content, persona, format, template) transformation request
type Job struct {
	ID                 uuid.UUID    `json:"id"`
	ContentID          string       `json:"content_id"`
	PersonaID          string       `json:"persona_id"`
	Format             OutputFormat `json:"format"`
	TemplateID         string       `json:"template_id,omitempty"`
	Status             JobStatus    `json:"status"`
	Progress           int          `json:"progress"`
	RetryCount         int          `json:"retry_count"`
	Attempts           int          `json:"attempts"`
	LastError          *JobError    `json:"last_error,omitempty"`
	CurrentRevisionID  *uuid.UUID   `json:"current_revision_id,omitempty"`
	ApprovedRevisionID *uuid.UUID   `json:"approved_revision_id,omitempty"`
	// Notes carries reviewer feedback into the next adaptation attempt.
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a copy that does not share pointer fields
func (j *Job) Clone() *Job {
	c := *j
	if j.LastError != nil {
		e := *j.LastError
		c.LastError = &e
	}
	if j.CurrentRevisionID != nil {
		id := *j.CurrentRevisionID
		c.CurrentRevisionID = &id
	}
	if j.ApprovedRevisionID != nil {
		id := *j.ApprovedRevisionID
		c.ApprovedRevisionID = &id
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// StatusView is the non-blocking status snapshot returned to callers
type StatusView struct {
	JobID      uuid.UUID `json:"job_id"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	RetryCount int       `json:"retry_count"`
	Error      string    `json:"error,omitempty"`
	Retryable  bool      `json:"retryable,omitempty"`
}

// View builds the status snapshot for j
func (j *Job) View() StatusView {
	v := StatusView{
		JobID:      j.ID,
		Status:     j.Status,
		Progress:   j.Progress,
		RetryCount: j.RetryCount,
	}
	if j.LastError != nil && j.Status == JobFailed {
		v.Error = j.LastError.Message
		v.Retryable = j.LastError.Retryable
	}
	return v
}
