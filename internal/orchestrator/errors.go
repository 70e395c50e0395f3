package orchestrator

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/persona-transformer/internal/types"
)

var (
	// ErrNoCompliantRevision is the failure recorded when the retry budget
	// runs out before any candidate passed compliance
	ErrNoCompliantRevision = errors.New("no compliant revision")
	// ErrNotApproved is returned by Refine for jobs without an approved revision
	ErrNotApproved = errors.New("job has no approved revision to refine")
)

// ErrInvalidReference is returned by Submit when a referenced record does
// not resolve or may not be used
type ErrInvalidReference struct {
	Kind   string
	ID     string
	Reason string
	Cause  error
}

func (e *ErrInvalidReference) Error() string {
	msg := fmt.Sprintf("invalid %s reference %q", e.Kind, e.ID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *ErrInvalidReference) Unwrap() error {
	return e.Cause
}

// ErrInvalidTransition is returned when an operation would move a job along
// an edge its state machine does not have
type ErrInvalidTransition struct {
	JobID uuid.UUID
	From  types.JobStatus
	To    types.JobStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("job %s cannot move from %s to %s", e.JobID, e.From, e.To)
}
