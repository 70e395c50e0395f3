package quality

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/persona-transformer/internal/types"
)

// ErrNoApprovedRevision is returned by Export before any approval
var ErrNoApprovedRevision = errors.New("job has no approved revision")

// ErrNotPending is returned when a review action targets a revision that is
// not in the state the action requires
type ErrNotPending struct {
	RevisionID uuid.UUID
	Status     types.ApprovalStatus
	Reason     string
}

func (e *ErrNotPending) Error() string {
	return fmt.Sprintf("revision %s is %s: %s", e.RevisionID, e.Status, e.Reason)
}
