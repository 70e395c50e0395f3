// Package store defines the persistence contract for contents, personas, jobs
// and revisions, with an in-memory implementation. The Postgres implementation
// lives in internal/db.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonathan/persona-transformer/internal/types"
)

// Store groups the per-entity stores
type Store interface {
	Content() Content
	Persona() Persona
	Job() Job
	Revision() Revision
	Close() error
}

// Content stores immutable source content
type Content interface {
	// Create fails with ErrDuplicateKey if the ID already exists.
	Create(ctx context.Context, content *types.SourceContent) error
	Get(ctx context.Context, id string) (*types.SourceContent, error)
}

// Persona stores versioned personas. Every write bumps the version and keeps
// the previous one readable through GetVersion.
type Persona interface {
	// Create stores the persona at version 1.
	Create(ctx context.Context, p *types.Persona) (*types.Persona, error)
	Get(ctx context.Context, id string) (*types.Persona, error)
	GetVersion(ctx context.Context, id string, version int) (*types.Persona, error)
	List(ctx context.Context) ([]types.Persona, error)
	// Update fails with ErrStaleWrite unless p.Version equals the stored version.
	Update(ctx context.Context, p *types.Persona) (*types.Persona, error)
	// Archive soft-deletes. A zero expectedVersion skips the staleness check.
	Archive(ctx context.Context, id string, expectedVersion int) (*types.Persona, error)
}

// Job stores transformation jobs
type Job interface {
	Create(ctx context.Context, job *types.Job) error
	Get(ctx context.Context, id uuid.UUID) (*types.Job, error)
	// Update writes every field except ApprovedRevisionID, which is owned by
	// Revision.Promote.
	Update(ctx context.Context, job *types.Job) error
	// ListByStatus returns jobs in any of the given states, oldest first.
	ListByStatus(ctx context.Context, statuses ...types.JobStatus) ([]types.Job, error)
}

// Revision stores the append-only revision chain of each job
type Revision interface {
	// Append fails with ErrStaleWrite unless rev.Sequence is exactly one past
	// the job's current last sequence.
	Append(ctx context.Context, rev *types.Revision) error
	Get(ctx context.Context, id uuid.UUID) (*types.Revision, error)
	// ListByJob returns the chain ordered by sequence.
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]types.Revision, error)
	// Latest returns ErrRecordNotFound when the job has no revisions.
	Latest(ctx context.Context, jobID uuid.UUID) (*types.Revision, error)
	// SetReview updates the mutable review fields of a revision.
	SetReview(ctx context.Context, id uuid.UUID, status types.ApprovalStatus, feedback, notes string) error
	// Promote approves revisionID, supersedes any other approved revision of
	// the job and points the job's approved pointer at it, atomically. Only a
	// pending or superseded revision can be promoted; any other status fails
	// with ErrStaleWrite and changes nothing.
	Promote(ctx context.Context, jobID, revisionID uuid.UUID, feedback string) error
}
