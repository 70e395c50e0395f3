package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonathan/persona-transformer/internal/store"
	"github.com/jonathan/persona-transformer/internal/types"
)

type revisionStore struct {
	pool *pgxpool.Pool
}

const revisionColumns = `id, job_id, sequence, text, persona_id, persona_version, template,
	compliance, quality, directive, notes, approval_status, feedback, review_notes,
	reviewed_at, created_at`

func scanRevision(row rowScanner) (*types.Revision, error) {
	var r types.Revision
	var template, compliance, quality []byte
	if err := row.Scan(&r.ID, &r.JobID, &r.Sequence, &r.Text, &r.Persona.ID, &r.Persona.Version,
		&template, &compliance, &quality, &r.Directive, &r.Notes, &r.ApprovalStatus,
		&r.Feedback, &r.ReviewNotes, &r.ReviewedAt, &r.CreatedAt); err != nil {
		return nil, err
	}
	if template != nil {
		r.Template = &types.TemplateRef{}
		if err := json.Unmarshal(template, r.Template); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template ref: %w", err)
		}
	}
	if err := json.Unmarshal(compliance, &r.Compliance); err != nil {
		return nil, fmt.Errorf("failed to unmarshal compliance: %w", err)
	}
	if err := json.Unmarshal(quality, &r.Quality); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quality: %w", err)
	}
	return &r, nil
}

// Append inserts the next revision of a job. The job row is locked so two
// writers can't both claim the same sequence number.
func (s revisionStore) Append(ctx context.Context, rev *types.Revision) error {
	var template []byte
	if rev.Template != nil {
		var err error
		if template, err = json.Marshal(rev.Template); err != nil {
			return fmt.Errorf("failed to marshal template ref: %w", err)
		}
	}
	compliance, err := json.Marshal(rev.Compliance)
	if err != nil {
		return fmt.Errorf("failed to marshal compliance: %w", err)
	}
	quality, err := json.Marshal(rev.Quality)
	if err != nil {
		return fmt.Errorf("failed to marshal quality: %w", err)
	}

	err = withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx,
			`SELECT id FROM transformation_jobs WHERE id = $1 FOR UPDATE`, rev.JobID,
		).Scan(&locked); err != nil {
			return mapError(err)
		}

		var last int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(sequence), 0) FROM revisions WHERE job_id = $1`, rev.JobID,
		).Scan(&last); err != nil {
			return err
		}
		if rev.Sequence != last+1 {
			return store.ErrStaleWrite
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO revisions (id, job_id, sequence, text, persona_id, persona_version, template,
			     compliance, quality, directive, notes, approval_status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			rev.ID, rev.JobID, rev.Sequence, rev.Text, rev.Persona.ID, rev.Persona.Version, template,
			compliance, quality, rev.Directive, rev.Notes, rev.ApprovalStatus, rev.CreatedAt,
		)
		return mapError(err)
	})
	if err != nil {
		return fmt.Errorf("failed to append revision %d for job %s: %w", rev.Sequence, rev.JobID, err)
	}
	return nil
}

// Get retrieves a revision by ID
func (s revisionStore) Get(ctx context.Context, id uuid.UUID) (*types.Revision, error) {
	r, err := scanRevision(s.pool.QueryRow(ctx,
		`SELECT `+revisionColumns+` FROM revisions WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get revision %s: %w", id, mapError(err))
	}
	return r, nil
}

// ListByJob returns a job's revisions ordered by sequence
func (s revisionStore) ListByJob(ctx context.Context, jobID uuid.UUID) ([]types.Revision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+revisionColumns+` FROM revisions WHERE job_id = $1 ORDER BY sequence`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	defer rows.Close()

	var out []types.Revision
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Latest returns the highest-sequence revision of a job
func (s revisionStore) Latest(ctx context.Context, jobID uuid.UUID) (*types.Revision, error) {
	r, err := scanRevision(s.pool.QueryRow(ctx,
		`SELECT `+revisionColumns+` FROM revisions WHERE job_id = $1 ORDER BY sequence DESC LIMIT 1`, jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to get latest revision: %w", mapError(err))
	}
	return r, nil
}

// SetReview updates the review fields of a revision
func (s revisionStore) SetReview(ctx context.Context, id uuid.UUID, status types.ApprovalStatus, feedback, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE revisions
		 SET approval_status = $2, feedback = $3, review_notes = $4, reviewed_at = NOW()
		 WHERE id = $1`,
		id, status, feedback, notes,
	)
	if err != nil {
		return fmt.Errorf("failed to review revision %s: %w", id, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrRecordNotFound
	}
	return nil
}

// Promote approves a revision and supersedes the previously approved one
func (s revisionStore) Promote(ctx context.Context, jobID, revisionID uuid.UUID, feedback string) error {
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var owner uuid.UUID
		var status types.ApprovalStatus
		if err := tx.QueryRow(ctx,
			`SELECT job_id, approval_status FROM revisions WHERE id = $1 FOR UPDATE`, revisionID,
		).Scan(&owner, &status); err != nil {
			return mapError(err)
		}
		if owner != jobID {
			return store.ErrRecordNotFound
		}
		if status != types.ApprovalPending && status != types.ApprovalSuperseded {
			return store.ErrStaleWrite
		}

		// Supersede first so the one-approved index never sees two rows.
		if _, err := tx.Exec(ctx,
			`UPDATE revisions SET approval_status = 'superseded'
			 WHERE job_id = $1 AND approval_status = 'approved' AND id <> $2`,
			jobID, revisionID,
		); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE revisions SET approval_status = 'approved', feedback = $2, reviewed_at = NOW()
			 WHERE id = $1 AND approval_status IN ('pending', 'superseded')`,
			revisionID, feedback,
		)
		if err != nil {
			return mapError(err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrStaleWrite
		}
		tag, err = tx.Exec(ctx,
			`UPDATE transformation_jobs SET approved_revision_id = $2, updated_at = NOW() WHERE id = $1`,
			jobID, revisionID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return fmt.Errorf("failed to promote revision %s: %w", revisionID, store.ErrStaleWrite)
		}
		return fmt.Errorf("failed to promote revision %s: %w", revisionID, err)
	}
	return nil
}
