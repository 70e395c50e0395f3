package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonathan/persona-transformer/internal/store"
	"github.com/jonathan/persona-transformer/internal/types"
)

type jobStore struct {
	pool *pgxpool.Pool
}

const jobColumns = `id, content_id, persona_id, format, template_id, status, progress,
	retry_count, attempts, last_error, current_revision_id, approved_revision_id, notes,
	created_at, started_at, completed_at, updated_at`

func scanJob(row rowScanner) (*types.Job, error) {
	var j types.Job
	var lastError []byte
	if err := row.Scan(&j.ID, &j.ContentID, &j.PersonaID, &j.Format, &j.TemplateID, &j.Status,
		&j.Progress, &j.RetryCount, &j.Attempts, &lastError, &j.CurrentRevisionID,
		&j.ApprovedRevisionID, &j.Notes, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
		&j.UpdatedAt); err != nil {
		return nil, err
	}
	if lastError != nil {
		j.LastError = &types.JobError{}
		if err := json.Unmarshal(lastError, j.LastError); err != nil {
			return nil, fmt.Errorf("failed to unmarshal last error: %w", err)
		}
	}
	return &j, nil
}

func marshalJobError(e *types.JobError) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	return json.Marshal(e)
}

// Create inserts a new job
func (s jobStore) Create(ctx context.Context, job *types.Job) error {
	lastError, err := marshalJobError(job.LastError)
	if err != nil {
		return fmt.Errorf("failed to marshal last error: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO transformation_jobs (id, content_id, persona_id, format, template_id, status,
		     progress, retry_count, attempts, last_error, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		job.ID, job.ContentID, job.PersonaID, job.Format, job.TemplateID, job.Status,
		job.Progress, job.RetryCount, job.Attempts, lastError, job.Notes, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", mapError(err))
	}
	return nil
}

// Get retrieves a job by ID
func (s jobStore) Get(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM transformation_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, mapError(err))
	}
	return j, nil
}

// Update writes the job's mutable fields. approved_revision_id is left to Promote.
func (s jobStore) Update(ctx context.Context, job *types.Job) error {
	lastError, err := marshalJobError(job.LastError)
	if err != nil {
		return fmt.Errorf("failed to marshal last error: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE transformation_jobs
		 SET status = $2, progress = $3, retry_count = $4, attempts = $5, last_error = $6,
		     current_revision_id = $7, notes = $8, started_at = $9, completed_at = $10,
		     updated_at = NOW()
		 WHERE id = $1`,
		job.ID, job.Status, job.Progress, job.RetryCount, job.Attempts, lastError,
		job.CurrentRevisionID, job.Notes, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrRecordNotFound
	}
	return nil
}

// ListByStatus returns jobs in any of the given states, oldest first
func (s jobStore) ListByStatus(ctx context.Context, statuses ...types.JobStatus) ([]types.Job, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM transformation_jobs
		 WHERE status = ANY($1)
		 ORDER BY created_at`, names)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []types.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}
