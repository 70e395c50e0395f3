package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonathan/persona-transformer/internal/store"
	"github.com/jonathan/persona-transformer/internal/types"
)

type personaStore struct {
	pool *pgxpool.Pool
}

const personaColumns = `v.persona_id, v.version, v.name, v.expertise, v.style, v.interests, v.preferred_formats, v.archived, v.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPersona(row rowScanner) (*types.Persona, error) {
	var p types.Persona
	var interests, formats []byte
	if err := row.Scan(&p.ID, &p.Version, &p.Name, &p.Expertise, &p.Style,
		&interests, &formats, &p.Archived, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(interests, &p.Interests); err != nil {
		return nil, fmt.Errorf("failed to unmarshal interests: %w", err)
	}
	if err := json.Unmarshal(formats, &p.PreferredFormats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preferred formats: %w", err)
	}
	return &p, nil
}

func insertPersonaVersion(ctx context.Context, tx pgx.Tx, p *types.Persona) (*types.Persona, error) {
	interests, err := json.Marshal(nonNil(p.Interests))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal interests: %w", err)
	}
	formats, err := json.Marshal(nonNil(p.PreferredFormats))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preferred formats: %w", err)
	}
	return scanPersona(tx.QueryRow(ctx,
		`INSERT INTO persona_versions AS v (persona_id, version, name, expertise, style, interests, preferred_formats, archived)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+personaColumns,
		p.ID, p.Version, p.Name, p.Expertise, p.Style, interests, formats, p.Archived,
	))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Create stores the persona at version 1
func (s personaStore) Create(ctx context.Context, p *types.Persona) (*types.Persona, error) {
	var created *types.Persona
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO personas (id, version) VALUES ($1, 1)`, p.ID); err != nil {
			return mapError(err)
		}
		first := p.Clone()
		first.Version = 1
		first.Archived = false
		var err error
		created, err = insertPersonaVersion(ctx, tx, first)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create persona %s: %w", p.ID, err)
	}
	return created, nil
}

// Get retrieves the current version of a persona
func (s personaStore) Get(ctx context.Context, id string) (*types.Persona, error) {
	p, err := scanPersona(s.pool.QueryRow(ctx,
		`SELECT `+personaColumns+`
		 FROM persona_versions v
		 JOIN personas p ON p.id = v.persona_id AND p.version = v.version
		 WHERE v.persona_id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to get persona %s: %w", id, mapError(err))
	}
	return p, nil
}

// GetVersion retrieves a specific historical version
func (s personaStore) GetVersion(ctx context.Context, id string, version int) (*types.Persona, error) {
	p, err := scanPersona(s.pool.QueryRow(ctx,
		`SELECT `+personaColumns+` FROM persona_versions v WHERE v.persona_id = $1 AND v.version = $2`,
		id, version,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to get persona %s v%d: %w", id, version, mapError(err))
	}
	return p, nil
}

// List returns the current version of every persona, archived ones included
func (s personaStore) List(ctx context.Context) ([]types.Persona, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+personaColumns+`
		 FROM persona_versions v
		 JOIN personas p ON p.id = v.persona_id AND p.version = v.version
		 ORDER BY v.persona_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}
	defer rows.Close()

	var out []types.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan persona: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// bumpVersion advances the persona's version if it still equals expected.
// A zero expected skips the check.
func bumpVersion(ctx context.Context, tx pgx.Tx, id string, expected int) (int, error) {
	var current int
	err := tx.QueryRow(ctx, `SELECT version FROM personas WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		return 0, mapError(err)
	}
	if expected != 0 && expected != current {
		return 0, store.ErrStaleWrite
	}
	if _, err := tx.Exec(ctx, `UPDATE personas SET version = $2 WHERE id = $1`, id, current+1); err != nil {
		return 0, err
	}
	return current + 1, nil
}

// Update writes a new version; p.Version must match the stored version
func (s personaStore) Update(ctx context.Context, p *types.Persona) (*types.Persona, error) {
	var updated *types.Persona
	if p.Version == 0 {
		return nil, fmt.Errorf("failed to update persona %s: %w", p.ID, store.ErrStaleWrite)
	}
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		next, err := bumpVersion(ctx, tx, p.ID, p.Version)
		if err != nil {
			return err
		}
		var archived bool
		if err := tx.QueryRow(ctx,
			`SELECT archived FROM persona_versions WHERE persona_id = $1 AND version = $2`,
			p.ID, p.Version,
		).Scan(&archived); err != nil {
			return mapError(err)
		}
		v := p.Clone()
		v.Version = next
		v.Archived = archived
		updated, err = insertPersonaVersion(ctx, tx, v)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update persona %s: %w", p.ID, err)
	}
	return updated, nil
}

// Archive soft-deletes the persona by writing an archived version
func (s personaStore) Archive(ctx context.Context, id string, expectedVersion int) (*types.Persona, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Archived && (expectedVersion == 0 || expectedVersion == current.Version) {
		return current, nil
	}

	var archived *types.Persona
	err = withTx(ctx, s.pool, func(tx pgx.Tx) error {
		next, err := bumpVersion(ctx, tx, id, expectedVersion)
		if err != nil {
			return err
		}
		v, err := scanPersona(tx.QueryRow(ctx,
			`SELECT `+personaColumns+` FROM persona_versions v WHERE v.persona_id = $1 AND v.version = $2`,
			id, next-1,
		))
		if err != nil {
			return mapError(err)
		}
		v.Version = next
		v.Archived = true
		archived, err = insertPersonaVersion(ctx, tx, v)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to archive persona %s: %w", id, err)
	}
	return archived, nil
}
