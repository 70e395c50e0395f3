package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonathan/persona-transformer/internal/types"
)

type contentStore struct {
	pool *pgxpool.Pool
}

// Create inserts immutable source content
func (s contentStore) Create(ctx context.Context, content *types.SourceContent) error {
	sections, err := json.Marshal(content.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal sections: %w", err)
	}
	metadata, err := json.Marshal(content.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	ingestedAt := content.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO source_contents (id, title, sections, metadata, ingested_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		content.ID, content.Title, sections, metadata, ingestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create content %s: %w", content.ID, mapError(err))
	}
	content.IngestedAt = ingestedAt
	return nil
}

// Get retrieves source content by ID
func (s contentStore) Get(ctx context.Context, id string) (*types.SourceContent, error) {
	var c types.SourceContent
	var sections, metadata []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, sections, metadata, ingested_at FROM source_contents WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Title, &sections, &metadata, &c.IngestedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get content %s: %w", id, mapError(err))
	}
	if err := json.Unmarshal(sections, &c.Sections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sections: %w", err)
	}
	if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &c, nil
}
