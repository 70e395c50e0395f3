// Package db provides the PostgreSQL implementation of the store contract.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jonathan/persona-transformer/internal/db/migrations"
	"github.com/jonathan/persona-transformer/internal/store"
)

// Postgres error codes mapped onto store sentinels
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Make sure we conform to the store contract
var _ store.Store = (*DB)(nil)

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

// Migrate applies all pending embedded migrations
func (db *DB) Migrate() error {
	return migrations.Up(stdlib.OpenDBFromPool(db.pool))
}

// MigrationStatus reports the schema version against the embedded migrations
func (db *DB) MigrationStatus() (migrations.Status, error) {
	return migrations.CheckStatus(stdlib.OpenDBFromPool(db.pool))
}

// Rollback reverts the given number of migrations
func (db *DB) Rollback(steps int) error {
	return migrations.Down(stdlib.OpenDBFromPool(db.pool), steps)
}

func (db *DB) Content() store.Content { return contentStore{db.pool} }
func (db *DB) Persona() store.Persona { return personaStore{db.pool} }
func (db *DB) Job() store.Job { return jobStore{db.pool} }
func (db *DB) Revision() store.Revision { return revisionStore{db.pool} }

// mapError translates driver errors into store sentinels
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrRecordNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", store.ErrDuplicateKey, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", store.ErrRecordNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

// withTx runs fn inside a transaction, committing on success
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
