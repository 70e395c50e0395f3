package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonathan/persona-transformer/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, store.ErrRecordNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), store.ErrRecordNotFound},
		{"unique violation", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "personas_pkey"}, store.ErrDuplicateKey},
		{"foreign key violation", &pgconn.PgError{Code: pgForeignKeyViolation}, store.ErrRecordNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}
}

func TestMapError_PassesThroughUnknown(t *testing.T) {
	assert.NoError(t, mapError(nil))

	other := errors.New("connection reset")
	assert.Equal(t, other, mapError(other))

	check := &pgconn.PgError{Code: "23514"}
	assert.Equal(t, error(check), mapError(check))
}

func TestNonNil(t *testing.T) {
	assert.Equal(t, []string{}, nonNil[string](nil))
	assert.Equal(t, []string{"a"}, nonNil([]string{"a"}))
}
