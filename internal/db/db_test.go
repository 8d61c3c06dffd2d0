package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestWrapNotFound(t *testing.T) {
	assert.NoError(t, WrapNotFound(nil))
	assert.ErrorIs(t, WrapNotFound(pgx.ErrNoRows), ErrNotFound)
	assert.True(t, IsNotFound(fmt.Errorf("scan: %w", pgx.ErrNoRows)))

	other := errors.New("connection reset")
	wrapped := WrapNotFound(other)
	assert.ErrorIs(t, wrapped, other)
	assert.False(t, IsNotFound(wrapped))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization", &pgconn.PgError{Code: CodeSerializationFailure}, true},
		{"deadlock", fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeDeadlockDetected}), true},
		{"lock timeout", &pgconn.PgError{Code: CodeLockNotAvailable}, true},
		{"deadline", fmt.Errorf("begin: %w", context.DeadlineExceeded), true},
		{"unique", &pgconn.PgError{Code: CodeUniqueViolation}, false},
		{"plain", errors.New("syntax"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestCode(t *testing.T) {
	assert.Equal(t, CodeExclusionViolation, Code(fmt.Errorf("x: %w", &pgconn.PgError{Code: CodeExclusionViolation})))
	assert.Equal(t, "", Code(errors.New("x")))
}
