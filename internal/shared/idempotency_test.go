package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsSerializationFailure(t *testing.T) {
	wrapped := fmt.Errorf("numbering: next: %w", &pgconn.PgError{Code: "40001"})
	assert.True(t, IsSerializationFailure(wrapped))
	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsSerializationFailure(errors.New("boom")))
}

func TestIsUniqueViolationMatchesConstraint(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_documents_number"})
	assert.True(t, IsUniqueViolation(err, "uq_documents_number"))
	assert.True(t, IsUniqueViolation(err, ""))
	assert.False(t, IsUniqueViolation(err, "contacts_tax_id_key"))
}

func TestSourceIDIsDeterministic(t *testing.T) {
	assert.Equal(t, SourceID("invoice", 7), SourceID("invoice", 7))
	assert.NotEqual(t, SourceID("invoice", 7), SourceID("expense", 7))
}
