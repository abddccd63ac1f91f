package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func TestClassifyTransient(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03", "57014", "08006"} {
		err := Classify(fmt.Errorf("insert: %w", &pgconn.PgError{Code: code}))
		assert.True(t, shared.IsRetryable(err), code)
	}
	assert.True(t, shared.IsRetryable(Classify(context.DeadlineExceeded)))
}

func TestClassifyKeepsPermanentErrors(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "uq_accounts_tenant_code"}
	err := Classify(unique)
	assert.False(t, shared.IsRetryable(err))
	assert.Same(t, unique, err)

	assert.ErrorIs(t, Classify(shared.ErrNoOpenYear), shared.ErrNoOpenYear)
	assert.Nil(t, Classify(nil))
}

func TestConstraintHelpers(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "uq_journal_entries_number"}
	assert.True(t, IsUniqueViolation(unique, "uq_journal_entries_number"))
	assert.True(t, IsUniqueViolation(unique, ""))
	assert.False(t, IsUniqueViolation(unique, "uq_accounts_tenant_code"))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))

	assert.True(t, IsForeignKeyViolation(fmt.Errorf("line: %w", &pgconn.PgError{Code: "23503"})))
	assert.False(t, IsForeignKeyViolation(unique))

	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("boom")))
}
