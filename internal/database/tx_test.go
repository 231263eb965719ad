package database_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"ms-booking/internal/database"
	"ms-booking/internal/testutil"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassifiers(t *testing.T) {
	badUUID := fmt.Errorf("load event abc: %w", &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`})
	check := fmt.Errorf("reserve: %w", &pq.Error{Code: "23514", Constraint: "ticket_types_ledger_chk"})
	unique := &pq.Error{Code: "23505"}

	assert.True(t, database.IsInvalidInput(badUUID))
	assert.True(t, database.IsNotFound(badUUID))
	assert.True(t, database.IsNotFound(fmt.Errorf("wrapped: %w", sql.ErrNoRows)))
	assert.False(t, database.IsNotFound(errors.New("connection reset")))
	assert.False(t, database.IsInvalidInput(nil))

	assert.True(t, database.IsCheckViolation(check))
	assert.False(t, database.IsCheckViolation(unique))
	assert.True(t, database.IsUniqueViolation(unique))
	assert.False(t, database.IsUniqueViolation(check))
}

func TestWithTxJoinsOuterTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	err := database.WithTx(ctx, db, func(outer context.Context) error {
		require.True(t, database.InTx(outer))
		return database.WithTx(outer, db, func(inner context.Context) error {
			assert.Equal(t, database.Conn(outer, db), database.Conn(inner, db))
			return nil
		})
	})
	require.NoError(t, err)
	assert.False(t, database.InTx(ctx))
}
