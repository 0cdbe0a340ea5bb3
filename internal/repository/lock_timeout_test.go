package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/drug-budget-ledger/internal/repository"
	"github.com/josh-kwaku/drug-budget-ledger/internal/testutil"
)

func TestSetLockTimeout_SubMillisecondStillBounds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, repository.SetLockTimeout(ctx, tx, 500*time.Microsecond))

	var setting string
	require.NoError(t, tx.QueryRowContext(ctx, `SHOW lock_timeout`).Scan(&setting))
	assert.Equal(t, "1ms", setting)
}
