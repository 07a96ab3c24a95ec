package scheduler

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/golembase/indexer/pkg/repository"
)

// TestExpireBlockOnEmptyDatabase exercises ExpireBlock against a live
// Postgres instance; skipped unless INDEXER_TEST_DATABASE_URL names one.
func TestExpireBlockOnEmptyDatabase(t *testing.T) {
	dsn := os.Getenv("INDEXER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("set INDEXER_TEST_DATABASE_URL to run scheduler integration tests")
	}
	if testing.Short() {
		t.Skip("skipping scheduler integration test in short mode")
	}

	ctx := context.Background()
	repo, err := repository.OpenDSN(ctx, dsn)
	require.NoError(t, err)
	defer repo.Close()

	sched := New()
	err = repo.WithTx(ctx, func(tx *repository.Tx) error {
		ops, err := sched.ExpireBlock(ctx, tx, 1, 0)
		require.NoError(t, err)
		require.Empty(t, ops)
		return nil
	})
	require.NoError(t, err)
}
