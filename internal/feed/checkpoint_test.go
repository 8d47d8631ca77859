package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/internal/testutil"
	"github.com/vulnfed/vulnfed-backend/model"
)

func TestResolveCheckpoint(t *testing.T) {
	ctx := context.Background()
	fallback := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty store yields the fallback", func(t *testing.T) {
		store := testutil.NewMemStore()
		got, err := resolveCheckpoint(ctx, store, database.CollCVE, fallback)
		require.NoError(t, err)
		assert.Equal(t, fallback, got)
	})

	t.Run("returns the maximum lastModified", func(t *testing.T) {
		store := testutil.NewMemStore()
		t1 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		t2 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		t3 := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.UpsertCVEs(ctx, database.CollCVE, []model.CVERecord{
			{ID: "CVE-1", LastModified: &t2},
			{ID: "CVE-2", LastModified: &t3},
			{ID: "CVE-3", LastModified: &t1},
		}))

		got, err := resolveCheckpoint(ctx, store, database.CollCVE, fallback)
		require.NoError(t, err)
		assert.Equal(t, t3, got)
	})
}
