package search

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

func TestCVEsForAsset(t *testing.T) {
	store := testutil.NewMemStore()
	store.AddAsset(model.Asset{Key: "asset-1", Name: "edge proxy", Text: "nginx"})

	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	seedRecord(t, store, database.CollCVE, "CVE-2024-0001", "buffer overflow in nginx resolver", day)
	seedRecord(t, store, database.CollCVE, "CVE-2024-0002", "unrelated kernel flaw", day)
	seedRecord(t, store, database.CollCvss, "CVE-2024-0003", "Nginx request smuggling", day)
	seedRecord(t, store, database.CollBackup, "CVE-2024-0004", "nginx: HTTP/2 rapid reset", day)

	resolver := NewResolver(store, testLogger())
	matches, err := resolver.CVEsForAsset(context.Background(), "asset-1")
	require.NoError(t, err)

	// case-insensitive matches, concatenated in store order
	require.Len(t, matches, 3)
	assert.Equal(t, "CVE-2024-0001", matches[0].ID)
	assert.Equal(t, "CVE-2024-0003", matches[1].ID)
	assert.Equal(t, "CVE-2024-0004", matches[2].ID)
}

func TestCVEsForAssetNoMatches(t *testing.T) {
	store := testutil.NewMemStore()
	store.AddAsset(model.Asset{Key: "asset-1", Text: "a term no record mentions"})
	seedRecord(t, store, database.CollCVE, "CVE-2024-0001", "something else", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC))

	resolver := NewResolver(store, testLogger())
	matches, err := resolver.CVEsForAsset(context.Background(), "asset-1")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCVEsForAssetUnknownAsset(t *testing.T) {
	store := testutil.NewMemStore()

	resolver := NewResolver(store, testLogger())
	matches, err := resolver.CVEsForAsset(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAssetNotFound)
	assert.Nil(t, matches)
}
