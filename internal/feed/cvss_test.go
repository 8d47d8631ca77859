package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnfed/vulnfed-backend/config"
	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/internal/testutil"
)

func newTestCVSSIngestor(store database.Store, baseURL string) *CVSSIngestor {
	return NewCVSSIngestor(store, NewClient(zeroDelayPolicy(0), testLogger()), config.CVSSConfig{
		BaseURL:  baseURL,
		Vector:   "AV:L/AC:L/PR:L/UI:R/S:U/C:N/I:L/A:L",
		PageSize: 100,
	}, "", testLogger())
}

func TestCVSSIngestorFullRescan(t *testing.T) {
	hits := 0
	var vectors []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vectors = append(vectors, r.URL.Query().Get("cvssV3Metrics"))
		w.Header().Set("Content-Type", "application/json")
		fakeNVDHandler(t, 250, &hits)(w, r)
	}))
	defer ts.Close()

	store := testutil.NewMemStore()
	ing := newTestCVSSIngestor(store, ts.URL)

	require.NoError(t, ing.Run(context.Background()))

	// totalResults=250 at 100 per page takes exactly 3 fetches
	assert.Equal(t, 3, hits)
	assert.Equal(t, 250, store.Count(database.CollCvss))
	// the whole rescan persists as one set
	assert.Equal(t, []int{250}, store.UpsertBatches[database.CollCvss])
	for _, v := range vectors {
		assert.Equal(t, "AV:L/AC:L/PR:L/UI:R/S:U/C:N/I:L/A:L", v)
	}
}

func TestCVSSIngestorEmptyFeed(t *testing.T) {
	hits := 0
	ts := httptest.NewServer(fakeNVDHandler(t, 0, &hits))
	defer ts.Close()

	store := testutil.NewMemStore()
	ing := newTestCVSSIngestor(store, ts.URL)

	require.NoError(t, ing.Run(context.Background()))
	assert.Equal(t, 1, hits)
	assert.Equal(t, 0, store.Count(database.CollCvss))
	// nothing to persist means no upsert call
	assert.Empty(t, store.UpsertBatches[database.CollCvss])
}

func TestCVSSIngestorMidRescanFailureDiscards(t *testing.T) {
	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits > 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		h := 0
		fakeNVDHandler(t, 250, &h)(w, r)
	}))
	defer ts.Close()

	store := testutil.NewMemStore()
	ing := newTestCVSSIngestor(store, ts.URL)

	err := ing.Run(context.Background())
	require.Error(t, err)

	var feedErr *FeedError
	require.ErrorAs(t, err, &feedErr)
	assert.Equal(t, http.StatusTooManyRequests, feedErr.Status)
	// the partial rescan is dropped wholesale
	assert.Equal(t, 0, store.Count(database.CollCvss))
}
