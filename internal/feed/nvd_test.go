package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnfed/vulnfed-backend/config"
	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/internal/testutil"
	"github.com/vulnfed/vulnfed-backend/model"
)

// fakeNVDServer serves a fixed total of synthetic records paginated by
// startIndex/resultsPerPage the way the NVD API 2.0 does.
func fakeNVDServer(t *testing.T, total int, hits *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(fakeNVDHandler(t, total, hits))
}

func fakeNVDHandler(t *testing.T, total int, hits *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*hits++
		startIndex, _ := strconv.Atoi(r.URL.Query().Get("startIndex"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("resultsPerPage"))

		count := total - startIndex
		if count > pageSize {
			count = pageSize
		}
		if count < 0 {
			count = 0
		}

		items := make([]map[string]interface{}, 0, count)
		for i := 0; i < count; i++ {
			items = append(items, map[string]interface{}{
				"cve": map[string]interface{}{
					"id":           fmt.Sprintf("CVE-2024-%05d", startIndex+i),
					"published":    "2024-03-01T00:00:00.000",
					"lastModified": "2024-03-02T00:00:00.000",
				},
			})
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
			"resultsPerPage":  count,
			"startIndex":      startIndex,
			"totalResults":    total,
			"vulnerabilities": items,
		}))
	}
}

func newTestNVDIngestor(store database.Store, baseURL string, now time.Time) *NVDIngestor {
	ing := NewNVDIngestor(store, NewClient(zeroDelayPolicy(0), testLogger()), config.NVDConfig{
		BaseURL:      baseURL,
		PageSize:     100,
		WindowDays:   365,
		DefaultStart: "2024-01-01",
	}, testLogger())
	ing.now = func() time.Time { return now }
	return ing
}

func TestNVDIngestorPagination(t *testing.T) {
	hits := 0
	ts := fakeNVDServer(t, 250, &hits)
	defer ts.Close()

	store := testutil.NewMemStore()
	ing := newTestNVDIngestor(store, ts.URL, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, ing.Run(context.Background()))

	// totalResults=250 at 100 per page takes exactly 3 fetches
	assert.Equal(t, 3, hits)
	assert.Equal(t, 250, store.Count(database.CollCVE))
	// one persist per window
	assert.Equal(t, []int{250}, store.UpsertBatches[database.CollCVE])
}

func TestNVDIngestorZeroWindows(t *testing.T) {
	hits := 0
	ts := fakeNVDServer(t, 100, &hits)
	defer ts.Close()

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := testutil.NewMemStore()
	require.NoError(t, store.UpsertCVEs(context.Background(), database.CollCVE, []model.CVERecord{
		{ID: "CVE-2024-1", LastModified: &now},
	}))

	ing := newTestNVDIngestor(store, ts.URL, now)
	require.NoError(t, ing.Run(context.Background()))

	// resume point equals "now", so the window loop never runs
	assert.Equal(t, 0, hits)
}

func TestNVDIngestorMultipleWindows(t *testing.T) {
	hits := 0
	ts := fakeNVDServer(t, 50, &hits)
	defer ts.Close()

	store := testutil.NewMemStore()
	ing := newTestNVDIngestor(store, ts.URL, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	ing.cfg.WindowDays = 60 // 2024-01-01..2024-06-01 needs three 60-day windows

	require.NoError(t, ing.Run(context.Background()))

	assert.Equal(t, 3, hits)
	assert.Len(t, store.UpsertBatches[database.CollCVE], 3)
}

func TestNVDIngestorConfiguredBatchSize(t *testing.T) {
	hits := 0
	ts := fakeNVDServer(t, 250, &hits)
	defer ts.Close()

	store := testutil.NewMemStore()
	ing := NewNVDIngestor(store, NewClient(zeroDelayPolicy(0), testLogger()), config.NVDConfig{
		BaseURL:      ts.URL,
		PageSize:     100,
		WindowDays:   365,
		DefaultStart: "2024-01-01",
		BatchSize:    100,
	}, testLogger())
	ing.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, ing.Run(context.Background()))

	// the window's 250 records persist in configured batches
	assert.Equal(t, []int{100, 100, 50}, store.UpsertBatches[database.CollCVE])
	assert.Equal(t, 250, store.Count(database.CollCVE))
}

func TestNVDIngestorAbortDiscardsWindow(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer ts.Close()

	store := testutil.NewMemStore()
	ing := newTestNVDIngestor(store, ts.URL, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	err := ing.Run(context.Background())
	require.Error(t, err)

	var feedErr *FeedError
	assert.ErrorAs(t, err, &feedErr)
	// nothing from the failed window may be persisted
	assert.Equal(t, 0, store.Count(database.CollCVE))
}

func TestNVDIngestorShapeCheck(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"totalResults": 10}`)) // missing vulnerabilities
	}))
	defer ts.Close()

	store := testutil.NewMemStore()
	ing := newTestNVDIngestor(store, ts.URL, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	err := ing.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vulnerabilities")
}
