package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// zeroDelayPolicy keeps retry behavior but removes the backoff sleeps.
func zeroDelayPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries}
}

func TestClientRetryExhaustion(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		http.Error(w, "feed unavailable", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client := NewClient(zeroDelayPolicy(3), testLogger())
	err := client.GetJSON(context.Background(), ts.URL, nil, func([]byte) error { return nil })

	require.Error(t, err)
	assert.Equal(t, 4, attempts, "MaxRetries=3 must give MaxRetries+1 total attempts")

	var feedErr *FeedError
	require.ErrorAs(t, err, &feedErr)
	assert.Equal(t, http.StatusServiceUnavailable, feedErr.Status)
	assert.Contains(t, feedErr.Body, "feed unavailable")
}

func TestClientRecoversWithinBudget(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "try again", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"value": 42})
	}))
	defer ts.Close()

	var got map[string]int
	client := NewClient(zeroDelayPolicy(10), testLogger())
	err := client.GetJSON(context.Background(), ts.URL, nil, func(body []byte) error {
		return json.Unmarshal(body, &got)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 42, got["value"])
}

func TestClientShapeFailureConsumesAttempts(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		_, _ = w.Write([]byte(`{"unexpected": true}`))
	}))
	defer ts.Close()

	client := NewClient(zeroDelayPolicy(2), testLogger())
	err := client.GetJSON(context.Background(), ts.URL, nil, func([]byte) error {
		return xerrors.New("missing expected array")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var feedErr *FeedError
	require.ErrorAs(t, err, &feedErr)
	assert.Equal(t, http.StatusOK, feedErr.Status)
}

func TestClientSendsHeaders(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("apiKey"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewClient(zeroDelayPolicy(0), testLogger())
	err := client.GetJSON(context.Background(), ts.URL, map[string]string{"apiKey": "secret"}, func([]byte) error { return nil })
	require.NoError(t, err)
}

func TestClientBackoffIsCancellable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()

	// A huge backoff must not delay shutdown.
	client := NewClient(RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := client.GetJSON(ctx, ts.URL, nil, func([]byte) error { return nil })

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
