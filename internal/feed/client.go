// Package feed implements the three vulnerability feed ingestors: the
// windowed NVD pull, the CVSS-vector-filtered rescan and the Red Hat backup
// pull. Each one drives the shared fetch client and normalizers, then hands
// the accumulated records to the batch persister.
package feed

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// FeedError reports a failed feed request: a non-success HTTP status or a
// response body that failed the feed's shape check. Status is 0 when the
// request never produced a response.
type FeedError struct {
	Status int
	Body   string
	Err    error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed request failed: %v", e.Err)
	}
	return fmt.Sprintf("feed request failed with status %d: %s", e.Status, e.Body)
}

func (e *FeedError) Unwrap() error { return e.Err }

// RetryPolicy is the per-request retry budget. It is passed in explicitly so
// tests can run with zero delays.
type RetryPolicy struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // fixed part of the backoff sleep
	Jitter     time.Duration // random part, uniform in [0, Jitter)
}

// DefaultRetryPolicy matches the upstream feed guidance: up to 10 retries
// with a 30-40s pause between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 10, BaseDelay: 30 * time.Second, Jitter: 10 * time.Second}
}

// Client issues single paginated feed requests with retry. The backoff sleep
// honors context cancellation so shutdown never waits out a full delay.
type Client struct {
	http   *http.Client
	policy RetryPolicy
	log    *zap.SugaredLogger
}

// NewClient builds a fetch client with a bounded per-request timeout.
func NewClient(policy RetryPolicy, log *zap.SugaredLogger) *Client {
	return &Client{
		http:   &http.Client{Timeout: 30 * time.Second},
		policy: policy,
		log:    log,
	}
}

// GetJSON issues one GET per attempt and hands the body to parse, which
// unmarshals and shape-checks it. Any failure (transport, status, shape)
// consumes one attempt; after MaxRetries+1 failed attempts the last error is
// propagated.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, parse func(body []byte) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = c.getOnce(ctx, url, headers, parse); err == nil {
			return nil
		}
		if attempt >= c.policy.MaxRetries {
			return err
		}

		delay := c.policy.BaseDelay + jitterDuration(c.policy.Jitter)
		c.log.Warnf("fetch of %s failed (%v), retrying in %s (%d retries remaining)",
			url, err, delay, c.policy.MaxRetries-attempt)
		if serr := sleepContext(ctx, delay); serr != nil {
			return serr
		}
	}
}

func (c *Client) getOnce(ctx context.Context, url string, headers map[string]string, parse func(body []byte) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return xerrors.Errorf("unable to build request for %q: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &FeedError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &FeedError{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FeedError{Status: resp.StatusCode, Body: excerpt(body)}
	}

	if err := parse(body); err != nil {
		return &FeedError{Status: resp.StatusCode, Body: excerpt(body), Err: err}
	}
	return nil
}

// excerpt bounds the body fragment carried on a FeedError.
func excerpt(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}

func jitterDuration(jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(jitter))) // #nosec G404
}

// sleepContext sleeps for d unless the context is cancelled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
