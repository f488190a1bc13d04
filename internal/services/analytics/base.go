package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	xhttp "IgniteX/pkg/http"
)

// HTTPServiceBase binds a JSON client to the model service base URL.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
}

// NewHTTPServiceBase builds a client bound to baseURL. A non-positive timeout falls back to 3s.
func NewHTTPServiceBase(baseURL string, timeout time.Duration) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPServiceBase{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithUserAgent("ignitex-analytics")),
	}
}

var errNotConfigured = errors.New("analytics service url not configured")

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload, dest interface{}) error {
	if b.baseURL == "" {
		return errNotConfigured
	}
	if err := b.client.PostJSON(ctx, b.baseURL+path, payload, dest, nil); err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry repeats retryable failures with linear backoff. Client
// errors (4xx other than 429) return at once.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload, dest interface{}, attempts int) error {
	var err error
	for i := 1; ; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil || i >= attempts || !xhttp.Retryable(err) {
			return err
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
