// Package urlprobe verifies the target URL answers before a run is
// handed to the executor.
package urlprobe

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/chronograph-pe/report-diffs-action/internal/visual/domain"
)

// Adapter performs a lightweight reachability check with a few quick
// retries. Reachable means any HTTP response at all; deciding whether
// the app renders correctly is the executor's job.
type Adapter struct {
	client *retryablehttp.Client
	log    *log.Logger
}

// New creates a connectivity prober.
func New(logger *log.Logger) *Adapter {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil
	// Only transport-level failures are retried; any response means the
	// origin is up.
	client.CheckRetry = func(_ context.Context, _ *http.Response, err error) (bool, error) {
		return err != nil, nil
	}
	return &Adapter{client: client, log: logger}
}

// Probe fails fast with an UnreachableError when the origin does not
// answer. A status >= 400 still counts as reachable but is logged.
func (a *Adapter) Probe(ctx context.Context, target string) error {
	resp, err := a.do(ctx, http.MethodHead, target)
	if err != nil {
		return domain.NewUnreachableError(target, err)
	}
	closeBody(resp)

	// Some servers reject HEAD outright; confirm with GET before
	// reading anything into the status.
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		resp, err = a.do(ctx, http.MethodGet, target)
		if err != nil {
			return domain.NewUnreachableError(target, err)
		}
		closeBody(resp)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		a.log.Warn("target answered with an error status, continuing",
			"url", target, "status", resp.StatusCode)
	} else {
		a.log.Debug("target reachable", "url", target, "status", resp.StatusCode)
	}
	return nil
}

func (a *Adapter) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	return a.client.Do(req)
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		//nolint:errcheck // Probe response body is discarded
		_ = resp.Body.Close()
	}
}
