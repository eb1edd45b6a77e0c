// Package orchestratorapi is the HTTP client for the external test-run
// orchestrator. Test execution, screenshot diffing and retry handling
// all live on the orchestrator side; this client creates runs, polls
// their progress and surfaces results.
package orchestratorapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/chronograph-pe/report-diffs-action/internal/visual/domain"
)

const defaultBaseURL = "https://app.meticulous.ai/api"

// defaultPollInterval is how often a running test run is re-fetched.
const defaultPollInterval = 5 * time.Second

// Client talks to the orchestrator's REST API.
type Client struct {
	http         *retryablehttp.Client
	baseURL      string
	apiToken     string
	log          *log.Logger
	pollInterval time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API origin.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithPollInterval overrides the run polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// New creates an orchestrator client authenticated with apiToken.
func New(apiToken string, logger *log.Logger, opts ...Option) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 4
	httpClient.RetryWaitMin = time.Second
	httpClient.RetryWaitMax = 10 * time.Second
	httpClient.Logger = nil

	c := &Client{
		http:         httpClient,
		baseURL:      defaultBaseURL,
		apiToken:     apiToken,
		log:          logger,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type runListing struct {
	TestRuns []struct {
		ID string `json:"id"`
	} `json:"testRuns"`
}

func (c *Client) listCompletedRuns(ctx context.Context, suiteID, commitSHA string) (*runListing, error) {
	query := url.Values{"commitSha": {commitSHA}, "status": {"completed"}}
	if suiteID != "" {
		query.Set("suiteId", suiteID)
	}

	var listing runListing
	if err := c.get(ctx, "/test-runs?"+query.Encode(), &listing); err != nil {
		return nil, fmt.Errorf("listing test runs for %s: %w", domain.ShortSHA(commitSHA), err)
	}
	return &listing, nil
}

// HasCompletedRun reports whether a completed run exists for the commit
// (and suite, when one is configured).
func (c *Client) HasCompletedRun(ctx context.Context, suiteID, commitSHA string) (bool, error) {
	listing, err := c.listCompletedRuns(ctx, suiteID, commitSHA)
	if err != nil {
		return false, err
	}
	return len(listing.TestRuns) > 0, nil
}

// LatestCompletedRun fetches the newest completed run for the commit,
// or nil when none exists.
func (c *Client) LatestCompletedRun(ctx context.Context, suiteID, commitSHA string) (*domain.TestRunResult, error) {
	listing, err := c.listCompletedRuns(ctx, suiteID, commitSHA)
	if err != nil {
		return nil, err
	}
	if len(listing.TestRuns) == 0 {
		return nil, nil
	}

	var state runState
	if err := c.get(ctx, "/test-runs/"+listing.TestRuns[0].ID, &state); err != nil {
		return nil, fmt.Errorf("fetching test run %s: %w", listing.TestRuns[0].ID, err)
	}
	return toResult(&state), nil
}

type scheduleRequest struct {
	CommitSHA string `json:"commitSha"`
	SuiteID   string `json:"suiteId,omitempty"`
}

// ScheduleRun enqueues a baseline run for the commit in the background.
// Fire-and-forget from the caller's perspective; completion is not
// awaited.
func (c *Client) ScheduleRun(ctx context.Context, suiteID, commitSHA string) error {
	req := scheduleRequest{CommitSHA: commitSHA, SuiteID: suiteID}
	if err := c.post(ctx, "/test-runs", req, nil); err != nil {
		return fmt.Errorf("scheduling baseline run for %s: %w", domain.ShortSHA(commitSHA), err)
	}
	return nil
}

type executeRequest struct {
	TestsFile             string                       `json:"testsFile,omitempty"`
	CommitSHA             string                       `json:"commitSha"`
	BaseCommitSHA         string                       `json:"baseCommitSha,omitempty"`
	AppURL                string                       `json:"appUrl"`
	SuiteID               string                       `json:"suiteId,omitempty"`
	ExecutionOptions      domain.ExecutionOptions      `json:"executionOptions"`
	ScreenshottingOptions domain.ScreenshottingOptions `json:"screenshottingOptions"`
	ParallelTasks         int                          `json:"parallelTasks"`
	MaxRetriesOnFailure   int                          `json:"maxRetriesOnFailure"`
	RerunTestsCount       int                          `json:"rerunTestsCount"`
	Environment           map[string]string            `json:"environment,omitempty"`
	DataDir               string                       `json:"dataDir,omitempty"`
}

type runState struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Tests  []struct {
		Name        string   `json:"name"`
		State       string   `json:"state"`
		Screenshots []string `json:"screenshots,omitempty"`
	} `json:"tests"`
}

// ExecuteTestRun creates a run and polls it to completion, invoking
// OnTestRunCreated once and OnTestFinished for each newly completed
// test. Cancellation of ctx abandons the poll.
func (c *Client) ExecuteTestRun(ctx context.Context, p domain.ExecuteParams) (*domain.TestRunResult, error) {
	req := executeRequest{
		TestsFile:             p.TestsFile,
		CommitSHA:             p.HeadSHA,
		BaseCommitSHA:         p.BaseSHA,
		AppURL:                p.TargetURL,
		SuiteID:               p.SuiteID,
		ExecutionOptions:      p.Execution,
		ScreenshottingOptions: p.Screenshotting,
		ParallelTasks:         p.ParallelTasks,
		MaxRetriesOnFailure:   p.MaxRetriesOnFailure,
		RerunTestsCount:       p.RerunTestsCount,
		Environment:           p.Environment,
		DataDir:               p.DataDir,
	}

	var created runState
	if err := c.post(ctx, "/test-runs/execute", req, &created); err != nil {
		return nil, fmt.Errorf("creating test run: %w", err)
	}
	c.log.Info("test run created", "run", created.ID, "url", created.URL)
	if p.OnTestRunCreated != nil {
		p.OnTestRunCreated(domain.RunCreated{ID: created.ID, URL: created.URL})
	}

	return c.pollRun(ctx, created.ID, p.OnTestFinished)
}

func (c *Client) pollRun(
	ctx context.Context,
	runID string,
	onTestFinished func(domain.FinishedTest),
) (*domain.TestRunResult, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	reported := 0
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for test run %s: %w", runID, ctx.Err())
		case <-ticker.C:
		}

		var state runState
		if err := c.get(ctx, "/test-runs/"+runID, &state); err != nil {
			return nil, fmt.Errorf("fetching test run %s: %w", runID, err)
		}

		// The orchestrator appends tests as they finish; report only
		// the ones we have not seen yet. The response is external data,
		// so a poll may still return fewer tests than the last one.
		if reported > len(state.Tests) {
			reported = len(state.Tests)
		}
		for _, test := range state.Tests[reported:] {
			if onTestFinished != nil {
				onTestFinished(domain.FinishedTest{
					Name:        test.Name,
					State:       domain.TestState(test.State),
					Screenshots: test.Screenshots,
				})
			}
		}
		reported = len(state.Tests)

		switch state.Status {
		case "completed":
			return toResult(&state), nil
		case "failed":
			if state.Error != "" {
				return nil, fmt.Errorf("test run %s failed: %s", runID, state.Error)
			}
			return nil, fmt.Errorf("test run %s failed", runID)
		default:
			c.log.Debug("test run in progress", "run", runID,
				"status", state.Status, "finished", reported)
		}
	}
}

func toResult(state *runState) *domain.TestRunResult {
	result := &domain.TestRunResult{RunID: state.ID, URL: state.URL}
	for _, test := range state.Tests {
		result.Tests = append(result.Tests, domain.FinishedTest{
			Name:        test.Name,
			State:       domain.TestState(test.State),
			Screenshots: test.Screenshots,
		})
	}
	return result
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	// Retries of a POST are safe because the orchestrator de-duplicates
	// on this key.
	req.Header.Set("Idempotency-Key", uuid.NewString())
	return c.do(req, out)
}

func (c *Client) do(req *retryablehttp.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	//nolint:errcheck // Deferred close, error not actionable
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("orchestrator returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
