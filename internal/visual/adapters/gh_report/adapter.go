// Package ghreport posts run progress and results back to the pull
// request via commit statuses and a marker-keyed PR comment.
package ghreport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/v68/github"

	"github.com/chronograph-pe/report-diffs-action/internal/debounce"
	"github.com/chronograph-pe/report-diffs-action/internal/visual/domain"
)

// StatusContext is the commit-status context the action reports under.
const StatusContext = "visual-tests"

// commentMarker makes the PR comment findable for upserts.
const commentMarker = "<!-- report-diffs-action -->"

// Debounce windows for progress updates: a flush happens after a quiet
// period, and no later than the max wait after the first completion in
// a burst. Protects the GitHub API from one call per finished test.
const (
	DebounceQuiet   = 5 * time.Second
	DebounceMaxWait = 15 * time.Second
)

// State tracks the reporter lifecycle.
type State int

const (
	StateCreated State = iota
	StateStarted
	StateFinished
	StateErrored
)

// Target binds a Reporter to one commit pair. PRNumber zero means no
// PR comment is posted (push and manual-dispatch events), statuses only.
type Target struct {
	Owner    string
	Repo     string
	HeadSHA  string
	BaseSHA  string
	BaseRef  string
	SuiteID  string
	PRNumber int
}

// Reporter is the results reporter state machine:
// created → started → {finished | errored}. Exactly one terminal call
// is expected per action invocation; extra terminal calls are dropped
// with a warning.
type Reporter struct {
	gh     *github.Client
	log    *log.Logger
	target Target

	deb *debounce.Debouncer

	mu        sync.Mutex
	state     State
	runURL    string
	finished  []domain.FinishedTest
	commentID int64
}

// Option customizes a Reporter.
type Option func(*Reporter)

// WithDebounceWindows overrides the progress debounce windows.
func WithDebounceWindows(quiet, maxWait time.Duration) Option {
	return func(r *Reporter) {
		r.deb = debounce.New(quiet, maxWait, r.flushProgress)
	}
}

// New creates a Reporter bound to target.
func New(client *github.Client, logger *log.Logger, target Target, opts ...Option) *Reporter {
	r := &Reporter{gh: client, log: logger, target: target}
	r.deb = debounce.New(DebounceQuiet, DebounceMaxWait, r.flushProgress)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current lifecycle state.
func (r *Reporter) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// TestRunStarted posts the initial in-progress status and comment.
func (r *Reporter) TestRunStarted(ctx context.Context, runID, runURL string) {
	r.mu.Lock()
	if r.state != StateCreated {
		r.mu.Unlock()
		r.log.Warn("TestRunStarted called twice, ignoring", "run", runID)
		return
	}
	r.state = StateStarted
	r.runURL = runURL
	r.mu.Unlock()

	r.postStatus(ctx, "pending", "Visual tests in progress...", runURL)
	r.upsertComment(ctx, formatProgressComment(r.target, runURL, nil))
	r.log.Info("reported run start", "run", runID, "url", runURL)
}

// TestFinished records one completed test. Updates are debounced so a
// burst of completions results in a bounded number of API calls.
func (r *Reporter) TestFinished(test domain.FinishedTest) {
	r.mu.Lock()
	r.finished = append(r.finished, test)
	terminal := r.state == StateFinished || r.state == StateErrored
	r.mu.Unlock()

	if terminal {
		r.log.Warn("TestFinished after terminal report, ignoring", "test", test.Name)
		return
	}
	r.deb.Call()
}

// flushProgress is the debounced progress update.
func (r *Reporter) flushProgress() {
	r.mu.Lock()
	tests := make([]domain.FinishedTest, len(r.finished))
	copy(tests, r.finished)
	runURL := r.runURL
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	r.upsertComment(ctx, formatProgressComment(r.target, runURL, tests))
	r.log.Debug("flushed progress report", "finished", len(tests))
}

// TestRunFinished posts the final summary exactly once. Any pending
// debounced progress update is cancelled first so a stale report cannot
// race the final one. baselineScreenshots, when known, adds a
// screenshot-inventory diff to the comment.
func (r *Reporter) TestRunFinished(ctx context.Context, res *domain.TestRunResult, baselineScreenshots []string) {
	if !r.enterTerminal(StateFinished, "TestRunFinished") {
		return
	}
	r.deb.Cancel()

	tally := res.Tally()
	state, description := "success", finalDescription(tally)
	if res.HasDifferences() {
		state = "failure"
	}

	r.postStatus(ctx, state, description, res.URL)
	r.upsertComment(ctx, formatFinalComment(r.target, res, baselineScreenshots))
	r.log.Info("reported final result",
		"state", state, "passed", tally.Passed, "differing", tally.Differing)
}

// ErrorRunningTests reports that the run could not complete, distinct
// from a run that completed and found regressions.
func (r *Reporter) ErrorRunningTests(ctx context.Context, runErr error) {
	if !r.enterTerminal(StateErrored, "ErrorRunningTests") {
		return
	}
	r.deb.Cancel()

	r.mu.Lock()
	runURL := r.runURL
	r.mu.Unlock()

	r.postStatus(ctx, "error", "Visual tests could not run", runURL)
	r.upsertComment(ctx, formatErrorComment(r.target, runErr))
	r.log.Info("reported run error", "err", runErr)
}

// enterTerminal transitions into a terminal state, refusing a second
// terminal call.
func (r *Reporter) enterTerminal(next State, op string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateFinished || r.state == StateErrored {
		r.log.Warn("duplicate terminal report, ignoring", "op", op)
		return false
	}
	r.state = next
	return true
}

func (r *Reporter) postStatus(ctx context.Context, state, description, targetURL string) {
	status := &github.RepoStatus{
		State:       github.Ptr(state),
		Context:     github.Ptr(statusContextFor(r.target.SuiteID)),
		Description: github.Ptr(description),
	}
	if targetURL != "" {
		status.TargetURL = github.Ptr(targetURL)
	}

	_, _, err := r.gh.Repositories.CreateStatus(
		ctx, r.target.Owner, r.target.Repo, r.target.HeadSHA, status)
	if err != nil {
		// Reporting must not fail the run; the action result itself is
		// still surfaced through the exit code.
		r.log.Warn("posting commit status failed", "state", state, "err", err)
	}
}

// upsertComment creates the PR comment on first use and edits it on
// subsequent reports, keyed by the hidden marker.
func (r *Reporter) upsertComment(ctx context.Context, body string) {
	if r.target.PRNumber == 0 {
		return
	}

	r.mu.Lock()
	commentID := r.commentID
	r.mu.Unlock()

	if commentID == 0 {
		if existing := r.findMarkedComment(ctx); existing != 0 {
			commentID = existing
			r.mu.Lock()
			r.commentID = existing
			r.mu.Unlock()
		}
	}

	comment := &github.IssueComment{Body: github.Ptr(body)}
	if commentID != 0 {
		if _, _, err := r.gh.Issues.EditComment(ctx, r.target.Owner, r.target.Repo, commentID, comment); err != nil {
			r.log.Warn("editing PR comment failed", "err", err)
		}
		return
	}

	created, _, err := r.gh.Issues.CreateComment(
		ctx, r.target.Owner, r.target.Repo, r.target.PRNumber, comment)
	if err != nil {
		r.log.Warn("creating PR comment failed", "err", err)
		return
	}
	r.mu.Lock()
	r.commentID = created.GetID()
	r.mu.Unlock()
}

func (r *Reporter) findMarkedComment(ctx context.Context) int64 {
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := r.gh.Issues.ListComments(
			ctx, r.target.Owner, r.target.Repo, r.target.PRNumber, opts)
		if err != nil {
			r.log.Warn("listing PR comments failed", "err", err)
			return 0
		}
		for _, comment := range comments {
			if strings.Contains(comment.GetBody(), commentMarker) {
				return comment.GetID()
			}
		}
		if resp.NextPage == 0 {
			return 0
		}
		opts.Page = resp.NextPage
	}
}

func statusContextFor(suiteID string) string {
	if suiteID == "" {
		return StatusContext
	}
	return StatusContext + "/" + suiteID
}

func finalDescription(tally domain.Tally) string {
	if tally.Differing == 0 {
		return fmt.Sprintf("%d tests passed, no visual differences", tally.Passed)
	}
	return fmt.Sprintf("%d of %d tests found visual differences",
		tally.Differing, tally.Passed+tally.Differing+tally.Flakes+tally.Errored)
}
