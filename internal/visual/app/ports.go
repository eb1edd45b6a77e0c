package app

import (
	"context"

	"github.com/chronograph-pe/report-diffs-action/internal/visual/domain"
)

// Executor delegates test runs to the external orchestrator. All heavy
// lifting (replay, screenshot diffing, retries) happens on the other
// side of this port.
type Executor interface {
	HasCompletedRun(ctx context.Context, suiteID, commitSHA string) (bool, error)
	LatestCompletedRun(ctx context.Context, suiteID, commitSHA string) (*domain.TestRunResult, error)
	ScheduleRun(ctx context.Context, suiteID, commitSHA string) error
	ExecuteTestRun(ctx context.Context, p domain.ExecuteParams) (*domain.TestRunResult, error)
}

// Reporter posts run progress and results to the pull request. Exactly
// one of TestRunFinished or ErrorRunningTests is called per invocation.
type Reporter interface {
	TestRunStarted(ctx context.Context, runID, runURL string)
	TestFinished(test domain.FinishedTest)
	TestRunFinished(ctx context.Context, res *domain.TestRunResult, baselineScreenshots []string)
	ErrorRunningTests(ctx context.Context, runErr error)
}

// DeploymentWaiter blocks until the commit's deployment publishes a
// reachable URL or the bounded wait elapses.
type DeploymentWaiter interface {
	WaitForURL(ctx context.Context, owner, repo, sha string) (string, error)
}

// Prober verifies the target URL answers before the executor starts.
type Prober interface {
	Probe(ctx context.Context, target string) error
}

// TargetResolver makes the target URL reachable from the executor's
// network, rewriting loopback URLs. The returned cleanup stops any
// background proxy.
type TargetResolver interface {
	Resolve(target string) (string, func(), error)
}

// CommitHistory resolves commit ancestry for baseline selection.
type CommitHistory interface {
	ParentCommit(ctx context.Context, owner, repo, sha string) (string, error)
}
