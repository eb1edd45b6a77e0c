// Package app wires the action's linear control flow: establish a
// baseline, establish a target URL, delegate the run, report results.
package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/chronograph-pe/report-diffs-action/internal/config"
	"github.com/chronograph-pe/report-diffs-action/internal/visual/domain"
)

// Deps are the ports the service drives.
type Deps struct {
	Executor    Executor
	Reporter    Reporter
	Deployments DeploymentWaiter
	Prober      Prober
	Resolver    TargetResolver
	History     CommitHistory
}

// Service runs one action invocation.
type Service struct {
	cfg  *config.Config
	log  *log.Logger
	deps Deps
}

// NewService creates the orchestration service.
func NewService(cfg *config.Config, logger *log.Logger, deps Deps) *Service {
	return &Service{cfg: cfg, log: logger, deps: deps}
}

// Run executes the flow for a classified event. It guarantees exactly
// one terminal reporter call: TestRunFinished on success, otherwise
// ErrorRunningTests, so the PR is never left pending.
func (s *Service) Run(ctx context.Context, owner, repo string, ev domain.CodeChangeEvent) error {
	if err := s.run(ctx, owner, repo, ev); err != nil {
		s.deps.Reporter.ErrorRunningTests(ctx, err)
		return err
	}
	return nil
}

func (s *Service) run(ctx context.Context, owner, repo string, ev domain.CodeChangeEvent) error {
	baseSHA := s.ensureBaseline(ctx, owner, repo, ev)

	target, cleanup, err := s.resolveTarget(ctx, owner, repo, ev)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := s.deps.Prober.Probe(ctx, target); err != nil {
		return fmt.Errorf("probing target before the run: %w", err)
	}

	result, err := s.deps.Executor.ExecuteTestRun(ctx, domain.ExecuteParams{
		TestsFile:           s.cfg.TestsFile,
		HeadSHA:             ev.HeadSHA,
		BaseSHA:             baseSHA,
		TargetURL:           target,
		SuiteID:             s.cfg.SuiteID,
		Execution:           s.cfg.Execution,
		Screenshotting:      s.cfg.Screenshotting,
		ParallelTasks:       s.cfg.ParallelTasks,
		MaxRetriesOnFailure: s.cfg.MaxRetriesOnFailure,
		RerunTestsCount:     s.cfg.RerunTestsCount,
		DataDir:             s.cfg.DataDir,
		Environment: map[string]string{
			"event":      ev.Kind.String(),
			"repository": owner + "/" + repo,
			"baseRef":    ev.BaseRef,
		},
		OnTestRunCreated: func(run domain.RunCreated) {
			s.deps.Reporter.TestRunStarted(ctx, run.ID, run.URL)
		},
		OnTestFinished: s.deps.Reporter.TestFinished,
	})
	if err != nil {
		return fmt.Errorf("executing test run: %w", err)
	}

	s.deps.Reporter.TestRunFinished(ctx, result, s.baselineScreenshots(ctx, baseSHA))
	return nil
}

// ensureBaseline picks the commit to diff against and makes sure the
// orchestrator has (or will soon have) a run for it. An empty return
// means no suitable baseline exists and the run proceeds as a
// snapshot-generation pass. Baseline bookkeeping is best-effort by
// design: failures here downgrade the run, they never abort it.
func (s *Service) ensureBaseline(ctx context.Context, owner, repo string, ev domain.CodeChangeEvent) string {
	candidate := ev.BaseSHA
	if ev.Kind == domain.KindManualDispatch {
		parent, err := s.deps.History.ParentCommit(ctx, owner, repo, ev.HeadSHA)
		if err != nil {
			s.log.Warn("could not resolve parent commit for manual dispatch", "err", err)
		}
		candidate = parent
	}

	if candidate == "" {
		s.log.Infof("no baseline commit for %s, generating snapshots", domain.ShortSHA(ev.HeadSHA))
		return ""
	}

	hasRun, err := s.deps.Executor.HasCompletedRun(ctx, s.cfg.SuiteID, candidate)
	if err != nil {
		s.log.Warn("baseline lookup failed, generating snapshots", "err", err)
		return ""
	}

	if !hasRun {
		// Fire-and-forget: pay the baseline cost once per base commit so
		// future runs on it have something to diff against.
		if err := s.deps.Executor.ScheduleRun(ctx, s.cfg.SuiteID, candidate); err != nil {
			s.log.Warn("scheduling baseline run failed", "err", err)
		}
		s.log.Infof("no baseline run for %s yet, generating snapshots", domain.ShortSHA(candidate))
		return ""
	}

	s.log.Infof("comparing %s against baseline %s",
		domain.ShortSHA(ev.HeadSHA), domain.ShortSHA(candidate))
	return candidate
}

// resolveTarget produces the URL the executor should hit: either the
// commit's deployment or the configured app URL, with loopback hosts
// rewritten for the executor's network.
func (s *Service) resolveTarget(
	ctx context.Context,
	owner, repo string,
	ev domain.CodeChangeEvent,
) (string, func(), error) {
	target := s.cfg.AppURL
	if s.cfg.UseDeploymentURL {
		url, err := s.deps.Deployments.WaitForURL(ctx, owner, repo, ev.HeadSHA)
		if err != nil {
			return "", nil, fmt.Errorf("waiting for deployment: %w", err)
		}
		target = url
	}

	resolved, cleanup, err := s.deps.Resolver.Resolve(target)
	if err != nil {
		return "", nil, fmt.Errorf("resolving target for the executor: %w", err)
	}
	return resolved, cleanup, nil
}

// baselineScreenshots fetches the baseline run's screenshot inventory
// for the final report. Best effort; the report simply omits the
// inventory diff when unavailable.
func (s *Service) baselineScreenshots(ctx context.Context, baseSHA string) []string {
	if baseSHA == "" {
		return nil
	}
	run, err := s.deps.Executor.LatestCompletedRun(ctx, s.cfg.SuiteID, baseSHA)
	if err != nil {
		s.log.Debug("fetching baseline screenshots failed", "err", err)
		return nil
	}
	if run == nil {
		return nil
	}
	return domain.ScreenshotNames(run.Tests)
}
