// Package main is the GitHub Action entrypoint: it classifies the
// triggering event, runs the visual test suite against the deployed
// app and reports the outcome back to the pull request.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-githubactions"

	"github.com/chronograph-pe/report-diffs-action/internal/config"
	"github.com/chronograph-pe/report-diffs-action/internal/logging"
	"github.com/chronograph-pe/report-diffs-action/internal/telemetry"
	ghauth "github.com/chronograph-pe/report-diffs-action/internal/visual/adapters/gh_auth"
	ghcommits "github.com/chronograph-pe/report-diffs-action/internal/visual/adapters/gh_commits"
	ghdeploy "github.com/chronograph-pe/report-diffs-action/internal/visual/adapters/gh_deploy"
	ghevent "github.com/chronograph-pe/report-diffs-action/internal/visual/adapters/gh_event"
	ghreport "github.com/chronograph-pe/report-diffs-action/internal/visual/adapters/gh_report"
	localproxy "github.com/chronograph-pe/report-diffs-action/internal/visual/adapters/local_proxy"
	orchestratorapi "github.com/chronograph-pe/report-diffs-action/internal/visual/adapters/orchestrator_api"
	urlprobe "github.com/chronograph-pe/report-diffs-action/internal/visual/adapters/url_probe"
	"github.com/chronograph-pe/report-diffs-action/internal/visual/app"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

// run wraps the whole invocation in one telemetry transaction so setup
// failures and run failures alike end up in the action annotation and
// the error tracker before the bounded flush on exit.
func run() error {
	// .env is only present for local invocations of the action.
	_ = godotenv.Load()

	logger := logging.New(os.Stderr, os.Getenv("RUNNER_DEBUG"))
	action := githubactions.New()

	if err := telemetry.Init("report-diffs-action@" + version); err != nil {
		logger.Warn("telemetry disabled", "err", err)
	}
	defer telemetry.Close()

	tx := telemetry.StartTransaction(context.Background(), "report-diffs-action")
	defer tx.Finish()

	if err := execute(tx.Context(), logger, action); err != nil {
		tx.SetError()
		telemetry.CaptureError(err)
		action.Errorf("visual tests did not complete: %s", err)
		return err
	}

	tx.SetOK()
	return nil
}

func execute(ctx context.Context, logger *log.Logger, action *githubactions.Action) error {
	cfg, err := config.Load(action)
	if err != nil {
		return fmt.Errorf("reading action inputs: %w", err)
	}

	owner, repo, err := splitRepository(os.Getenv("GITHUB_REPOSITORY"))
	if err != nil {
		return err
	}

	payload, err := readEventPayload(os.Getenv("GITHUB_EVENT_PATH"))
	if err != nil {
		return err
	}

	eventName := os.Getenv("GITHUB_EVENT_NAME")
	ev, err := ghevent.New().Classify(eventName, payload, os.Getenv("GITHUB_SHA"))
	if err != nil {
		return fmt.Errorf("classifying %q event: %w", eventName, err)
	}
	if !ev.Supported() {
		logger.Warnf("%q events carry no commit to test, skipping", eventName)
		return nil
	}

	gh, err := ghauth.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("building github client: %w", err)
	}

	svc := app.NewService(cfg, logger, app.Deps{
		Executor: orchestratorapi.New(cfg.APIToken, logger),
		Reporter: ghreport.New(gh, logger, ghreport.Target{
			Owner:    owner,
			Repo:     repo,
			HeadSHA:  ev.HeadSHA,
			BaseSHA:  ev.BaseSHA,
			BaseRef:  ev.BaseRef,
			SuiteID:  cfg.SuiteID,
			PRNumber: ev.PRNumber,
		}),
		Deployments: ghdeploy.New(gh, logger, cfg.AllowedEnvironments, cfg.DeploymentWaitTimeout),
		Prober:      urlprobe.New(logger),
		Resolver:    localproxy.New(cfg.LocalhostAliases, cfg.ProxyHost, logger),
		History:     ghcommits.New(gh),
	})

	return svc.Run(ctx, owner, repo, ev)
}

func splitRepository(repository string) (string, string, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("GITHUB_REPOSITORY must be owner/repo, got %q", repository)
	}
	return owner, repo, nil
}

func readEventPayload(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading event payload: %w", err)
	}
	return payload, nil
}
