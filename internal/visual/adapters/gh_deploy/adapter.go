// Package ghdeploy waits for a commit's deployment URL via the GitHub
// Deployments API.
package ghdeploy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/google/go-github/v68/github"

	"github.com/chronograph-pe/report-diffs-action/internal/visual/domain"
)

var errNotReady = errors.New("no ready deployment yet")

// Adapter polls deployment statuses until one reaches a ready state,
// restricted to an allow-list of environment names.
type Adapter struct {
	client      *github.Client
	log         *log.Logger
	allowedEnvs []string
	timeout     time.Duration

	// pollInterval overrides the initial backoff interval, tests only.
	pollInterval time.Duration
}

// New creates a deployment waiter. An empty allowedEnvs list accepts
// deployments to any environment.
func New(client *github.Client, logger *log.Logger, allowedEnvs []string, timeout time.Duration) *Adapter {
	return &Adapter{client: client, log: logger, allowedEnvs: allowedEnvs, timeout: timeout}
}

// WaitForURL blocks until a deployment for sha reports success with an
// environment URL, a deployment fails, or the bounded wait elapses.
func (a *Adapter) WaitForURL(ctx context.Context, owner, repo, sha string) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Second
	policy.MaxInterval = 15 * time.Second
	policy.MaxElapsedTime = a.timeout
	if a.pollInterval > 0 {
		policy.InitialInterval = a.pollInterval
		policy.MaxInterval = a.pollInterval
	}

	var url string
	operation := func() error {
		u, err := a.checkOnce(ctx, owner, repo, sha)
		if err != nil {
			if domain.IsDeploymentFailed(err) {
				return backoff.Permanent(err)
			}
			a.log.Debug("deployment poll failed, retrying", "err", err)
			return err
		}
		if u == "" {
			a.log.Debug("deployment not ready yet", "commit", domain.ShortSHA(sha))
			return errNotReady
		}
		url = u
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		if domain.IsDeploymentFailed(err) {
			return "", err
		}
		return "", fmt.Errorf(
			"timed out after %s waiting for a deployment of %s: %w", a.timeout, domain.ShortSHA(sha), err)
	}

	a.log.Info("deployment ready", "commit", domain.ShortSHA(sha), "url", url)
	return url, nil
}

// checkOnce scans current deployments for sha. Returns the URL when a
// ready one exists, empty when still pending, or DeploymentFailedError
// when the provider reports a terminal failure.
func (a *Adapter) checkOnce(ctx context.Context, owner, repo, sha string) (string, error) {
	deployments, _, err := a.client.Repositories.ListDeployments(ctx, owner, repo, &github.DeploymentsListOptions{
		SHA:         sha,
		ListOptions: github.ListOptions{PerPage: 20},
	})
	if err != nil {
		return "", fmt.Errorf("listing deployments: %w", err)
	}

	for _, deployment := range deployments {
		env := deployment.GetEnvironment()
		if len(a.allowedEnvs) > 0 && !slices.Contains(a.allowedEnvs, env) {
			continue
		}

		statuses, _, err := a.client.Repositories.ListDeploymentStatuses(
			ctx, owner, repo, deployment.GetID(), &github.ListOptions{PerPage: 5})
		if err != nil {
			return "", fmt.Errorf("listing deployment statuses: %w", err)
		}
		if len(statuses) == 0 {
			continue
		}

		// GitHub returns the newest status first.
		latest := statuses[0]
		switch latest.GetState() {
		case "success":
			if url := latest.GetEnvironmentURL(); url != "" {
				return url, nil
			}
			if url := latest.GetTargetURL(); url != "" {
				return url, nil
			}
		case "failure", "error":
			return "", domain.NewDeploymentFailedError(env, latest.GetState())
		}
	}

	return "", nil
}
