// Package main provides a CLI tool to run the action locally against a
// real pull request: it fetches the PR from GitHub, writes a synthetic
// event payload and prints the environment the action binary expects.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/google/go-github/v68/github"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := parseCliConfig()
	if err != nil {
		return err
	}

	prURL := flag.Arg(0)
	owner, repo, prNum, err := parsePRURL(prURL)
	if err != nil {
		return fmt.Errorf("parsing PR URL: %w", err)
	}

	ctx := context.Background()
	pr, err := fetchPRDetails(ctx, cfg.token, owner, repo, prNum)
	if err != nil {
		return err
	}

	payload := buildEventPayload(pr, owner, repo, prNum)
	if err := os.WriteFile(cfg.eventPath, payload, 0o600); err != nil {
		return fmt.Errorf("writing event payload: %w", err)
	}

	fmt.Printf("Wrote %s for %s/%s#%d\n\n", cfg.eventPath, owner, repo, prNum)
	fmt.Printf("Run the action with:\n")
	fmt.Printf("  export GITHUB_EVENT_NAME=pull_request\n")
	fmt.Printf("  export GITHUB_EVENT_PATH=%s\n", cfg.eventPath)
	fmt.Printf("  export GITHUB_REPOSITORY=%s/%s\n", owner, repo)
	fmt.Printf("  export GITHUB_SHA=%s\n", pr.GetHead().GetSHA())
	fmt.Printf("  go run ./cmd/report-diffs-action\n")
	return nil
}

type cliConfig struct {
	token     string
	eventPath string
}

func parseCliConfig() (cliConfig, error) {
	var (
		token     = flag.String("token", "", "GitHub personal access token (or use GITHUB_TOKEN env var)")
		eventPath = flag.String("event-path", ".github-event.json", "Where to write the synthetic event payload")
	)
	flag.Parse()

	cfg := cliConfig{
		token:     getEnvOrFlag(*token, "GITHUB_TOKEN"),
		eventPath: *eventPath,
	}

	if cfg.token == "" {
		return cfg, errors.New("github token required\nProvide via -token flag or GITHUB_TOKEN env var")
	}

	if flag.NArg() == 0 {
		flag.Usage()
		return cfg, errors.New("missing PR URL argument")
	}

	return cfg, nil
}

func getEnvOrFlag(flagValue, envKey string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envKey)
}

// fetchPRDetails resolves the live head and base SHAs so the synthetic
// payload matches what a real pull_request event would carry.
func fetchPRDetails(ctx context.Context, token, owner, repo string, prNum int) (*github.PullRequest, error) {
	client := github.NewClient(nil).WithAuthToken(token)
	fmt.Printf("Fetching PR details from GitHub...\n")
	pr, _, err := client.PullRequests.Get(ctx, owner, repo, prNum)
	if err != nil {
		return nil, fmt.Errorf("fetching PR: %w", err)
	}
	return pr, nil
}

func buildEventPayload(pr *github.PullRequest, owner, repo string, prNum int) []byte {
	payload := map[string]interface{}{
		"action": "synchronize",
		"number": prNum,
		"pull_request": map[string]interface{}{
			"number": prNum,
			"base": map[string]interface{}{
				"ref": pr.GetBase().GetRef(),
				"sha": pr.GetBase().GetSHA(),
			},
			"head": map[string]interface{}{
				"ref": pr.GetHead().GetRef(),
				"sha": pr.GetHead().GetSHA(),
			},
		},
		"repository": map[string]interface{}{"name": repo, "owner": map[string]interface{}{"login": owner}},
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshaling payload: %v", err)) // Should never fail with map[string]interface{}
	}
	return payloadBytes
}

// parsePRURL pulls owner, repo and PR number out of a browser-copied
// PR URL. Trailing tab paths like /files or /commits are accepted so
// the URL can be pasted from any PR view.
func parsePRURL(url string) (string, string, int, error) {
	re := regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/pull/(\d+)(?:/.*)?$`)
	matches := re.FindStringSubmatch(url)

	if len(matches) != 4 {
		return "", "", 0, fmt.Errorf(
			"invalid PR URL format, expected: https://github.com/owner/repo/pull/123, got: %s",
			url,
		)
	}

	owner := matches[1]
	repo := matches[2]
	prNum, err := strconv.Atoi(matches[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid PR number: %w", err)
	}

	return owner, repo, prNum, nil
}
