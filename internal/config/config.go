// Package config resolves action inputs from the hosting CI environment.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-githubactions"

	"github.com/chronograph-pe/report-diffs-action/internal/visual/domain"
)

// Defaults applied when the corresponding input is not set.
const (
	DefaultParallelTasks         = 4
	DefaultMaxRetriesOnFailure   = 2
	DefaultMaxColorDifference    = 0.01
	DefaultMaxChangedProportion  = 0.00001
	DefaultDeploymentWaitTimeout = 10 * time.Minute
	DefaultProxyHost             = "host.docker.internal"
)

// AppAuth holds GitHub App credentials, an alternative to github-token.
type AppAuth struct {
	AppID          int64
	InstallationID int64
	PrivateKey     []byte
}

// Config is the resolved action configuration.
type Config struct {
	APIToken    string
	GitHubToken string
	AppAuth     *AppAuth

	AppURL    string
	TestsFile string
	SuiteID   string
	DataDir   string

	ParallelTasks       int
	MaxRetriesOnFailure int
	RerunTestsCount     int

	Screenshotting domain.ScreenshottingOptions
	Execution      domain.ExecutionOptions

	LocalhostAliases map[string]string
	ProxyHost        string

	UseDeploymentURL      bool
	AllowedEnvironments   []string
	DeploymentWaitTimeout time.Duration
}

// Load reads and validates all recognized inputs.
func Load(action *githubactions.Action) (*Config, error) {
	cfg := &Config{
		APIToken:    action.GetInput("api-token"),
		GitHubToken: action.GetInput("github-token"),
		AppURL:      strings.TrimRight(action.GetInput("app-url"), "/"),
		TestsFile:   action.GetInput("tests-file"),
		SuiteID:     action.GetInput("test-suite-id"),
		DataDir:     action.GetInput("data-dir"),
		ProxyHost:   action.GetInput("proxy-host"),
	}

	if cfg.APIToken == "" {
		return nil, errors.New("missing required input api-token")
	}
	if cfg.ProxyHost == "" {
		cfg.ProxyHost = DefaultProxyHost
	}

	appAuth, err := loadAppAuth(action)
	if err != nil {
		return nil, err
	}
	cfg.AppAuth = appAuth
	if cfg.GitHubToken == "" && cfg.AppAuth == nil {
		return nil, errors.New("missing GitHub credentials: set github-token or the github-app-* inputs")
	}

	if cfg.ParallelTasks, err = intInput(action, "parallel-tasks", DefaultParallelTasks); err != nil {
		return nil, err
	}
	if cfg.MaxRetriesOnFailure, err = intInput(action, "max-retries-on-failure", DefaultMaxRetriesOnFailure); err != nil {
		return nil, err
	}
	if cfg.RerunTestsCount, err = intInput(action, "rerun-tests-count", 0); err != nil {
		return nil, err
	}

	cfg.Screenshotting.MaxColorDifference, err = floatInput(
		action, "max-allowed-color-difference", DefaultMaxColorDifference)
	if err != nil {
		return nil, err
	}
	cfg.Screenshotting.MaxChangedPixelsProportion, err = floatInput(
		action, "max-allowed-proportion-of-changed-pixels", DefaultMaxChangedProportion)
	if err != nil {
		return nil, err
	}
	if cfg.Screenshotting.CaptureStoryboard, err = boolInput(action, "capture-storyboard", false); err != nil {
		return nil, err
	}
	if cfg.Execution.DisableSandbox, err = boolInput(action, "disable-sandbox", false); err != nil {
		return nil, err
	}

	cfg.LocalhostAliases, err = parseAliases(action.GetInput("localhost-aliases"))
	if err != nil {
		return nil, err
	}

	if cfg.UseDeploymentURL, err = boolInput(action, "use-deployment-url", false); err != nil {
		return nil, err
	}
	cfg.AllowedEnvironments = splitList(action.GetInput("allowed-environments"))
	if cfg.DeploymentWaitTimeout, err = durationInput(
		action, "deployment-wait-timeout", DefaultDeploymentWaitTimeout); err != nil {
		return nil, err
	}

	if cfg.AppURL == "" && !cfg.UseDeploymentURL {
		return nil, errors.New("either app-url or use-deployment-url must be set")
	}

	return cfg, nil
}

func loadAppAuth(action *githubactions.Action) (*AppAuth, error) {
	appID := action.GetInput("github-app-id")
	installationID := action.GetInput("github-app-installation-id")
	privateKey := action.GetInput("github-app-private-key")

	if appID == "" && installationID == "" && privateKey == "" {
		return nil, nil
	}
	if appID == "" || installationID == "" || privateKey == "" {
		return nil, errors.New(
			"partial GitHub App credentials: github-app-id, github-app-installation-id and github-app-private-key are all required")
	}

	id, err := strconv.ParseInt(appID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid github-app-id: %w", err)
	}
	instID, err := strconv.ParseInt(installationID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid github-app-installation-id: %w", err)
	}

	return &AppAuth{AppID: id, InstallationID: instID, PrivateKey: []byte(privateKey)}, nil
}

func intInput(action *githubactions.Action, name string, fallback int) (int, error) {
	raw := action.GetInput(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func floatInput(action *githubactions.Action, name string, fallback float64) (float64, error) {
	raw := action.GetInput(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func boolInput(action *githubactions.Action, name string, fallback bool) (bool, error) {
	raw := action.GetInput(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func durationInput(action *githubactions.Action, name string, fallback time.Duration) (time.Duration, error) {
	raw := action.GetInput(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

// parseAliases parses "from=to" pairs separated by commas, e.g.
// "localhost=host.docker.internal,127.0.0.1=host.docker.internal".
func parseAliases(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	aliases := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		from, to, ok := strings.Cut(pair, "=")
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid localhost-aliases entry %q, expected from=to", pair)
		}
		aliases[strings.TrimSpace(from)] = strings.TrimSpace(to)
	}
	return aliases, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
