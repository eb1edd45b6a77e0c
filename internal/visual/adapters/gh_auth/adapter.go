// Package ghauth constructs authenticated GitHub API clients.
package ghauth

import (
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v68/github"

	"github.com/chronograph-pe/report-diffs-action/internal/config"
)

// NewClient builds a GitHub client from whichever credentials are
// configured. App-installation auth takes precedence over a plain
// token because installation tokens carry the narrower permissions.
func NewClient(cfg *config.Config) (*github.Client, error) {
	if cfg.AppAuth != nil {
		transport, err := ghinstallation.New(
			http.DefaultTransport,
			cfg.AppAuth.AppID,
			cfg.AppAuth.InstallationID,
			cfg.AppAuth.PrivateKey,
		)
		if err != nil {
			return nil, fmt.Errorf("creating app installation transport: %w", err)
		}
		return github.NewClient(&http.Client{Transport: transport}), nil
	}

	return github.NewClient(nil).WithAuthToken(cfg.GitHubToken), nil
}
