// Package ghcommits resolves commit ancestry via the GitHub API.
package ghcommits

import (
	"context"
	"fmt"

	"github.com/google/go-github/v68/github"
)

// Adapter looks up commit parents, used to pick a baseline for manual
// dispatches whose payload carries no base commit.
type Adapter struct {
	client *github.Client
}

// New creates a commit history adapter.
func New(client *github.Client) *Adapter {
	return &Adapter{client: client}
}

// ParentCommit returns the first parent of sha, or empty for a root
// commit.
func (a *Adapter) ParentCommit(ctx context.Context, owner, repo, sha string) (string, error) {
	commit, _, err := a.client.Repositories.GetCommit(ctx, owner, repo, sha, nil)
	if err != nil {
		return "", fmt.Errorf("fetching commit %s: %w", sha, err)
	}

	parents := commit.Parents
	if len(parents) == 0 {
		return "", nil
	}
	return parents[0].GetSHA(), nil
}
