package hosting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-github/v71/github"
)

// EnsureFork makes sure targetOrg/repo exists as a fork of upstreamOwner/repo
// and that GitHub Actions is disabled on it, then returns the fork owner.
// Idempotent: an existing fork is reused as-is.
//
// Fork creation is asynchronous on GitHub's side with no explicit "ready"
// signal, so a fresh fork is polled until it reports existing and then given
// a short settle delay before first use.
func (c *Client) EnsureFork(ctx context.Context, upstreamOwner, repo, targetOrg string, settle time.Duration) (string, error) {
	key := targetOrg + "/" + repo

	_, _, err := c.gh.Repositories.Get(ctx, targetOrg, repo)
	switch {
	case err == nil:
		// Fork already exists.
	case isNotFound(err):
		if err := c.createFork(ctx, upstreamOwner, repo, targetOrg, settle); err != nil {
			return "", err
		}
	default:
		return "", &ForkProvisioningError{Repo: key, Err: err}
	}

	// Forks inherit workflow files from upstream and must never auto-run
	// them against recreated branches.
	if err := c.disableActions(ctx, targetOrg, repo); err != nil {
		return "", err
	}
	return targetOrg, nil
}

func (c *Client) createFork(ctx context.Context, upstreamOwner, repo, targetOrg string, settle time.Duration) error {
	upstream := upstreamOwner + "/" + repo
	c.logger.Info("creating fork", "upstream", upstream, "org", targetOrg)

	_, _, err := c.gh.Repositories.CreateFork(ctx, upstreamOwner, repo, &github.RepositoryCreateForkOptions{
		Organization: targetOrg,
	})
	// 202 Accepted means the fork is being created in the background.
	var accepted *github.AcceptedError
	if err != nil && !errors.As(err, &accepted) {
		return &ForkProvisioningError{Repo: upstream, Err: err}
	}

	// Poll until the fork reports existing, with bounded exponential backoff.
	_, err = backoff.Retry(ctx, func() (*github.Repository, error) {
		fork, _, err := c.gh.Repositories.Get(ctx, targetOrg, repo)
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("fork %s/%s not ready", targetOrg, repo)
			}
			return nil, backoff.Permanent(err)
		}
		return fork, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(2*time.Minute))
	if err != nil {
		return &ForkProvisioningError{Repo: upstream, Err: err}
	}

	// Existence does not guarantee refs are populated yet. There is no
	// readiness API for that, so a fixed settle delay bounds the race.
	select {
	case <-time.After(settle):
	case <-ctx.Done():
		return &ForkProvisioningError{Repo: upstream, Err: ctx.Err()}
	}
	return nil
}

func (c *Client) disableActions(ctx context.Context, owner, repo string) error {
	_, _, err := c.gh.Repositories.EditActionsPermissions(ctx, owner, repo, github.ActionsPermissionsRepository{
		Enabled: github.Ptr(false),
	})
	if err != nil {
		return &ForkProvisioningError{Repo: owner + "/" + repo, Err: fmt.Errorf("failed to disable actions: %w", err)}
	}
	return nil
}

// CreatePull opens a pull request on owner/repo with head against base and
// returns its HTML URL. Branch names are deterministic per PR number, so a
// re-run hits GitHub's "pull request already exists" validation error; the
// existing open PR is looked up and returned instead.
func (c *Client) CreatePull(ctx context.Context, owner, repo, title, head, base string) (string, error) {
	body := "Recreated for automated review. The base branch is frozen at the " +
		"original PR's starting point, so this diff matches the original PR exactly."

	pr, _, err := c.gh.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.Ptr(title),
		Head:  github.Ptr(head),
		Base:  github.Ptr(base),
		Body:  github.Ptr(body),
	})
	if err != nil {
		if isValidationFailed(err) {
			if url, ok := c.findOpenPull(ctx, owner, repo, head, base); ok {
				c.logger.Info("reusing existing pull request", "repo", owner+"/"+repo, "head", head)
				return url, nil
			}
		}
		return "", apiErr("create pull request", owner+"/"+repo, err)
	}
	return pr.GetHTMLURL(), nil
}

// findOpenPull returns the URL of the open PR for head against base, if one
// exists.
func (c *Client) findOpenPull(ctx context.Context, owner, repo, head, base string) (string, bool) {
	prs, _, err := c.gh.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
		State: "open",
		Head:  owner + ":" + head,
		Base:  base,
	})
	if err != nil || len(prs) == 0 {
		return "", false
	}
	return prs[0].GetHTMLURL(), true
}
