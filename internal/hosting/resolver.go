package hosting

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v71/github"
)

// commitPageSize is the single page of PR commits fetched. PRs with more
// commits are only partially represented; the resolver logs a warning when it
// detects truncation.
const commitPageSize = 100

// PullRequestMetadata identifies one external pull request. Immutable once
// fetched; re-fetched on each recreation attempt.
type PullRequestMetadata struct {
	Owner          string
	Repo           string
	Number         int
	Title          string
	AuthorLogin    string
	State          string
	Merged         bool
	MergeCommitSHA string
}

// CommitRef is one commit in a PR's commit list. A commit with more than one
// parent is a merge commit and is excluded from cherry-pick replay, because
// cherry-pick cannot unambiguously select a parent to diff against.
type CommitRef struct {
	SHA              string
	FirstLineMessage string
	ParentCount      int
}

// IsMerge reports whether the commit has more than one parent.
func (c CommitRef) IsMerge() bool {
	return c.ParentCount > 1
}

// StrategyKind discriminates the two branch reconstruction strategies.
type StrategyKind string

const (
	// StrategyMergeCommitParents reconstructs branches directly from the
	// merge commit's parents. Used for merged PRs with a resolvable merge
	// commit.
	StrategyMergeCommitParents StrategyKind = "merge-commit-parents"

	// StrategyCherryPickReplay replays the PR's commits one by one onto the
	// base. Used for open PRs, or when merge commit resolution fails.
	StrategyCherryPickReplay StrategyKind = "cherry-pick-replay"
)

// Strategy is the tagged recreation strategy. For MergeCommitParents,
// BaseSHA/HeadSHA hold the frozen base and the final PR state. For
// CherryPickReplay, BaseSHA is the parent of the PR's first commit and
// Commits holds the non-merge commits in chronological order.
type Strategy struct {
	Kind    StrategyKind
	BaseSHA string
	HeadSHA string
	Commits []CommitRef
}

// ResolvePR fetches PR metadata and classifies the recreation strategy.
// Classification is deterministic given (merged, mergeCommitSha, parents):
//
//   - merged, merge commit with 2 parents  -> MergeCommitParents{p0, p1}
//   - merged, merge commit with 1 parent   -> MergeCommitParents{p0, mergeSHA}
//     (squash/rebase merge; the commit self-contains the full diff)
//   - otherwise                            -> CherryPickReplay
func (c *Client) ResolvePR(ctx context.Context, owner, repo string, number int) (*PullRequestMetadata, *Strategy, error) {
	resource := fmt.Sprintf("%s/%s#%d", owner, repo, number)

	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, nil, apiErr("get pull request", resource, err)
	}

	meta := &PullRequestMetadata{
		Owner:          owner,
		Repo:           repo,
		Number:         number,
		Title:          pr.GetTitle(),
		AuthorLogin:    pr.GetUser().GetLogin(),
		State:          pr.GetState(),
		Merged:         pr.GetMerged(),
		MergeCommitSHA: pr.GetMergeCommitSHA(),
	}

	commits, err := c.listPRCommits(ctx, owner, repo, number, resource)
	if err != nil {
		return nil, nil, err
	}
	if total := pr.GetCommits(); total > len(commits) {
		c.logger.Warn("PR commit list truncated at one page",
			"pr", resource, "total", total, "fetched", len(commits))
	}

	if meta.Merged && meta.MergeCommitSHA != "" {
		strategy, ok := c.mergeCommitStrategy(ctx, meta)
		if ok {
			return meta, strategy, nil
		}
		// Merge commit unresolvable: fall back to replay.
	}

	strategy, err := c.cherryPickStrategy(ctx, owner, repo, commits, resource)
	if err != nil {
		return nil, nil, err
	}
	return meta, strategy, nil
}

// listPRCommits fetches the PR's commit list (single page, up to 100).
func (c *Client) listPRCommits(ctx context.Context, owner, repo string, number int, resource string) ([]CommitRef, error) {
	page, _, err := c.gh.PullRequests.ListCommits(ctx, owner, repo, number, &github.ListOptions{
		PerPage: commitPageSize,
	})
	if err != nil {
		return nil, apiErr("list pull request commits", resource, err)
	}

	commits := make([]CommitRef, 0, len(page))
	for _, rc := range page {
		message := rc.GetCommit().GetMessage()
		if idx := strings.IndexByte(message, '\n'); idx >= 0 {
			message = message[:idx]
		}
		commits = append(commits, CommitRef{
			SHA:              rc.GetSHA(),
			FirstLineMessage: message,
			ParentCount:      len(rc.Parents),
		})
	}
	return commits, nil
}

// mergeCommitStrategy resolves the merge commit's parents. Returns ok=false
// when the lookup fails or the commit has no parents, in which case the
// caller falls through to cherry-pick replay.
func (c *Client) mergeCommitStrategy(ctx context.Context, meta *PullRequestMetadata) (*Strategy, bool) {
	rc, _, err := c.gh.Repositories.GetCommit(ctx, meta.Owner, meta.Repo, meta.MergeCommitSHA, nil)
	if err != nil {
		c.logger.Warn("merge commit lookup failed, falling back to cherry-pick replay",
			"sha", meta.MergeCommitSHA, "error", err)
		return nil, false
	}

	switch len(rc.Parents) {
	case 2:
		// True merge: parent 0 is the pre-merge target branch, parent 1 the
		// final PR branch state.
		return &Strategy{
			Kind:    StrategyMergeCommitParents,
			BaseSHA: rc.Parents[0].GetSHA(),
			HeadSHA: rc.Parents[1].GetSHA(),
		}, true
	case 1:
		// Squash or rebase merge: the commit itself carries the full diff.
		return &Strategy{
			Kind:    StrategyMergeCommitParents,
			BaseSHA: rc.Parents[0].GetSHA(),
			HeadSHA: meta.MergeCommitSHA,
		}, true
	default:
		c.logger.Warn("merge commit has no usable parents, falling back to cherry-pick replay",
			"sha", meta.MergeCommitSHA, "parents", len(rc.Parents))
		return nil, false
	}
}

// cherryPickStrategy builds a replay strategy: base is the parent of the PR's
// first commit, and the commit sequence excludes merge commits.
func (c *Client) cherryPickStrategy(ctx context.Context, owner, repo string, commits []CommitRef, resource string) (*Strategy, error) {
	if len(commits) == 0 {
		return nil, &UpstreamAPIError{Op: "classify strategy", Err: fmt.Errorf("pull request %s has no commits", resource)}
	}

	baseSHA, err := c.firstParent(ctx, owner, repo, commits[0].SHA)
	if err != nil {
		return nil, err
	}

	replayed := make([]CommitRef, 0, len(commits))
	for _, commit := range commits {
		if commit.IsMerge() {
			continue
		}
		replayed = append(replayed, commit)
	}

	return &Strategy{
		Kind:    StrategyCherryPickReplay,
		BaseSHA: baseSHA,
		Commits: replayed,
	}, nil
}

// firstParent returns the SHA of a commit's first parent.
func (c *Client) firstParent(ctx context.Context, owner, repo, sha string) (string, error) {
	rc, _, err := c.gh.Repositories.GetCommit(ctx, owner, repo, sha, nil)
	if err != nil {
		return "", apiErr("get commit", owner+"/"+repo+"@"+sha, err)
	}
	if len(rc.Parents) == 0 {
		return "", &UpstreamAPIError{Op: "get commit", Err: fmt.Errorf("commit %s has no parent", sha)}
	}
	return rc.Parents[0].GetSHA(), nil
}
