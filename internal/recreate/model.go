// Package recreate rebuilds external pull requests as branch pairs inside a
// controlled fork. Each recreation produces two branches: a base branch
// frozen at the PR's reconstructed starting point and a review branch holding
// the PR's final state, whose mutual diff reproduces the original PR's diff.
package recreate

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/govambam/macroscope-code-review-sub002/internal/hosting"
)

// RecreatedPR is the output of one successful recreation.
type RecreatedPR struct {
	ForkedPRURL      string               `json:"forked_pr_url"`
	BaseBranchName   string               `json:"base_branch_name"`
	ReviewBranchName string               `json:"review_branch_name"`
	StrategyUsed     hosting.StrategyKind `json:"strategy_used"`
}

// BranchNames returns the deterministic branch pair for a PR number.
// Re-running recreation for the same PR overwrites these branches rather
// than accumulating new ones.
func BranchNames(prNumber int) (base, review string) {
	return fmt.Sprintf("base-for-pr-%d", prNumber), fmt.Sprintf("review-pr-%d", prNumber)
}

// CherryPickConflictError reports a commit that could not be replayed
// cleanly. The working directory has already been aborted and destroyed; no
// partial branches were pushed.
type CherryPickConflictError struct {
	FailedSHA string
}

func (e *CherryPickConflictError) Error() string {
	return fmt.Sprintf("cherry-pick conflict on commit %s", e.FailedSHA)
}

// PRRef identifies one external pull request.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

func (p PRRef) String() string {
	return fmt.Sprintf("%s/%s#%d", p.Owner, p.Repo, p.Number)
}

// ParsePRURL parses a GitHub pull request URL of the form
// https://github.com/{owner}/{repo}/pull/{number}.
func ParsePRURL(raw string) (PRRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return PRRef{}, fmt.Errorf("invalid PR URL %q: %w", raw, err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[2] != "pull" {
		return PRRef{}, fmt.Errorf("invalid PR URL %q: expected .../{owner}/{repo}/pull/{number}", raw)
	}
	number, err := strconv.Atoi(parts[3])
	if err != nil || number <= 0 {
		return PRRef{}, fmt.Errorf("invalid PR URL %q: bad PR number", raw)
	}

	return PRRef{Owner: parts[0], Repo: parts[1], Number: number}, nil
}
