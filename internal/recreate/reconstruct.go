package recreate

import (
	"context"
	"os"

	"github.com/charmbracelet/log"

	"github.com/govambam/macroscope-code-review-sub002/internal/gitshell"
	"github.com/govambam/macroscope-code-review-sub002/internal/hosting"
)

// RecreatedBranches names the branch pair built by Reconstruct.
type RecreatedBranches struct {
	BaseBranch   string
	ReviewBranch string
}

var reconstructLogger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "reconstruct"})

// Reconstruct builds the base and review branches in the working clone
// according to the strategy.
//
// MergeCommitParents checks both branches out directly at known SHAs; no
// replay occurs, so it cannot fail due to conflicts. CherryPickReplay starts
// both branches at the base SHA and replays each non-merge commit onto the
// review branch. On a conflict the in-progress pick is aborted (abort errors
// are swallowed; the directory is discarded immediately after) and a
// CherryPickConflictError carries the offending SHA upward. Nothing is pushed
// here; pushing partial state is impossible by construction.
func Reconstruct(ctx context.Context, r *gitshell.Runner, strategy *hosting.Strategy, prNumber int) (RecreatedBranches, error) {
	base, review := BranchNames(prNumber)
	branches := RecreatedBranches{BaseBranch: base, ReviewBranch: review}

	if err := r.CheckoutNewBranch(ctx, base, strategy.BaseSHA); err != nil {
		return RecreatedBranches{}, err
	}

	switch strategy.Kind {
	case hosting.StrategyMergeCommitParents:
		if err := r.CheckoutNewBranch(ctx, review, strategy.HeadSHA); err != nil {
			return RecreatedBranches{}, err
		}
		return branches, nil

	default:
		// Both branches start identical; the review branch diverges only via
		// the applied commits.
		if err := r.CheckoutNewBranch(ctx, review, strategy.BaseSHA); err != nil {
			return RecreatedBranches{}, err
		}
		for _, commit := range strategy.Commits {
			conflict, err := r.CherryPick(ctx, commit.SHA)
			if err == nil {
				continue
			}
			if conflict {
				if abortErr := r.CherryPickAbort(ctx); abortErr != nil {
					reconstructLogger.Warn("cherry-pick abort failed", "sha", commit.SHA, "error", abortErr)
				}
				return RecreatedBranches{}, &CherryPickConflictError{FailedSHA: commit.SHA}
			}
			return RecreatedBranches{}, err
		}
		return branches, nil
	}
}
