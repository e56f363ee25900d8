package recreate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/govambam/macroscope-code-review-sub002/internal/config"
	"github.com/govambam/macroscope-code-review-sub002/internal/gitshell"
	"github.com/govambam/macroscope-code-review-sub002/internal/hosting"
	"github.com/govambam/macroscope-code-review-sub002/internal/refcache"
)

// totalSteps is the number of progress steps in one recreation.
const totalSteps = 8

// Engine coordinates a full PR recreation: metadata resolution, fork
// provisioning, cache-aware cloning, branch reconstruction, and push. One
// Engine instance serves all requests; per-request state lives in the
// ephemeral working clone.
type Engine struct {
	cfg     *config.Config
	hosting *hosting.Client
	cache   *refcache.Manager
	logger  *log.Logger
}

// NewEngine creates an engine around a shared cache manager.
func NewEngine(cfg *config.Config, hostingClient *hosting.Client, cache *refcache.Manager) *Engine {
	return &Engine{
		cfg:     cfg,
		hosting: hostingClient,
		cache:   cache,
		logger:  log.NewWithOptions(os.Stderr, log.Options{Prefix: "recreate"}),
	}
}

// Recreate runs one recreation asynchronously and returns its progress
// stream. The stream is finite and ends with exactly one terminal event.
// When cacheRepo is set, the repository is allow-listed for reference caching
// before the clone.
func (e *Engine) Recreate(ctx context.Context, prURL string, cacheRepo bool) <-chan Event {
	em := newEmitter(totalSteps)
	go func() {
		result, err := e.run(ctx, em, prURL, cacheRepo)
		if err != nil {
			em.failed(err)
			return
		}
		em.completed(result)
	}()
	return em.ch
}

func (e *Engine) run(ctx context.Context, em *emitter, prURL string, cacheRepo bool) (*RecreatedPR, error) {
	ref, err := ParsePRURL(prURL)
	if err != nil {
		return nil, err
	}
	token := e.cfg.GetGitHubToken()

	em.progress(fmt.Sprintf("resolving metadata for %s", ref))
	meta, strategy, err := e.hosting.ResolvePR(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return nil, err
	}
	e.logger.Info("resolved pull request", "pr", ref.String(), "strategy", strategy.Kind)

	em.progress(fmt.Sprintf("ensuring fork in %s", e.cfg.GetTargetOrg()))
	settle := time.Duration(e.cfg.GetForkSettleSeconds()) * time.Second
	forkOwner, err := e.hosting.EnsureFork(ctx, ref.Owner, ref.Repo, e.cfg.GetTargetOrg(), settle)
	if err != nil {
		return nil, err
	}

	em.progress("preparing reference cache")
	if cacheRepo {
		if err := e.allowListRepo(ref.Owner, ref.Repo); err != nil {
			return nil, err
		}
	}
	upstreamURL := hosting.CloneURL(ref.Owner, ref.Repo, token)
	referencePath, err := e.cache.Ensure(ctx, ref.Owner, ref.Repo, upstreamURL)
	if err != nil {
		return nil, err
	}

	em.progress("cloning working copy")
	workDir := filepath.Join(e.cfg.GetWorkDir(), "recreate-"+uuid.NewString()[:8])
	if err := os.MkdirAll(e.cfg.GetWorkDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	// The working clone is exclusively owned by this request and removed on
	// every exit path.
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			e.logger.Error("failed to remove working clone", "dir", workDir, "error", err)
		}
	}()

	clone, err := e.cloneWorkingCopy(ctx, upstreamURL, workDir, referencePath)
	if err != nil {
		return nil, err
	}

	em.progress("fetching pull request refs")
	if strategy.Kind == hosting.StrategyCherryPickReplay {
		if err := e.fetchPRHead(ctx, clone, ref.Number); err != nil {
			return nil, err
		}
	}

	em.progress(fmt.Sprintf("reconstructing branches (%s)", strategy.Kind))
	branches, err := Reconstruct(ctx, clone, strategy, ref.Number)
	if err != nil {
		return nil, err
	}

	em.progress("pushing branches to fork")
	forkURL := hosting.CloneURL(forkOwner, ref.Repo, token)
	if err := clone.AddRemote(ctx, "fork", forkURL); err != nil {
		return nil, err
	}
	// Force is required: re-running the same PR number overwrites previous
	// attempts, and no concurrent writer to these branches exists.
	if err := clone.Push(ctx, "fork", branches.BaseBranch, true); err != nil {
		return nil, err
	}
	if err := clone.Push(ctx, "fork", branches.ReviewBranch, true); err != nil {
		return nil, err
	}

	em.progress("opening review pull request")
	title := fmt.Sprintf("Recreated PR #%d: %s", ref.Number, meta.Title)
	prHTMLURL, err := e.hosting.CreatePull(ctx, forkOwner, ref.Repo, title, branches.ReviewBranch, branches.BaseBranch)
	if err != nil {
		return nil, err
	}

	e.logger.Info("recreation complete", "pr", ref.String(), "url", prHTMLURL)
	return &RecreatedPR{
		ForkedPRURL:      prHTMLURL,
		BaseBranchName:   branches.BaseBranch,
		ReviewBranchName: branches.ReviewBranch,
		StrategyUsed:     strategy.Kind,
	}, nil
}

// allowListRepo records caching intent for owner/repo. A repository that is
// already allow-listed is left untouched so operator-written notes survive
// re-runs.
func (e *Engine) allowListRepo(owner, repo string) error {
	if e.cache.IsEligible(owner, repo) {
		return nil
	}
	if _, err := e.cache.AllowList().AddEntry(owner, repo, "requested at recreation"); err != nil {
		return err
	}
	return e.cache.AllowList().Save()
}

// fetchPRHead fetches refs/pull/{n}/head under the global gate. Open-PR
// commits live only under refs/pull/ upstream, and the fetch is network-bound
// like a clone, so it counts against the same concurrency cap.
func (e *Engine) fetchPRHead(ctx context.Context, r *gitshell.Runner, number int) error {
	if err := e.cache.Gate().Acquire(ctx); err != nil {
		return err
	}
	defer e.cache.Gate().Release()

	return r.FetchRef(ctx, "origin", fmt.Sprintf("pull/%d/head", number))
}

// cloneWorkingCopy clones upstream into workDir under the global gate,
// optionally sharing objects with the reference clone.
func (e *Engine) cloneWorkingCopy(ctx context.Context, upstreamURL, workDir, referencePath string) (*gitshell.Runner, error) {
	if err := e.cache.Gate().Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.cache.Gate().Release()

	return gitshell.Clone(ctx, upstreamURL, workDir, gitshell.CloneOptions{
		AllBranches:   true,
		ReferencePath: referencePath,
	})
}
