// Package gitshell wraps git subprocess invocations against a single working
// directory. Calls surface exit status and captured output as typed errors and
// never retry internally; retry policy belongs to callers.
package gitshell

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// GitError is a failed git subprocess invocation.
type GitError struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s failed (exit %d): %s", strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Output))
}

// Runner issues git commands against one working directory. A Runner is
// exclusively owned by one operation at a time; it is not safe for concurrent
// use against the same directory.
type Runner struct {
	dir string
}

// New returns a Runner bound to an existing git directory.
func New(dir string) *Runner {
	return &Runner{dir: dir}
}

// Dir returns the working directory this runner operates on.
func (r *Runner) Dir() string {
	return r.dir
}

// run executes git with args in the runner's directory.
func (r *Runner) run(ctx context.Context, args ...string) (string, error) {
	return runGit(ctx, r.dir, args...)
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return string(output), &GitError{Args: args, ExitCode: exitCode, Output: string(output)}
	}
	return string(output), nil
}

// CloneOptions control how a repository is cloned.
type CloneOptions struct {
	// ReferencePath points at a local repository whose objects are shared via
	// the alternates mechanism, skipping transfer of objects already on disk.
	ReferencePath string

	// AllBranches fetches every branch instead of just the remote default.
	AllBranches bool
}

// Clone clones url into dest and returns a Runner bound to it.
func Clone(ctx context.Context, url, dest string, opts CloneOptions) (*Runner, error) {
	args := []string{"clone"}
	if opts.AllBranches {
		args = append(args, "--no-single-branch")
	}
	if opts.ReferencePath != "" {
		args = append(args, "--reference", opts.ReferencePath)
	}
	args = append(args, url, dest)

	if _, err := runGit(ctx, "", args...); err != nil {
		return nil, err
	}
	return New(dest), nil
}

// Fetch runs git fetch against the named remote.
func (r *Runner) Fetch(ctx context.Context, remote string) error {
	_, err := r.run(ctx, "fetch", remote)
	return err
}

// FetchAll refreshes every remote, pruning deleted refs and fetching tags.
// This is the refresh used for reference clones.
func (r *Runner) FetchAll(ctx context.Context) error {
	_, err := r.run(ctx, "fetch", "--all", "--tags", "--prune")
	return err
}

// FetchRef fetches a single refspec from the named remote. Used to pull a
// PR's head ref (pull/N/head), whose commits are not reachable from any
// branch of the upstream clone while the PR is open.
func (r *Runner) FetchRef(ctx context.Context, remote, refspec string) error {
	_, err := r.run(ctx, "fetch", remote, refspec)
	return err
}

// CheckoutNewBranch creates (or resets) a branch at startPoint and checks it out.
func (r *Runner) CheckoutNewBranch(ctx context.Context, name, startPoint string) error {
	_, err := r.run(ctx, "checkout", "-B", name, startPoint)
	return err
}

// CherryPick replays one commit onto HEAD. Returns conflict=true when the
// pick failed due to merge conflicts, leaving the cherry-pick in progress;
// callers must follow a conflict with CherryPickAbort.
func (r *Runner) CherryPick(ctx context.Context, sha string) (conflict bool, err error) {
	output, err := r.run(ctx, "cherry-pick", sha)
	if err == nil {
		return false, nil
	}
	if strings.Contains(output, "conflict") || strings.Contains(output, "CONFLICT") {
		return true, err
	}
	return false, err
}

// CherryPickAbort abandons an in-progress cherry-pick.
func (r *Runner) CherryPickAbort(ctx context.Context) error {
	_, err := r.run(ctx, "cherry-pick", "--abort")
	return err
}

// Push pushes branch to remote, optionally with --force.
func (r *Runner) Push(ctx context.Context, remote, branch string, force bool) error {
	args := []string{"push"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, remote, branch)
	_, err := r.run(ctx, args...)
	return err
}

// AddRemote registers a named remote.
func (r *Runner) AddRemote(ctx context.Context, name, url string) error {
	_, err := r.run(ctx, "remote", "add", name, url)
	return err
}

// SetRemoteURL rewrites a remote's URL, used when embedded tokens rotate.
func (r *Runner) SetRemoteURL(ctx context.Context, name, url string) error {
	_, err := r.run(ctx, "remote", "set-url", name, url)
	return err
}

// RevParse resolves a revision to a full SHA.
func (r *Runner) RevParse(ctx context.Context, rev string) (string, error) {
	output, err := r.run(ctx, "rev-parse", rev)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}
