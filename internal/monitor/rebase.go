package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanmeadows/shepherd/internal/runner"
)

// Rebaser brings a PR branch back on top of its base branch and
// force-pushes the result.
type Rebaser struct {
	run runner.Runner
	git string
}

// NewRebaser creates a Rebaser that shells out through run.
func NewRebaser(run runner.Runner, gitPath string) *Rebaser {
	if gitPath == "" {
		gitPath = "git"
	}
	return &Rebaser{run: run, git: gitPath}
}

// Rebase fetches origin, rebases the checkout onto origin/<base>, and
// pushes to the PR branch with a lease. A failed rebase is aborted so
// the checkout never stays half-rebased with conflict markers; the
// next behind detection starts over from a clean tree.
func (r *Rebaser) Rebase(ctx context.Context, branch, base string) error {
	res := r.run.Run(ctx, runner.Heavy, r.git, "fetch", "origin")
	if !res.OK {
		return fmt.Errorf("git fetch: %s", strings.TrimSpace(res.Stderr))
	}

	target := strings.TrimPrefix(base, "refs/heads/")
	res = r.run.Run(ctx, runner.Heavy, r.git, "rebase", "origin/"+target)
	if !res.OK {
		stderr := strings.TrimSpace(res.Stderr)
		if abort := r.run.Run(ctx, runner.Heavy, r.git, "rebase", "--abort"); !abort.OK {
			slog.Warn("rebase abort failed", "stderr", strings.TrimSpace(abort.Stderr))
		}
		return fmt.Errorf("git rebase onto origin/%s: %s", target, stderr)
	}

	res = r.run.Run(ctx, runner.Heavy, r.git, "push", "--force-with-lease", "origin", "HEAD:"+branch)
	if !res.OK {
		return fmt.Errorf("git push: %s", strings.TrimSpace(res.Stderr))
	}

	slog.Info("rebased onto base branch", "branch", branch, "base", target)
	return nil
}
