// Package worktree removes merged-PR worktrees and their local
// branches.
package worktree

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alanmeadows/shepherd/internal/runner"
)

// CleanupAfterMerge removes the worktree at worktreePath and deletes
// the local branch named exactly after it. Every step tolerates
// failure of the previous one: the unlock may fail on a worktree that
// was never locked, removal retries once with --force when git reports
// local modifications, and branch deletion is best-effort. Returns
// true only if the worktree itself was removed.
func CleanupAfterMerge(ctx context.Context, run runner.Runner, gitPath, worktreePath, mainRepoPath string) bool {
	if gitPath == "" {
		gitPath = "git"
	}

	// git refuses to remove the directory the process is standing in.
	moveOutOfWorktree(worktreePath, mainRepoPath)

	// The worktree may not have been locked; failure is uninteresting.
	run.Run(ctx, runner.Medium, gitPath, "worktree", "unlock", worktreePath)

	res := run.Run(ctx, runner.Heavy, gitPath, "worktree", "remove", worktreePath)
	if !res.OK && strings.Contains(res.Stderr, "contains modifications") {
		slog.Info("worktree has local modifications, forcing removal", "path", worktreePath)
		res = run.Run(ctx, runner.Heavy, gitPath, "worktree", "remove", "--force", worktreePath)
	}
	if !res.OK {
		slog.Warn("worktree removal failed",
			"path", worktreePath,
			"stderr", strings.TrimSpace(res.Stderr))
		return false
	}
	slog.Info("removed worktree", "path", worktreePath)

	deleteBranch(ctx, run, gitPath, filepath.Base(worktreePath))
	return true
}

// moveOutOfWorktree changes to mainRepoPath when the current directory
// sits inside worktreePath. Failures leave the cwd alone; the removal
// itself will then surface the real problem.
func moveOutOfWorktree(worktreePath, mainRepoPath string) {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	absWorktree, err := filepath.Abs(worktreePath)
	if err != nil {
		return
	}
	rel, err := filepath.Rel(absWorktree, cwd)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return
	}
	if err := os.Chdir(mainRepoPath); err != nil {
		slog.Warn("could not leave worktree before removal", "error", err)
		return
	}
	slog.Debug("moved out of worktree", "from", cwd, "to", mainRepoPath)
}

// deleteBranch removes the local branch whose name equals branch
// exactly. A worktree issue-1366 must never take branch issue-13669
// with it, so candidates are compared whole rather than by prefix.
func deleteBranch(ctx context.Context, run runner.Runner, gitPath, branch string) {
	res := run.Run(ctx, runner.Light, gitPath, "branch", "--list", "--format=%(refname:short)")
	if !res.OK {
		slog.Warn("could not list branches", "stderr", strings.TrimSpace(res.Stderr))
		return
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.TrimSpace(line) != branch {
			continue
		}
		if del := run.Run(ctx, runner.Medium, gitPath, "branch", "-D", branch); !del.OK {
			slog.Warn("branch delete failed",
				"branch", branch,
				"stderr", strings.TrimSpace(del.Stderr))
			return
		}
		slog.Info("deleted branch", "branch", branch)
		return
	}
	slog.Debug("no local branch matches worktree", "branch", branch)
}
