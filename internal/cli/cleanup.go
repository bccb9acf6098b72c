package cli

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/alanmeadows/shepherd/internal/runner"
	"github.com/alanmeadows/shepherd/internal/worktree"
)

var (
	cleanupYes      bool
	cleanupMainRepo string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <worktree-path>",
	Short: "Remove a merged branch's worktree",
	Long: `Remove a git worktree and delete its local branch, the same cleanup
shepherd performs after --merge lands a PR.

The worktree is unlocked and removed; if git refuses because of
leftover build artifacts, the removal is retried with --force once.
The branch named after the worktree directory is deleted only on an
exact name match. If the current directory is inside the worktree,
shepherd moves to --main-repo first.`,
	Example: `  shepherd cleanup ~/trees/issue-42
  shepherd cleanup ~/trees/issue-42 --main-repo ~/src/widget --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving worktree path: %w", err)
		}
		branch := filepath.Base(path)

		confirmed := cleanupYes
		if !confirmed {
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("Remove worktree %s and delete branch %q?", path, branch)).
						Value(&confirmed),
				),
			)
			if err := form.Run(); err != nil {
				return fmt.Errorf("confirmation cancelled: %w", err)
			}
		}
		if !confirmed {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}

		run := runner.New("")
		run.Timeouts = runner.Timeouts{
			Light:  appConfig.Forge.ParseLightTimeout(),
			Medium: appConfig.Forge.ParseMediumTimeout(),
			Heavy:  appConfig.Forge.ParseHeavyTimeout(),
		}

		if !worktree.CleanupAfterMerge(cmd.Context(), run, appConfig.Forge.GitPath, path, cleanupMainRepo) {
			return fmt.Errorf("cleanup incomplete — inspect with: git worktree list")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed worktree %s\n", path)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupYes, "yes", "y", false, "Skip the confirmation prompt")
	cleanupCmd.Flags().StringVar(&cleanupMainRepo, "main-repo", "", "Primary checkout to move to when standing inside the worktree")
}
