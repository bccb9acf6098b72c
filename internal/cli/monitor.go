package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanmeadows/shepherd/internal/forge"
	"github.com/alanmeadows/shepherd/internal/monitor"
	"github.com/alanmeadows/shepherd/internal/runner"
)

var (
	monitorPollInterval time.Duration
	monitorTimeout      time.Duration
	monitorHintEvery    int
	monitorMerge        bool
	monitorWorktree     string
	monitorMainRepo     string
	monitorNotifyOnly   bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor <pr>",
	Short: "Watch a PR until it is ready to merge",
	Long: `Poll a pull request until there is something to act on.

Shepherd rebases the branch when it falls behind its base, resolves
review threads the rebase duplicated, stops on merge conflicts or
failed checks, and keeps waiting after green checks while an AI
reviewer still has the PR. With --merge it squash-merges once the PR
is ready and removes the worktree given with --worktree.

With --notify-only shepherd takes no action at all: the first event
of any kind is written to stdout as a single JSON line and the
command exits. Periodic status lines keep the stream alive while
nothing is happening.`,
	Example: `  shepherd monitor 42
  shepherd monitor 42 --merge --worktree ~/trees/issue-42 --main-repo ~/src/widget
  shepherd monitor https://github.com/acme/widget/pull/42 --notify-only`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prNumber, err := parsePRNumber(args[0])
		if err != nil {
			return err
		}

		run := runner.New("")
		run.Timeouts = runner.Timeouts{
			Light:  appConfig.Forge.ParseLightTimeout(),
			Medium: appConfig.Forge.ParseMediumTimeout(),
			Heavy:  appConfig.Forge.ParseHeavyTimeout(),
		}

		api := forge.NewClientFromEnv(appConfig.Forge.Token, appConfig.Forge.GHPath)
		svc := forge.NewService(run, appConfig.Forge.GHPath, appConfig.Review, api)

		opts := monitor.Options{
			PollInterval: appConfig.Monitor.ParsePollInterval(),
			Timeout:      appConfig.Monitor.ParseTimeout(),
			HintEvery:    appConfig.Monitor.HintInterval,
			Merge:        monitorMerge,
			WorktreePath: monitorWorktree,
			MainRepoPath: monitorMainRepo,
			GHPath:       appConfig.Forge.GHPath,
			GitPath:      appConfig.Forge.GitPath,
		}
		if monitorPollInterval > 0 {
			opts.PollInterval = monitorPollInterval
		}
		if monitorTimeout > 0 {
			opts.Timeout = monitorTimeout
		}
		if cmd.Flags().Changed("hint-every") {
			opts.HintEvery = monitorHintEvery
		}

		m := monitor.New(svc, run, opts)

		if monitorNotifyOnly {
			if ev := m.NotifyOnly(cmd.Context(), prNumber); ev == nil {
				return fmt.Errorf("no event on PR #%d within %s", prNumber, opts.Timeout)
			}
			return nil
		}

		outcome, ev := m.Run(cmd.Context(), prNumber)
		switch outcome {
		case monitor.OutcomeSucceeded:
			if monitorMerge {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ PR #%d merged\n", prNumber)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ PR #%d is ready to merge\n", prNumber)
			}
			return nil
		case monitor.OutcomeTimedOut:
			return fmt.Errorf("monitoring PR #%d timed out after %s", prNumber, opts.Timeout)
		default:
			if ev != nil {
				return fmt.Errorf("PR #%d needs attention: %s", prNumber, ev.Message)
			}
			return fmt.Errorf("monitoring PR #%d failed", prNumber)
		}
	},
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorPollInterval, "poll-interval", 0, "Sleep between polls (default from config, 30s)")
	monitorCmd.Flags().DurationVar(&monitorTimeout, "timeout", 0, "Overall monitoring budget (default from config, 45m)")
	monitorCmd.Flags().IntVar(&monitorHintEvery, "hint-every", 0, "Poll iterations between wait-time hints (default from config, 10)")
	monitorCmd.Flags().BoolVar(&monitorMerge, "merge", false, "Squash-merge the PR once it is ready")
	monitorCmd.Flags().StringVar(&monitorWorktree, "worktree", "", "Worktree to remove after a successful merge")
	monitorCmd.Flags().StringVar(&monitorMainRepo, "main-repo", "", "Primary checkout to move to before removing the worktree")
	monitorCmd.Flags().BoolVar(&monitorNotifyOnly, "notify-only", false, "Emit the first event as JSON on stdout and exit without acting")
}

// parsePRNumber accepts "42", "#42", or a full PR URL.
func parsePRNumber(arg string) (int, error) {
	s := strings.TrimPrefix(strings.TrimSpace(arg), "#")
	if i := strings.LastIndex(s, "/pull/"); i >= 0 {
		s = s[i+len("/pull/"):]
		if j := strings.IndexAny(s, "/?#"); j >= 0 {
			s = s[:j]
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid PR number %q", arg)
	}
	return n, nil
}
