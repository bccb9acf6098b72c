package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanmeadows/shepherd/internal/config"
	"github.com/alanmeadows/shepherd/internal/logging"
)

var (
	verbose   bool
	quiet     bool
	appConfig *config.Config

	rootCmd = &cobra.Command{
		Use:   "shepherd",
		Short: "Watch pull requests until they are ready to merge",
		Long: `Shepherd polls a pull request until there is something to act on: it
rebases the branch when it falls behind, reports merge conflicts and
CI failures, waits out AI reviewers after checks go green, and can
squash-merge and clean up the worktree once everything is done.`,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log warnings and errors")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logging.Setup(verbose, quiet)
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		appConfig = cfg
		return nil
	}

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)
}

func Execute() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM, syscall.SIGINT,
	)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
