package cli

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/alanmeadows/shepherd/internal/monitor"
	"github.com/alanmeadows/shepherd/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List monitor sessions",
	Long: `Display every recorded monitor session in a table, most recently
updated first. A session still marked "polling" belongs to a monitor
that is running right now or was killed without finishing.`,
	Example: `  shepherd status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := monitor.ListSessions()
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}

		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No monitor sessions. Start one with: shepherd monitor <pr>")
			return nil
		}

		headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
		cellStyle := lipgloss.NewStyle().Padding(0, 1)

		rows := make([][]string, 0, len(sessions))
		for _, s := range sessions {
			rows = append(rows, []string{
				strconv.Itoa(s.PR),
				outcomeMarker(s.Outcome),
				s.Started.Local().Format("2006-01-02 15:04"),
				s.Updated.Local().Format("2006-01-02 15:04"),
				strconv.Itoa(s.Iterations),
			})
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("PR", "OUTCOME", "STARTED", "UPDATED", "POLLS").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})

		fmt.Fprintln(cmd.OutOrStdout(), t)
		return nil
	},
}

func outcomeMarker(outcome string) string {
	switch outcome {
	case "succeeded":
		return "✓ succeeded"
	case "failed":
		return "✗ failed"
	case "timed_out":
		return "✗ timed_out"
	default:
		return "○ " + outcome
	}
}

var logCmd = &cobra.Command{
	Use:   "log <pr>",
	Short: "Show a session's event log",
	Long: `Print the stored markdown record for one PR's monitor session:
every event observed, with timestamps, plus the final outcome.`,
	Example: `  shepherd log 42`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prNumber, err := parsePRNumber(args[0])
		if err != nil {
			return err
		}

		dir, err := monitor.SessionDir()
		if err != nil {
			return err
		}
		path := filepath.Join(dir, fmt.Sprintf("pr-%d.md", prNumber))
		if !store.Exists(path) {
			return fmt.Errorf("no session record for PR #%d", prNumber)
		}

		var doc *store.Document
		err = store.WithReadLock(path, store.DefaultLockTimeout, func() error {
			var e error
			doc, e = store.ReadDocument(path)
			return e
		})
		if err != nil {
			return fmt.Errorf("reading session record: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Outcome: %s\n\n", store.GetString(doc.Frontmatter, "outcome"))
		fmt.Fprintln(cmd.OutOrStdout(), doc.Body)
		return nil
	},
}
