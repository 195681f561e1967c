package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/civicadmin/internal/models"
	"github.com/joescharf/civicadmin/internal/output"
	"github.com/joescharf/civicadmin/internal/store"
)

var (
	activityLimit  int
	activityKind   string
	activityIssue  string
	activityFailed bool
	activityKeep   int
)

var activityCmd = &cobra.Command{
	Use:     "activity",
	Aliases: []string{"log"},
	Short:   "Show recent operator actions",
	Long: `Show the local journal of refreshes, updates and stats loads, newest
first, including the error each failed action ended in.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return activityRun(cmd.Context())
	},
}

var activityPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the most recent journal entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return activityPruneRun(cmd.Context())
	},
}

func init() {
	activityCmd.Flags().IntVarP(&activityLimit, "limit", "l", store.DefaultActivityLimit, "Maximum entries to show")
	activityCmd.Flags().StringVar(&activityKind, "kind", "", "Only this kind: refresh, update, stats")
	activityCmd.Flags().StringVar(&activityIssue, "issue", "", "Only actions on this issue ID")
	activityCmd.Flags().BoolVar(&activityFailed, "failed", false, "Only failed actions")

	activityPruneCmd.Flags().IntVar(&activityKeep, "keep", 500, "Number of recent entries to keep")

	activityCmd.AddCommand(activityPruneCmd)
	rootCmd.AddCommand(activityCmd)
}

func activityRun(ctx context.Context) error {
	switch models.ActivityKind(activityKind) {
	case "", models.ActivityRefresh, models.ActivityUpdate, models.ActivityStats:
	default:
		return fmt.Errorf("unknown activity kind %q (want refresh, update or stats)", activityKind)
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	entries, err := s.ListActivity(ctx, store.ActivityFilter{
		Kind:       models.ActivityKind(activityKind),
		IssueID:    activityIssue,
		FailedOnly: activityFailed,
		Limit:      activityLimit,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		if entries == nil {
			entries = []*models.Activity{}
		}
		return ui.JSON(entries)
	}

	if len(entries) == 0 {
		ui.Info("No activity recorded.")
		return nil
	}

	table := ui.Table([]string{"When", "Kind", "Issue", "Result", "Detail"})
	for _, a := range entries {
		result := output.Green("ok")
		detail := a.Detail
		if a.Failed() {
			result = output.Red("failed")
			detail = a.Error
		}
		_ = table.Append([]string{
			a.CreatedAt.Local().Format(time.DateTime),
			string(a.Kind),
			output.Dash(a.IssueID),
			result,
			output.Dash(detail),
		})
	}
	_ = table.Render()
	return nil
}

func activityPruneRun(ctx context.Context) error {
	if activityKeep < 0 {
		return fmt.Errorf("--keep must not be negative")
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete all but the %d most recent journal entries", activityKeep)
		return nil
	}

	n, err := s.PruneActivity(ctx, activityKeep)
	if err != nil {
		return err
	}
	ui.Success("Deleted %d journal entries", n)
	return nil
}
