package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/civicadmin/internal/health"
	"github.com/joescharf/civicadmin/internal/models"
	"github.com/joescharf/civicadmin/internal/store"
)

var (
	reportFormat string
	exportType   string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data as JSON, CSV, or Markdown",
	Long: `Export issues (fresh from the server, narrowed by --search) or the
local activity journal in various formats.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun(cmd.Context())
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a Markdown status report",
	Long:  "Combine the dashboard statistics and the open issues into a Markdown report.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportRun(cmd.Context())
	},
}

func init() {
	exportCmd.Flags().StringVar(&reportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportType, "type", "issues", "Data type: issues, activity")
	exportCmd.Flags().StringVarP(&issueSearch, "search", "s", "", "Only issues matching this text")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "Maximum activity entries to export")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(reportCmd)
}

func exportRun(ctx context.Context) error {
	switch reportFormat {
	case "json", "csv", "markdown":
	default:
		return fmt.Errorf("unknown format: %s (use: json, csv, markdown)", reportFormat)
	}

	switch exportType {
	case "issues":
		return exportIssues(ctx)
	case "activity":
		return exportActivity(ctx)
	default:
		return fmt.Errorf("unknown export type: %s (use: issues, activity)", exportType)
	}
}

func exportIssues(ctx context.Context) error {
	vm, err := newIssuesViewModel()
	if err != nil {
		return err
	}
	defer vm.Close()

	if _, err := vm.Refresh(ctx); err != nil {
		return err
	}
	issues := vm.ApplyFilter(issueSearch)

	switch reportFormat {
	case "json":
		return ui.JSON(issues)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"IssueID", "IssueType", "UserLocation", "Status", "Priority", "ExpectedCompletionDate"})
		for _, i := range issues {
			_ = w.Write([]string{i.ID, i.Type, i.Location, string(i.Status), string(i.Priority), i.ExpectedCompletionDate})
		}
		w.Flush()
		return w.Error()
	default:
		fmt.Fprintln(ui.Out, "# Issues")
		fmt.Fprintln(ui.Out)
		writeIssueMarkdown(ui.Out, issues)
		return nil
	}
}

func exportActivity(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	entries, err := s.ListActivity(ctx, store.ActivityFilter{Limit: exportLimit})
	if err != nil {
		return err
	}

	switch reportFormat {
	case "json":
		if entries == nil {
			entries = []*models.Activity{}
		}
		return ui.JSON(entries)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Kind", "IssueID", "Detail", "Error", "CreatedAt"})
		for _, a := range entries {
			_ = w.Write([]string{a.ID, string(a.Kind), a.IssueID, a.Detail, a.Error, a.CreatedAt.Format(time.RFC3339)})
		}
		w.Flush()
		return w.Error()
	default:
		fmt.Fprintln(ui.Out, "# Activity")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| When | Kind | Issue | Result |")
		fmt.Fprintln(ui.Out, "|------|------|-------|--------|")
		for _, a := range entries {
			result := "ok"
			if a.Failed() {
				result = "failed: " + a.Error
			}
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s |\n",
				a.CreatedAt.Format(time.DateTime), a.Kind, a.IssueID, mdEscape(result))
		}
		return nil
	}
}

func writeIssueMarkdown(w io.Writer, issues []models.Issue) {
	fmt.Fprintln(w, "| ID | Type | Location | Status | Priority | Expected |")
	fmt.Fprintln(w, "|----|------|----------|--------|----------|----------|")
	for _, i := range issues {
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s |\n",
			mdEscape(i.ID), mdEscape(i.Type), mdEscape(i.Location),
			i.Status, i.Priority, mdEscape(i.ExpectedCompletionDate))
	}
}

// mdEscape keeps free text from breaking a Markdown table row.
func mdEscape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

// reportRun prints the dashboard followed by the unfinished issues grouped
// by status. Stats and issues are loaded independently; a failure of one
// is reported in its section and does not hide the other.
func reportRun(ctx context.Context) error {
	statsVM, err := newStatsViewModel()
	if err != nil {
		return err
	}
	defer statsVM.Close()
	issuesVM, err := newIssuesViewModel()
	if err != nil {
		return err
	}
	defer issuesVM.Close()

	fmt.Fprintf(ui.Out, "# Issue Report (%s)\n\n", time.Now().Format(time.DateOnly))

	snap, statsErr := statsVM.Load(ctx)
	fmt.Fprintln(ui.Out, "## Overview")
	fmt.Fprintln(ui.Out)
	if statsErr != nil {
		fmt.Fprintf(ui.Out, "_Statistics unavailable: %s_\n\n", mdEscape(statsErr.Error()))
	} else {
		k := snap.KeyMetrics
		fmt.Fprintf(ui.Out, "- Pending: %d\n- High priority: %d\n- Completed: %d\n\n", k.TotalPending, k.HighPriority, k.TotalCompleted)
		fmt.Fprintln(ui.Out, snap.SummaryText())
		fmt.Fprintln(ui.Out)
	}

	issues, issuesErr := issuesVM.Refresh(ctx)
	if issuesErr != nil {
		fmt.Fprintln(ui.Out, "## Open issues")
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "_Issues unavailable: %s_\n", mdEscape(issuesErr.Error()))
	} else {
		h := health.NewScorer().Score(issues)
		fmt.Fprintf(ui.Out, "## Backlog health: %d/100 (%s)\n\n", h.Total, h.Grade())
		fmt.Fprintf(ui.Out, "- Open: %d (%d high priority)\n", h.Open, h.OpenHigh)
		fmt.Fprintf(ui.Out, "- Awaiting triage: %d\n", h.Untriaged)
		fmt.Fprintf(ui.Out, "- Without a completion date: %d\n\n", h.Unscheduled)

		for _, status := range models.IssueStatuses {
			if status == models.IssueStatusCompleted {
				continue
			}
			var group []models.Issue
			for _, i := range issues {
				if i.Status == status {
					group = append(group, i)
				}
			}
			if len(group) == 0 {
				continue
			}
			fmt.Fprintf(ui.Out, "## %s (%d)\n\n", status, len(group))
			writeIssueMarkdown(ui.Out, group)
			fmt.Fprintln(ui.Out)
		}
	}

	if statsErr != nil && issuesErr != nil {
		return fmt.Errorf("report incomplete: %w", issuesErr)
	}
	return nil
}
