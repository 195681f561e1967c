package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/joescharf/civicadmin/internal/models"
	"github.com/joescharf/civicadmin/internal/output"
	"github.com/joescharf/civicadmin/internal/viewmodel"
)

var (
	issueSearch   string
	issueStatus   string
	issueExpected string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Search and triage reported issues",
	Long:  "List, inspect and update the issues citizens have reported.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Long: `List issues fresh from the server.

--search matches type, location, status and priority, case-insensitively.
--status asks the server for a single status.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(cmd.Context(), args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Update an issue's status and expected completion date",
	Long: `Update an issue's status and expected completion date, then reload
the issue list from the server.

An empty --expected is sent as "Under Review". Omitting --status keeps the
current status.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd.Context(), args[0])
	},
}

func init() {
	issueListCmd.Flags().StringVarP(&issueSearch, "search", "s", "", "Filter by text in type, location, status or priority")
	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Only this status: New, Processing, Completed, \"Sorting it out\"")

	issueUpdateCmd.Flags().StringVar(&issueStatus, "status", "", "New status: New, Processing, Completed, \"Sorting it out\"")
	issueUpdateCmd.Flags().StringVar(&issueExpected, "expected", "", "Expected completion date (default \"Under Review\")")

	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	rootCmd.AddCommand(issueCmd)
}

// parseStatusFlag validates --status; empty stays empty.
func parseStatusFlag(raw string) (models.IssueStatus, error) {
	if raw == "" {
		return "", nil
	}
	return models.ParseStatus(raw)
}

func issueListRun(ctx context.Context) error {
	status, err := parseStatusFlag(issueStatus)
	if err != nil {
		return err
	}

	vm, err := newIssuesViewModel()
	if err != nil {
		return err
	}
	defer vm.Close()

	vm.SetStatusFilter(status)
	if _, err := vm.Refresh(ctx); err != nil {
		return err
	}
	issues := vm.ApplyFilter(issueSearch)

	if jsonOutput {
		return ui.JSON(issues)
	}

	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}
	printIssueTable(issues)
	if issueSearch != "" {
		ui.VerboseLog("%d of %d issues match %q", len(issues), len(vm.State().Issues), issueSearch)
	}
	return nil
}

func printIssueTable(issues []models.Issue) {
	table := ui.Table([]string{"ID", "Type", "Location", "Status", "Priority", "Expected"})
	for _, issue := range issues {
		_ = table.Append([]string{
			output.Cyan(issue.ID),
			output.Dash(issue.Type),
			output.Dash(issue.Location),
			output.StatusColor(output.Dash(string(issue.Status))),
			output.PriorityColor(output.Dash(string(issue.Priority))),
			output.Dash(issue.ExpectedCompletionDate),
		})
	}
	_ = table.Render()
}

func issueShowRun(ctx context.Context, id string) error {
	vm, err := newIssuesViewModel()
	if err != nil {
		return err
	}
	defer vm.Close()

	if _, err := vm.Refresh(ctx); err != nil {
		return err
	}
	issue, ok := vm.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", viewmodel.ErrIssueNotFound, id)
	}

	if jsonOutput {
		return ui.JSON(issue)
	}
	printIssue(issue)
	return nil
}

func printIssue(issue models.Issue) {
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(issue.ID), output.Dash(issue.Type))
	fmt.Fprintf(ui.Out, "  Location:   %s\n", output.Dash(issue.Location))
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(output.Dash(string(issue.Status))))
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(output.Dash(string(issue.Priority))))
	fmt.Fprintf(ui.Out, "  Expected:   %s\n", output.Dash(issue.ExpectedCompletionDate))

	// Fields the backend sends that are not modelled, e.g. Description.
	keys := make([]string, 0, len(issue.Extra))
	for k := range issue.Extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		var s string
		if err := json.Unmarshal(issue.Extra[k], &s); err != nil {
			s = string(issue.Extra[k])
		}
		fmt.Fprintf(ui.Out, "  %-11s %s\n", k+":", s)
	}
}

func issueUpdateRun(ctx context.Context, id string) error {
	status, err := parseStatusFlag(issueStatus)
	if err != nil {
		return err
	}

	vm, err := newIssuesViewModel()
	if err != nil {
		return err
	}
	defer vm.Close()

	// The update is built from the server's current copy of the record.
	if _, err := vm.Refresh(ctx); err != nil {
		return err
	}

	current, ok := vm.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", viewmodel.ErrIssueNotFound, id)
	}

	if dryRun {
		next := current.WithUpdate(status, issueExpected)
		ui.DryRunMsg("Would update issue %s: status %s -> %s, expected %q -> %q",
			id, output.Dash(string(current.Status)), next.Status,
			current.ExpectedCompletionDate, next.ExpectedCompletionDate)
		return nil
	}

	if err := vm.Update(ctx, id, status, issueExpected); err != nil {
		return err
	}

	updated, ok := vm.Find(id)
	if !ok {
		ui.Warning("Issue %s was updated but is no longer listed", id)
		return nil
	}

	if jsonOutput {
		return ui.JSON(updated)
	}
	ui.Success("Updated issue %s: %s, expected %s", output.Cyan(id),
		output.StatusColor(string(updated.Status)), output.Dash(updated.ExpectedCompletionDate))
	return nil
}
