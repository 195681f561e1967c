package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/civicadmin/internal/models"
	"github.com/joescharf/civicadmin/internal/output"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Aliases: []string{"dashboard"},
	Short:   "Show the dashboard statistics",
	Long:    "Fetch the aggregate statistics: headline counts, the status and priority breakdowns, and the executive summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return statsRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func statsRun(ctx context.Context) error {
	vm, err := newStatsViewModel()
	if err != nil {
		return err
	}
	defer vm.Close()

	snap, err := vm.Load(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return ui.JSON(snap)
	}

	k := snap.KeyMetrics
	fmt.Fprintf(ui.Out, "  Pending:        %s\n", output.Yellow(strconv.Itoa(int(k.TotalPending))))
	fmt.Fprintf(ui.Out, "  High priority:  %s\n", output.Red(strconv.Itoa(int(k.HighPriority))))
	fmt.Fprintf(ui.Out, "  Completed:      %s\n", output.Green(strconv.Itoa(int(k.TotalCompleted))))

	printBreakdown("By status", "Status", snap.ByStatus, output.StatusColor)
	printBreakdown("By priority", "Priority", snap.ByPriority, output.PriorityColor)

	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, output.Cyan("Summary"))
	fmt.Fprintf(ui.Out, "  %s\n", snap.SummaryText())
	return nil
}

func printBreakdown(title, column string, counts []models.NamedCount, colorize func(string) string) {
	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, output.Cyan(title))
	if len(counts) == 0 {
		fmt.Fprintln(ui.Out, "  (no data)")
		return
	}
	table := ui.Table([]string{column, "Count"})
	for _, c := range counts {
		_ = table.Append([]string{colorize(c.Name), strconv.Itoa(int(c.Value))})
	}
	_ = table.Render()
}
