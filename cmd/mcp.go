package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/civicadmin/internal/mcp"
	"github.com/joescharf/civicadmin/internal/store"
	"github.com/joescharf/civicadmin/internal/viewmodel"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio so an assistant
can read the dashboard and triage issues. Configure the client with:

  {
    "mcpServers": {
      "civicadmin": { "command": "civicadmin", "args": ["mcp"] }
    }
  }

Available tools: civic_stats, civic_list_issues, civic_update_issue,
civic_activity`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol; everything else goes to stderr.
		ui.Out = os.Stderr

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var journal store.Store
		if s, err := getStore(); err == nil {
			journal = s
		}

		opts := viewModelOptions()
		stats := viewmodel.NewStats(client, opts...)
		issues := viewmodel.NewIssues(client, opts...)
		defer stats.Close()
		defer issues.Close()

		return mcp.NewServer(stats, issues, journal, buildVersion).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
