package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/civicadmin/internal/apiclient"
	"github.com/joescharf/civicadmin/internal/filter"
	"github.com/joescharf/civicadmin/internal/models"
	"github.com/joescharf/civicadmin/internal/store"
	"github.com/joescharf/civicadmin/internal/viewmodel"
)

// Server exposes the dashboard and triage view models as MCP tools.
type Server struct {
	stats   *viewmodel.Stats
	issues  *viewmodel.Issues
	journal store.Store
	version string
}

// NewServer creates the MCP server wrapper. journal may be nil, in which
// case civic_activity is not registered.
func NewServer(stats *viewmodel.Stats, issues *viewmodel.Issues, journal store.Store, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{stats: stats, issues: issues, journal: journal, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("civicadmin", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.statsTool())
	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.updateIssueTool())
	if s.journal != nil {
		srv.AddTool(s.activityTool())
	}

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// civic_stats
func (s *Server) statsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("civic_stats",
		mcp.WithDescription("Fetch the aggregate issue statistics: pending, high-priority and completed counts, breakdowns by status and priority, and the executive summary."),
	)
	return tool, s.handleStats
}

func (s *Server) handleStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.stats.Load(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load stats: %v", err)), nil
	}

	type statsOut struct {
		KeyMetrics models.KeyMetrics   `json:"keyMetrics"`
		ByStatus   []models.NamedCount `json:"byStatus"`
		ByPriority []models.NamedCount `json:"byPriority"`
		Summary    string              `json:"summary"`
	}
	return jsonResult(statsOut{
		KeyMetrics: snap.KeyMetrics,
		ByStatus:   snap.ByStatus,
		ByPriority: snap.ByPriority,
		Summary:    snap.SummaryText(),
	})
}

// civic_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("civic_list_issues",
		mcp.WithDescription("List reported issues fresh from the server. Returns a JSON array; each issue has IssueID, IssueType, UserLocation, Status (New, Processing, Completed, Sorting it out), Priority (HIGH, MEDIUM, LOW) and ExpectedCompletionDate."),
		mcp.WithString("search", mcp.Description("Case-insensitive text matched against type, location, status and priority")),
		mcp.WithString("status", mcp.Description("Only issues with this status: New, Processing, Completed, Sorting it out")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var status models.IssueStatus
	if raw := request.GetString("status", ""); raw != "" {
		parsed, err := models.ParseStatus(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		status = parsed
	}
	issues, err := s.issues.RefreshWith(ctx, apiclient.ListOptions{Status: status})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}
	return jsonResult(filter.Issues(issues, request.GetString("search", "")))
}

// civic_update_issue
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("civic_update_issue",
		mcp.WithDescription("Set an issue's status and expected completion date, then reload it from the server. An empty expected date is sent as \"Under Review\". Returns the issue as the server now reports it."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("IssueID of the issue to update")),
		mcp.WithString("status", mcp.Description("New status: New, Processing, Completed, Sorting it out. Omit to keep the current status.")),
		mcp.WithString("expected", mcp.Description("Expected completion date, free text")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	var status models.IssueStatus
	if raw := request.GetString("status", ""); raw != "" {
		parsed, err := models.ParseStatus(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		status = parsed
	}

	if _, ok := s.issues.Find(issueID); !ok {
		if _, err := s.issues.Refresh(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load issues: %v", err)), nil
		}
	}

	if err := s.issues.Update(ctx, issueID, status, request.GetString("expected", "")); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update issue: %v", err)), nil
	}

	issue, ok := s.issues.Find(issueID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("issue %s was updated but is no longer listed", issueID)), nil
	}
	return jsonResult(issue)
}

// civic_activity
func (s *Server) activityTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("civic_activity",
		mcp.WithDescription("List recent operator actions (refresh, update, stats) from the local journal, newest first, with any error they ended in."),
		mcp.WithString("issue_id", mcp.Description("Only actions on this issue")),
		mcp.WithBoolean("failed", mcp.Description("Only actions that failed")),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to return (default 50)")),
	)
	return tool, s.handleActivity
}

func (s *Server) handleActivity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.journal.ListActivity(ctx, store.ActivityFilter{
		IssueID:    request.GetString("issue_id", ""),
		FailedOnly: request.GetBool("failed", false),
		Limit:      request.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list activity: %v", err)), nil
	}
	if entries == nil {
		entries = []*models.Activity{}
	}
	return jsonResult(entries)
}
