package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/pimctl/pkg/pim"
	"github.com/praetorian-inc/pimctl/version"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Serve PIM operations over MCP on stdio",
	Long:  "Expose listing, activation, and deactivation as MCP tools so agent frontends can manage role assignments.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpServer(cmd.Context())
	},
}

func mcpServer(ctx context.Context) error {
	session, err := newSession(ctx)
	if err != nil {
		return err
	}

	s := server.NewMCPServer(
		"pimctl",
		version.FullVersion(),
		server.WithLogging(),
	)

	s.AddTool(mcp.NewTool("list-eligible-roles",
		mcp.WithDescription("List the role assignments the signed-in principal is eligible to activate."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		assignments, err := session.client.ListEligible(ctx, "", pim.FilterAsTarget)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return assignmentsResult(assignments)
	})

	s.AddTool(mcp.NewTool("list-active-roles",
		mcp.WithDescription("List the role assignments currently active for the signed-in principal."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		assignments, err := session.client.ListActive(ctx, "", pim.FilterAsTarget)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return assignmentsResult(assignments)
	})

	s.AddTool(mcp.NewTool("activate-role",
		mcp.WithDescription("Activate one eligible role assignment."),
		mcp.WithString("role", mcp.Required(), mcp.Description("Role display name, for example Owner")),
		mcp.WithString("scope", mcp.Required(), mcp.Description("Scope path or friendly scope name")),
		mcp.WithString("justification", mcp.Required(), mcp.Description("Business justification recorded with the activation")),
		mcp.WithNumber("duration_minutes", mcp.Description("Activation duration in minutes, default 480")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mutationHandler(ctx, session, request, pim.ActionActivate)
	})

	s.AddTool(mcp.NewTool("deactivate-role",
		mcp.WithDescription("Deactivate one active role assignment."),
		mcp.WithString("role", mcp.Required(), mcp.Description("Role display name")),
		mcp.WithString("scope", mcp.Required(), mcp.Description("Scope path or friendly scope name")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mutationHandler(ctx, session, request, pim.ActionDeactivate)
	})

	return server.ServeStdio(s)
}

func assignmentsResult(assignments []pim.Assignment) (*mcp.CallToolResult, error) {
	if assignments == nil {
		assignments = []pim.Assignment{}
	}
	data, err := json.MarshalIndent(assignments, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func mutationHandler(ctx context.Context, session *session,
	request mcp.CallToolRequest, action pim.Action) (*mcp.CallToolResult, error) {

	role, err := request.RequireString("role")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scope, err := request.RequireString("scope")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	justification := ""
	duration := pim.DefaultDuration
	if action == pim.ActionActivate {
		justification, err = request.RequireString("justification")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if minutes := request.GetFloat("duration_minutes", 0); minutes > 0 {
			duration = time.Duration(minutes) * time.Minute
		}
	}

	entries := []pim.RoleSetEntry{{Role: role, Scope: scope}}
	ops, err := session.resolveOperations(ctx, entries, action, justification, duration)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	orchestrator := &pim.Orchestrator{Directory: session.client, Concurrency: 1}
	report := orchestrator.Run(ctx, ops)
	if !report.OK() {
		outcome := report.Failed()[0]
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", outcome.Operation.Describe(), outcome.Err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s succeeded", report.Outcomes[0].Operation.Describe())), nil
}
