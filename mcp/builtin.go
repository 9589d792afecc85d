package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"toolchat/config"
	"toolchat/model"
	"toolchat/workspace"
)

// BuiltinServerName namespaces the in-process workspace tools.
const BuiltinServerName = "workspace"

const maxReadBytes = 200000

// BuiltinServerConfig is the config entry shown for the in-process server.
func BuiltinServerConfig() config.MCPServerConfig {
	return config.MCPServerConfig{
		Name:     BuiltinServerName,
		Category: "files",
		Enabled:  true,
	}
}

// NewWorkspaceServer exposes read-only workspace access as MCP tools so the
// model can open files it was not given up front.
func NewWorkspaceServer(ws *workspace.Workspace, retriever *workspace.Retriever) *server.MCPServer {
	s := server.NewMCPServer(clientName+"-workspace", clientVersion, server.WithToolCapabilities(false))

	s.AddTool(mcptypes.NewTool("read_file",
		mcptypes.WithDescription("Read a file from the workspace. Paths are relative to the workspace root."),
		mcptypes.WithString("path", mcptypes.Required(), mcptypes.Description("File path, e.g. cmd/main.go")),
		mcptypes.WithReadOnlyHintAnnotation(true),
	), func(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
		ref, err := req.RequireString("path")
		if err != nil {
			return mcptypes.NewToolResultError(err.Error()), nil
		}
		path, err := ws.Resolve(ref)
		if err != nil {
			return mcptypes.NewToolResultError(err.Error()), nil
		}
		content, err := ws.ReadFile(path)
		if err != nil {
			return mcptypes.NewToolResultError(err.Error()), nil
		}
		if len(content) > maxReadBytes {
			content = content[:maxReadBytes] + "\n... (truncated)"
		}
		return mcptypes.NewToolResultText(content), nil
	})

	s.AddTool(mcptypes.NewTool("list_files",
		mcptypes.WithDescription("List workspace files whose path fuzzy-matches a query. An empty query lists everything."),
		mcptypes.WithString("query", mcptypes.Description("Fuzzy path filter")),
		mcptypes.WithNumber("limit", mcptypes.Description("Maximum number of paths (default 50)")),
		mcptypes.WithReadOnlyHintAnnotation(true),
	), func(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
		files, err := retriever.ListFiles(ctx, req.GetString("query", ""), req.GetInt("limit", 50))
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return mcptypes.NewToolResultText("No matching files."), nil
		}
		return mcptypes.NewToolResultText(strings.Join(files, "\n")), nil
	})

	s.AddTool(mcptypes.NewTool("search_files",
		mcptypes.WithDescription("Find the workspace files most relevant to a natural language query."),
		mcptypes.WithString("query", mcptypes.Required(), mcptypes.Description("What to look for")),
		mcptypes.WithReadOnlyHintAnnotation(true),
	), func(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcptypes.NewToolResultError(err.Error()), nil
		}
		files, err := retriever.Retrieve(ctx, query, model.DefaultRetrievalOptions())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return mcptypes.NewToolResultError(err.Error()), nil
		}
		if len(files) == 0 {
			return mcptypes.NewToolResultText("No relevant files found."), nil
		}

		var b strings.Builder
		for _, f := range files {
			fmt.Fprintf(&b, "%s (relevance: %.2f)\n", f.Path, *f.RelevanceScore)
		}
		return mcptypes.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
	})

	return s
}
