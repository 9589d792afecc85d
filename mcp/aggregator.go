package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"toolchat/model"
)

// ToolAggregator presents the tools of all running servers as one catalog.
// Tool names are namespaced "<server>.<tool>" so servers cannot collide.
type ToolAggregator struct {
	processManager *ProcessManager
}

func NewToolAggregator(pm *ProcessManager) *ToolAggregator {
	return &ToolAggregator{
		processManager: pm,
	}
}

// Catalog lists the tools of every running server, sorted by name.
func (ta *ToolAggregator) Catalog() []model.ToolInfo {
	var catalog []model.ToolInfo

	for _, name := range ta.processManager.Running() {
		ta.processManager.mu.RLock()
		proc := ta.processManager.processes[name]
		var tools []mcptypes.Tool
		var cfgCategory string
		if proc != nil {
			tools = proc.Tools
			cfgCategory = proc.Config.Category
		}
		ta.processManager.mu.RUnlock()
		if proc == nil {
			continue
		}

		for _, tool := range tools {
			namespaced := tool
			namespaced.Name = name + "." + tool.Name
			catalog = append(catalog, model.ToolInfo{
				Name:        namespaced.Name,
				Description: tool.Description,
				ServerName:  name,
				Category:    cfgCategory,
				Dangerous:   proc.Config.IsDangerous(tool.Name) || destructive(tool),
				Tool:        namespaced,
			})
		}
	}

	sort.Slice(catalog, func(i, j int) bool {
		return catalog[i].Name < catalog[j].Name
	})
	return catalog
}

func (ta *ToolAggregator) ExecuteTool(ctx context.Context, toolName string, args map[string]any) (*mcptypes.CallToolResult, error) {
	serverName, actualToolName := parseToolName(toolName)
	if serverName == "" {
		return nil, fmt.Errorf("tool name %q is not namespaced", toolName)
	}

	c, err := ta.processManager.GetClient(serverName)
	if err != nil {
		return nil, err
	}

	return c.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      actualToolName,
			Arguments: args,
		},
	})
}

func parseToolName(namespacedName string) (string, string) {
	idx := strings.Index(namespacedName, ".")
	if idx == -1 {
		return "", namespacedName
	}
	return namespacedName[:idx], namespacedName[idx+1:]
}

func destructive(tool mcptypes.Tool) bool {
	hint := tool.Annotations.DestructiveHint
	return hint != nil && *hint && (tool.Annotations.ReadOnlyHint == nil || !*tool.Annotations.ReadOnlyHint)
}
