package testutil

import (
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"toolchat/model"
)

// TestMessages returns a sample conversation for testing
func TestMessages() []model.Message {
	return []model.Message{
		{Role: model.RoleUser, Content: "Hello, how are you?"},
		{Role: model.RoleAssistant, Content: "I'm doing well, thank you!"},
		{Role: model.RoleUser, Content: "Can you help me with a task?"},
	}
}

// SingleUserMessage returns a single user message for simple tests
func SingleUserMessage(content string) []model.Message {
	return []model.Message{
		{Role: model.RoleUser, Content: content},
	}
}

// SystemMessage returns a system message for testing
func SystemMessage(content string) model.Message {
	return model.Message{Role: model.RoleSystem, Content: content}
}

// ToolResultMessage returns a formatted tool result as adapters receive it
func ToolResultMessage(id, name, content string) model.Message {
	return model.Message{
		Role:          model.RoleTool,
		Content:       content,
		ToolCallID:    id,
		ToolName:      name,
		ToolArguments: map[string]any{"location": "Paris"},
	}
}

// TestMCPTools returns sample namespaced MCP tools for testing
func TestMCPTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		{
			Name:        "weather.get_weather",
			Description: "Get the current weather for a location",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"location": map[string]any{
						"type":        "string",
						"description": "The city and state, e.g. San Francisco, CA",
					},
				},
				Required: []string{"location"},
			},
		},
		{
			Name:        "math.calculate",
			Description: "Perform a mathematical calculation",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"expression": map[string]any{
						"type":        "string",
						"description": "The mathematical expression to evaluate",
					},
				},
				Required: []string{"expression"},
			},
		},
	}
}

// TestToolCatalog returns TestMCPTools as catalog entries
func TestToolCatalog() []model.ToolInfo {
	tools := TestMCPTools()
	return []model.ToolInfo{
		{
			Name:        tools[0].Name,
			Description: tools[0].Description,
			ServerName:  "weather",
			Category:    "web",
			Tool:        tools[0],
		},
		{
			Name:        tools[1].Name,
			Description: tools[1].Description,
			ServerName:  "math",
			Category:    "utility",
			Dangerous:   true,
			Tool:        tools[1],
		},
	}
}
