package mcp

import (
	"strings"
	"testing"

	"github.com/ollama/ollama/api"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

func workspaceTool(name, desc string, props map[string]any, required ...string) mcptypes.Tool {
	return mcptypes.Tool{
		Name:        name,
		Description: desc,
		InputSchema: mcptypes.ToolInputSchema{Type: "object", Properties: props, Required: required},
	}
}

func TestConvertMCPToolsToOllama(t *testing.T) {
	readFile := workspaceTool("workspace.read_file", "Read a workspace file", map[string]any{
		"path": map[string]any{"type": "string", "description": "Path relative to the workspace"},
	}, "path")
	listFiles := workspaceTool("workspace.list_files", "List workspace files", map[string]any{
		"query": map[string]any{"type": "string"},
		"limit": map[string]any{"type": "integer"},
		"mode":  map[string]any{"type": "string", "enum": []any{"fuzzy", "prefix"}},
	})
	noSchema := mcptypes.Tool{Name: "git.status", Description: "Working tree status"}

	tests := []struct {
		name  string
		input []mcptypes.Tool
		check func(t *testing.T, got []api.Tool)
	}{
		{"none", nil, func(t *testing.T, got []api.Tool) {
			if len(got) != 0 {
				t.Errorf("got %d tools, want none", len(got))
			}
		}},
		{"dotted names kept", []mcptypes.Tool{readFile}, func(t *testing.T, got []api.Tool) {
			fn := got[0].Function
			if got[0].Type != "function" || fn.Name != "workspace.read_file" {
				t.Errorf("tool = %s %q", got[0].Type, fn.Name)
			}
			if fn.Description != "Read a workspace file" {
				t.Errorf("description = %q", fn.Description)
			}
			if len(fn.Parameters.Required) != 1 || fn.Parameters.Required[0] != "path" {
				t.Errorf("required = %v", fn.Parameters.Required)
			}
		}},
		{"properties and enums", []mcptypes.Tool{listFiles}, func(t *testing.T, got []api.Tool) {
			params := got[0].Function.Parameters
			if params.Type != "object" || len(params.Properties) != 3 {
				t.Fatalf("parameters = %s with %d properties", params.Type, len(params.Properties))
			}
			if mode := params.Properties["mode"]; len(mode.Enum) != 2 {
				t.Errorf("mode enum = %v", mode.Enum)
			}
		}},
		{"missing schema type", []mcptypes.Tool{noSchema}, func(t *testing.T, got []api.Tool) {
			if params := got[0].Function.Parameters; params.Type != "object" || len(params.Properties) != 0 {
				t.Errorf("parameters = %+v", params)
			}
		}},
		{"order kept", []mcptypes.Tool{listFiles, readFile}, func(t *testing.T, got []api.Tool) {
			if got[0].Function.Name != "workspace.list_files" || got[1].Function.Name != "workspace.read_file" {
				t.Errorf("names = %q, %q", got[0].Function.Name, got[1].Function.Name)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertMCPToolsToOllama(tt.input)
			if len(got) != len(tt.input) {
				t.Fatalf("got %d tools, want %d", len(got), len(tt.input))
			}
			tt.check(t, got)
		})
	}
}

func TestConvertPropertyValue(t *testing.T) {
	type typed struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	}

	tests := []struct {
		name  string
		input any
		check func(t *testing.T, p api.ToolProperty)
	}{
		{"path string", map[string]any{"type": "string", "description": "File path"}, func(t *testing.T, p api.ToolProperty) {
			if len(p.Type) != 1 || p.Type[0] != "string" || p.Description != "File path" {
				t.Errorf("property = %+v", p)
			}
		}},
		{"nullable limit", map[string]any{"type": []any{"integer", "null"}}, func(t *testing.T, p api.ToolProperty) {
			if len(p.Type) != 2 || p.Type[1] != "null" {
				t.Errorf("type = %v", p.Type)
			}
		}},
		{"mode enum", map[string]any{"type": "string", "enum": []any{"fuzzy", "prefix", "exact"}}, func(t *testing.T, p api.ToolProperty) {
			if len(p.Enum) != 3 {
				t.Errorf("enum = %v", p.Enum)
			}
		}},
		{"globs array", map[string]any{"type": "array", "items": map[string]any{"type": "string"}}, func(t *testing.T, p api.ToolProperty) {
			if p.Items == nil {
				t.Error("items dropped")
			}
		}},
		{"line or range", map[string]any{"anyOf": []any{
			map[string]any{"type": "integer"},
			map[string]any{"type": "string"},
		}}, func(t *testing.T, p api.ToolProperty) {
			if len(p.AnyOf) != 2 || p.AnyOf[1].Type[0] != "string" {
				t.Errorf("anyOf = %+v", p.AnyOf)
			}
		}},
		{"typed schema struct", typed{Type: "boolean", Description: "Recurse"}, func(t *testing.T, p api.ToolProperty) {
			if len(p.Type) != 1 || p.Type[0] != "boolean" || p.Description != "Recurse" {
				t.Errorf("property = %+v", p)
			}
		}},
		{"not a schema", 42, func(t *testing.T, p api.ToolProperty) {
			if len(p.Type) != 0 {
				t.Errorf("type = %v, want empty", p.Type)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, convertPropertyValue(tt.input))
		})
	}
}

func TestToolCallFromOllama(t *testing.T) {
	tests := []struct {
		name         string
		input        api.ToolCall
		expectedName string
		expectedArgs map[string]any
	}{
		{
			name: "simple tool call",
			input: api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      "workspace.read_file",
					Arguments: map[string]any{"path": "main.go"},
				},
			},
			expectedName: "workspace.read_file",
			expectedArgs: map[string]any{"path": "main.go"},
		},
		{
			name: "tool call with multiple arguments",
			input: api.ToolCall{
				Function: api.ToolCallFunction{
					Name: "workspace.list_files",
					Arguments: map[string]any{
						"query":  "handler",
						"limit":  float64(5),
						"offset": float64(3),
					},
				},
			},
			expectedName: "workspace.list_files",
			expectedArgs: map[string]any{"query": "handler", "limit": float64(5), "offset": float64(3)},
		},
		{
			name: "nil arguments become empty",
			input: api.ToolCall{
				Function: api.ToolCallFunction{Name: "git.status"},
			},
			expectedName: "git.status",
			expectedArgs: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := ToolCallFromOllama(tt.input)

			if call.Name != tt.expectedName {
				t.Errorf("expected name %q, got %q", tt.expectedName, call.Name)
			}
			if !strings.HasPrefix(call.ID, "call_") {
				t.Errorf("expected generated call id, got %q", call.ID)
			}
			if call.Arguments == nil {
				t.Fatal("arguments must not be nil")
			}
			if len(call.Arguments) != len(tt.expectedArgs) {
				t.Errorf("expected %d arguments, got %d", len(tt.expectedArgs), len(call.Arguments))
			}
			for key, expectedVal := range tt.expectedArgs {
				if actualVal := call.Arguments[key]; actualVal != expectedVal {
					t.Errorf("argument %q: expected %v, got %v", key, expectedVal, actualVal)
				}
			}
		})
	}

	a, b := ToolCallFromOllama(tests[0].input), ToolCallFromOllama(tests[0].input)
	if a.ID == b.ID {
		t.Error("expected distinct call ids")
	}
}

func TestEncodeDecodeToolName(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"workspace.read_file", "workspace__read_file"},
		{"server-filesystem.list", "server-filesystem__list"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		if got := EncodeToolName(tt.name); got != tt.encoded {
			t.Errorf("EncodeToolName(%q) = %q, want %q", tt.name, got, tt.encoded)
		}
		if got := DecodeToolName(tt.encoded); got != tt.name {
			t.Errorf("DecodeToolName(%q) = %q, want %q", tt.encoded, got, tt.name)
		}
	}
}

func TestHostedFormatsEncodeNames(t *testing.T) {
	tools := []mcptypes.Tool{{
		Name:        "workspace.read_file",
		Description: "Read a file",
		InputSchema: mcptypes.ToolInputSchema{Required: []string{"path"}},
	}}

	openaiTools := ConvertMCPToolsToOpenAIFormat(tools)
	if len(openaiTools) != 1 {
		t.Fatalf("expected 1 OpenAI tool, got %d", len(openaiTools))
	}
	fn := openaiTools[0].OfFunction
	if fn == nil {
		t.Fatal("expected a function tool")
	}
	if fn.Function.Name != "workspace__read_file" {
		t.Errorf("OpenAI name not encoded: %q", fn.Function.Name)
	}
	if fn.Function.Parameters["type"] != "object" {
		t.Errorf("expected missing schema type to default to object, got %v", fn.Function.Parameters["type"])
	}
	if _, ok := fn.Function.Parameters["properties"].(map[string]any); !ok {
		t.Errorf("expected non-nil properties map")
	}

	anthropicTools := ConvertMCPToolsToAnthropicFormat(tools)
	if len(anthropicTools) != 1 || anthropicTools[0].OfTool == nil {
		t.Fatalf("expected 1 Anthropic tool")
	}
	if anthropicTools[0].OfTool.Name != "workspace__read_file" {
		t.Errorf("Anthropic name not encoded: %q", anthropicTools[0].OfTool.Name)
	}

	if ConvertMCPToolsToOpenAIFormat(nil) != nil || ConvertMCPToolsToAnthropicFormat(nil) != nil {
		t.Error("expected nil for no tools")
	}
}

func TestSearchFilesSchemaConversion(t *testing.T) {
	search := workspaceTool("workspace.search_files", "Find files relevant to a query", map[string]any{
		"query":         map[string]any{"type": "string", "description": "What to look for"},
		"max_files":     map[string]any{"type": "integer", "description": "Upper bound on results"},
		"include_types": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"follow_links":  map[string]any{"type": "boolean"},
	}, "query")

	got := ConvertMCPToolsToOllama([]mcptypes.Tool{search})
	if len(got) != 1 {
		t.Fatalf("got %d tools, want 1", len(got))
	}

	params := got[0].Function.Parameters
	if len(params.Properties) != 4 || len(params.Required) != 1 {
		t.Fatalf("parameters = %d properties, required %v", len(params.Properties), params.Required)
	}

	wantTypes := map[string]string{
		"query":         "string",
		"max_files":     "integer",
		"include_types": "array",
		"follow_links":  "boolean",
	}
	for name, want := range wantTypes {
		prop, ok := params.Properties[name]
		if !ok {
			t.Errorf("property %s missing", name)
			continue
		}
		if len(prop.Type) != 1 || prop.Type[0] != want {
			t.Errorf("%s type = %v, want %s", name, prop.Type, want)
		}
	}
	if params.Properties["max_files"].Description != "Upper bound on results" {
		t.Errorf("max_files description lost")
	}
}
