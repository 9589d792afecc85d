package mcp

import (
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"

	"toolchat/model"
)

// Hosted APIs only accept tool names matching ^[a-zA-Z0-9_-]{1,64}$, so the
// "." namespace separator is sent as "__".
const wireSeparator = "__"

// EncodeToolName turns "server.read_file" into "server__read_file".
func EncodeToolName(name string) string {
	return strings.ReplaceAll(name, ".", wireSeparator)
}

// DecodeToolName reverses EncodeToolName.
func DecodeToolName(name string) string {
	return strings.ReplaceAll(name, wireSeparator, ".")
}

// NewCallID is used for providers that do not assign tool call ids.
func NewCallID() string {
	return "call_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}

// schemaType defaults to "object"; some servers omit it for tools without
// arguments and the hosted APIs reject an empty type.
func schemaType(schema mcptypes.ToolInputSchema) string {
	if schema.Type == "" {
		return "object"
	}
	return schema.Type
}

func schemaProperties(schema mcptypes.ToolInputSchema) map[string]any {
	if schema.Properties == nil {
		return map[string]any{}
	}
	return schema.Properties
}

// ConvertMCPToolsToOllama keeps dotted names; Ollama does not restrict them.
func ConvertMCPToolsToOllama(mcpTools []mcptypes.Tool) []api.Tool {
	ollamaTools := make([]api.Tool, 0, len(mcpTools))

	for _, mcpTool := range mcpTools {
		ollamaTools = append(ollamaTools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        mcpTool.Name,
				Description: mcpTool.Description,
				Parameters:  convertInputSchemaToParameters(mcpTool.InputSchema),
			},
		})
	}

	return ollamaTools
}

func convertInputSchemaToParameters(inputSchema mcptypes.ToolInputSchema) api.ToolFunctionParameters {
	params := api.ToolFunctionParameters{
		Type:       schemaType(inputSchema),
		Required:   inputSchema.Required,
		Properties: make(map[string]api.ToolProperty),
	}

	if inputSchema.Defs != nil {
		params.Defs = inputSchema.Defs
	}

	for propName, propValue := range inputSchema.Properties {
		params.Properties[propName] = convertPropertyValue(propValue)
	}

	return params
}

func convertPropertyValue(propValue any) api.ToolProperty {
	toolProp := api.ToolProperty{}

	propMap, ok := propValue.(map[string]any)
	if !ok {
		// Typed schemas (structs) round-trip through JSON
		bytes, err := json.Marshal(propValue)
		if err != nil {
			return toolProp
		}
		var m map[string]any
		if err := json.Unmarshal(bytes, &m); err != nil {
			return toolProp
		}
		propMap = m
	}

	switch t := propMap["type"].(type) {
	case string:
		toolProp.Type = api.PropertyType{t}
	case []string:
		toolProp.Type = api.PropertyType(t)
	case []any:
		types := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		toolProp.Type = api.PropertyType(types)
	}

	if desc, ok := propMap["description"].(string); ok {
		toolProp.Description = desc
	}

	if enumSlice, ok := propMap["enum"].([]any); ok {
		toolProp.Enum = enumSlice
	}

	if items, ok := propMap["items"]; ok {
		toolProp.Items = items
	}

	if anyOfSlice, ok := propMap["anyOf"].([]any); ok {
		anyOfProps := make([]api.ToolProperty, 0, len(anyOfSlice))
		for _, item := range anyOfSlice {
			anyOfProps = append(anyOfProps, convertPropertyValue(item))
		}
		toolProp.AnyOf = anyOfProps
	}

	return toolProp
}

// ToolCallFromOllama converts an Ollama tool call. Ollama does not assign
// call ids, so one is generated.
func ToolCallFromOllama(toolCall api.ToolCall) model.ToolCall {
	args := map[string]any(toolCall.Function.Arguments)
	if args == nil {
		args = map[string]any{}
	}
	return model.ToolCall{
		ID:        NewCallID(),
		Name:      toolCall.Function.Name,
		Arguments: args,
	}
}

// ConvertMCPToolsToOpenAIFormat builds function tools for OpenAI-compatible
// APIs with encoded names.
func ConvertMCPToolsToOpenAIFormat(mcpTools []mcptypes.Tool) []openai.ChatCompletionToolUnionParam {
	if len(mcpTools) == 0 {
		return nil
	}

	result := make([]openai.ChatCompletionToolUnionParam, len(mcpTools))

	for i, tool := range mcpTools {
		params := openai.FunctionParameters{
			"type":       schemaType(tool.InputSchema),
			"properties": schemaProperties(tool.InputSchema),
		}

		if len(tool.InputSchema.Required) > 0 {
			params["required"] = tool.InputSchema.Required
		}

		if tool.InputSchema.Defs != nil {
			params["$defs"] = tool.InputSchema.Defs
		}

		result[i] = openai.ChatCompletionFunctionTool(
			openai.FunctionDefinitionParam{
				Name:        EncodeToolName(tool.Name),
				Description: openai.String(tool.Description),
				Parameters:  params,
			},
		)
	}

	return result
}

// ConvertMCPToolsToAnthropicFormat builds Anthropic tool params with
// encoded names.
func ConvertMCPToolsToAnthropicFormat(mcpTools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(mcpTools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, len(mcpTools))

	for i, tool := range mcpTools {
		// Type defaults to "object" when omitted
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: schemaProperties(tool.InputSchema),
		}

		if len(tool.InputSchema.Required) > 0 {
			inputSchema.Required = tool.InputSchema.Required
		}

		if tool.InputSchema.Defs != nil {
			inputSchema.ExtraFields = map[string]any{
				"$defs": tool.InputSchema.Defs,
			}
		}

		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, EncodeToolName(tool.Name))

		if tool.Description != "" {
			result[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}

	return result
}
