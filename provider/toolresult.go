package provider

import (
	"encoding/json"

	"toolchat/mcp"
	"toolchat/model"
)

// FormatToolResult builds the provider-facing message that carries one tool
// result into the follow-up request. The envelope depends on providerID:
//
//   - openai, openrouter: role "tool" with the call id
//   - anthropic: role "user" with the call id (sent as a tool_result block)
//   - ollama: role "tool" with the tool name
//
// ok is false for unknown provider ids. payload is the tool output, or a
// model.ToolErrorPayload when the call failed.
func FormatToolResult(providerID string, call model.ToolCall, payload any) (msg model.Message, ok bool) {
	msg = model.Message{
		Content:       stringifyPayload(payload),
		ToolCallID:    call.ID,
		ToolName:      call.Name,
		ToolArguments: call.Arguments,
	}
	_, msg.ToolError = payload.(model.ToolErrorPayload)

	switch ProviderType(providerID) {
	case ProviderTypeOpenAI, ProviderTypeOpenRouter, ProviderTypeOllama:
		msg.Role = model.RoleTool
	case ProviderTypeAnthropic:
		msg.Role = model.RoleUser
	default:
		return model.Message{}, false
	}

	// Adapters pair each result with a synthesized call by this id
	if msg.ToolCallID == "" {
		msg.ToolCallID = mcp.NewCallID()
	}

	return msg, true
}

// Formatter adapts FormatToolResult to the orchestrator's formatter
// interface.
type Formatter struct{}

func (Formatter) Format(providerID string, call model.ToolCall, payload any) (model.Message, bool) {
	return FormatToolResult(providerID, call, payload)
}

func stringifyPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(data)
}
