package provider

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"

	"toolchat/mcp"
	"toolchat/model"
)

// toolResultRun returns the end index (exclusive) of the run of tool-result
// messages starting at i.
func toolResultRun(messages []model.Message, i int) int {
	j := i
	for j < len(messages) && messages[j].IsToolResult() {
		j++
	}
	return j
}

// ConvertToOllamaMessages converts messages to Ollama's format.
//
// A run of tool results is preceded by a synthesized assistant message
// carrying the matching tool calls, since the conversation history never
// stores the call message itself.
func ConvertToOllamaMessages(messages []model.Message) []api.Message {
	result := make([]api.Message, 0, len(messages))

	for i := 0; i < len(messages); {
		if !messages[i].IsToolResult() {
			result = append(result, api.Message{
				Role:    messages[i].Role,
				Content: messages[i].Content,
			})
			i++
			continue
		}

		end := toolResultRun(messages, i)
		calls := make([]api.ToolCall, 0, end-i)
		for _, msg := range messages[i:end] {
			calls = append(calls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      msg.ToolName,
					Arguments: argumentsOrEmpty(msg.ToolArguments),
				},
			})
		}
		result = append(result, api.Message{Role: model.RoleAssistant, ToolCalls: calls})
		for _, msg := range messages[i:end] {
			result = append(result, api.Message{
				Role:    model.RoleTool,
				Content: msg.Content,
			})
		}
		i = end
	}

	return result
}

// ConvertToOpenAIMessages converts messages to the OpenAI chat format used
// by both OpenAI and OpenRouter. Tool names are encoded for the wire.
func ConvertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for i := 0; i < len(messages); {
		msg := messages[i]
		if !msg.IsToolResult() {
			switch msg.Role {
			case model.RoleSystem:
				result = append(result, openai.SystemMessage(msg.Content))
			case model.RoleAssistant:
				result = append(result, openai.AssistantMessage(msg.Content))
			default:
				result = append(result, openai.UserMessage(msg.Content))
			}
			i++
			continue
		}

		end := toolResultRun(messages, i)
		calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, end-i)
		for _, m := range messages[i:end] {
			calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: m.ToolCallID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      mcp.EncodeToolName(m.ToolName),
						Arguments: marshalArguments(m.ToolArguments),
					},
				},
			})
		}
		result = append(result, openai.ChatCompletionMessageParamUnion{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{ToolCalls: calls},
		})
		for _, m := range messages[i:end] {
			result = append(result, openai.ToolMessage(m.Content, m.ToolCallID))
		}
		i = end
	}

	return result
}

// convertToAnthropicMessages converts messages to Anthropic's format and
// returns system messages separately. A run of tool results becomes one
// assistant tool_use message followed by one user message holding every
// tool_result block.
func convertToAnthropicMessages(messages []model.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var systemBlocks []anthropic.TextBlockParam
	anthropicMsgs := make([]anthropic.MessageParam, 0, len(messages))

	for i := 0; i < len(messages); {
		msg := messages[i]
		if !msg.IsToolResult() {
			switch msg.Role {
			case model.RoleSystem:
				systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: msg.Content})
			case model.RoleAssistant:
				anthropicMsgs = append(anthropicMsgs,
					anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)),
				)
			default:
				anthropicMsgs = append(anthropicMsgs,
					anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)),
				)
			}
			i++
			continue
		}

		end := toolResultRun(messages, i)
		uses := make([]anthropic.ContentBlockParamUnion, 0, end-i)
		results := make([]anthropic.ContentBlockParamUnion, 0, end-i)
		for _, m := range messages[i:end] {
			uses = append(uses, anthropic.NewToolUseBlock(m.ToolCallID, argumentsOrEmpty(m.ToolArguments), mcp.EncodeToolName(m.ToolName)))
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, m.ToolError))
		}
		anthropicMsgs = append(anthropicMsgs,
			anthropic.NewAssistantMessage(uses...),
			anthropic.NewUserMessage(results...),
		)
		i = end
	}

	return anthropicMsgs, systemBlocks
}

// ParseToolArguments parses a JSON arguments string into a map. Malformed or
// empty input yields an empty map.
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
		return make(map[string]any)
	}
	return args
}

func marshalArguments(args map[string]any) string {
	data, err := json.Marshal(argumentsOrEmpty(args))
	if err != nil {
		return "{}"
	}
	return string(data)
}

func argumentsOrEmpty(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}
