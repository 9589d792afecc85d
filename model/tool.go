package model

import (
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ToolCall is a model's request to run one tool. ID correlates the call with
// its result in the provider's dialect.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolInfo is one entry of the tool catalog.
type ToolInfo struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	ServerName  string        `json:"serverName"`
	Category    string        `json:"category,omitempty"`
	Dangerous   bool          `json:"dangerous,omitempty"`
	Tool        mcptypes.Tool `json:"-"`
}

// DefinitionsOf returns the MCP tool definitions sent to providers.
func DefinitionsOf(catalog []ToolInfo) []mcptypes.Tool {
	if len(catalog) == 0 {
		return nil
	}
	tools := make([]mcptypes.Tool, len(catalog))
	for i, info := range catalog {
		tools[i] = info.Tool
		tools[i].Name = info.Name
		if tools[i].Description == "" {
			tools[i].Description = info.Description
		}
	}
	return tools
}

type ToolExecutionRequest struct {
	ToolName       string         `json:"toolName"`
	Arguments      map[string]any `json:"arguments"`
	RequestID      string         `json:"requestId"`
	ConversationID string         `json:"conversationId"`
}

// DefaultConversationID is used when a request has no conversation.
const DefaultConversationID = "default"

// NewToolExecutionRequest maps a tool call 1:1 onto an execution request.
// The request id is the call id, so results can be matched back.
func NewToolExecutionRequest(call ToolCall, conversationID string) ToolExecutionRequest {
	if conversationID == "" {
		conversationID = DefaultConversationID
	}
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return ToolExecutionRequest{
		ToolName:       call.Name,
		Arguments:      args,
		RequestID:      call.ID,
		ConversationID: conversationID,
	}
}

type ToolExecutionResult struct {
	ToolName  string        `json:"toolName"`
	Success   bool          `json:"success"`
	Result    any           `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	RequestID string        `json:"requestId"`
	Duration  time.Duration `json:"duration"`
}

// FailedResult builds a failure result for a request that never produced
// its own.
func FailedResult(req ToolExecutionRequest, errMsg string, took time.Duration) ToolExecutionResult {
	return ToolExecutionResult{
		ToolName:  req.ToolName,
		Success:   false,
		Error:     errMsg,
		RequestID: req.RequestID,
		Duration:  took,
	}
}

// ToolErrorPayload is what the model sees in place of a result when a call
// failed.
type ToolErrorPayload struct {
	Error string `json:"error"`
}

// Payload returns the value handed to result formatters: the tool output on
// success, a ToolErrorPayload otherwise.
func (r ToolExecutionResult) Payload() any {
	if !r.Success {
		return ToolErrorPayload{Error: r.Error}
	}
	return r.Result
}

// ServerStatus is the state of one tool server as shown by /status.
type ServerStatus struct {
	Name      string `json:"name"`
	Category  string `json:"category,omitempty"`
	Remote    bool   `json:"remote,omitempty"`
	Runtime   string `json:"runtime,omitempty"`
	Running   bool   `json:"running"`
	ToolCount int    `json:"toolCount"`
	Error     string `json:"error,omitempty"`
}
