package model

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Tool choice values for ChatRequest.ToolChoice.
const (
	ToolChoiceAuto = "auto"
	ToolChoiceNone = "none"
)

// ChatRequest is one model round trip.
type ChatRequest struct {
	Messages    []Message
	Tools       []mcptypes.Tool
	EnableTools bool
	ToolChoice  string
}

// ChatResponse is the accumulated result of a request. RequiresToolExecution
// is true iff ToolCalls is non-empty.
type ChatResponse struct {
	Content               string
	Provider              string
	Model                 string
	ToolCalls             []ToolCall
	RequiresToolExecution bool
	TokenCount            int
}

// ModelInfo describes a model offered by a provider.
type ModelInfo struct {
	Name         string // Display name (stripped for OpenRouter)
	Size         int64
	Provider     string // Provider ID: "ollama", "openrouter", "openai", "anthropic"
	InternalName string // Full API name (e.g., "meta-llama/llama-3.2-90b" for OpenRouter)
}

// Provider abstracts one LLM vendor.
//
// This interface is defined in the model package (not provider package) so
// that the provider implementations and the conversation core can both
// depend on it without importing each other.
type Provider interface {
	// ID returns the provider id ("ollama", "openai", "openrouter", "anthropic").
	ID() string

	// Send runs one request to completion. Streaming, if any, is internal to
	// the adapter.
	Send(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ListModels returns available models for this provider.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// GetModel returns the currently selected model name used for API calls.
	GetModel() string

	// GetDisplayName returns the model name formatted for UI display.
	// For OpenRouter, this strips the vendor prefix (e.g., "qwen/qwen3-coder:free" → "qwen3-coder:free").
	GetDisplayName() string

	// SetModel changes the active model.
	SetModel(model string)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
