package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"toolchat/config"
	"toolchat/mcp"
	"toolchat/model"
)

// OpenAIProvider implements model.Provider for any OpenAI-compatible chat
// completions API. It serves both OpenAI and OpenRouter; id tells them apart
// and selects the tool-result envelope.
type OpenAIProvider struct {
	client  openai.Client
	id      string
	model   string
	baseURL string
	apiKey  string
}

// NewOpenAIProvider creates a provider for the OpenAI API.
//
// Parameters:
//   - baseURL: OpenAI API base URL (default: "https://api.openai.com/v1")
//   - apiKey: OpenAI API key (required)
//   - model: Initial model to use (default: "gpt-4o-mini")
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return newOpenAICompatible(string(ProviderTypeOpenAI), baseURL, apiKey, model), nil
}

// NewOpenRouterProvider creates a provider for OpenRouter, which speaks the
// OpenAI protocol. Model names carry a vendor prefix ("qwen/qwen3-coder").
func NewOpenRouterProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required")
	}
	if model == "" {
		model = "meta-llama/llama-3.2-90b-instruct"
	}
	return newOpenAICompatible(string(ProviderTypeOpenRouter), baseURL, apiKey, model), nil
}

func newOpenAICompatible(id, baseURL, apiKey, model string) *OpenAIProvider {
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenAIProvider{
		client:  client,
		id:      id,
		model:   model,
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

func (p *OpenAIProvider) ID() string {
	return p.id
}

// Send streams one chat completion and returns the accumulated answer. Tool
// names are encoded on the way out and decoded on the way back.
func (p *OpenAIProvider) Send(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(req.Messages),
		Model:    openai.ChatModel(p.model),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	if req.EnableTools && len(req.Tools) > 0 {
		params.Tools = mcp.ConvertMCPToolsToOpenAIFormat(req.Tools)
		if req.ToolChoice != "" {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(req.ToolChoice),
			}
		}
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	var content strings.Builder
	var toolCalls []model.ToolCall

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			toolCalls = append(toolCalls, p.toolCall(tool.ID, tool.Name, tool.Arguments))
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			content.WriteString(chunk.Choices[0].Delta.Content)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("%s streaming error: %w", p.id, err)
	}

	// Some compatible servers end the stream without a finish chunk, so the
	// last call never shows up as "just finished".
	if len(acc.Choices) > 0 && len(acc.Choices[0].Message.ToolCalls) > len(toolCalls) {
		toolCalls = toolCalls[:0]
		for _, tc := range acc.Choices[0].Message.ToolCalls {
			toolCalls = append(toolCalls, p.toolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
		}
	}

	if config.DebugLog != nil && len(toolCalls) > 0 {
		config.DebugLog.Printf("[Provider] %s model '%s' requested %d tool calls", p.id, p.model, len(toolCalls))
	}

	return &model.ChatResponse{
		Content:               content.String(),
		Provider:              p.id,
		Model:                 p.model,
		ToolCalls:             toolCalls,
		RequiresToolExecution: len(toolCalls) > 0,
		TokenCount:            int(acc.Usage.TotalTokens),
	}, nil
}

func (p *OpenAIProvider) toolCall(id, name, arguments string) model.ToolCall {
	if id == "" {
		id = mcp.NewCallID()
	}
	return model.ToolCall{
		ID:        id,
		Name:      mcp.DecodeToolName(name),
		Arguments: ParseToolArguments(arguments),
	}
}

// ListModels returns the models the API offers. OpenRouter names are shown
// without their vendor prefix.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	modelsPage, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s models: %w", p.id, err)
	}

	result := make([]model.ModelInfo, 0, len(modelsPage.Data))
	for _, m := range modelsPage.Data {
		result = append(result, model.ModelInfo{
			Name:         p.displayName(m.ID),
			InternalName: m.ID,
			Provider:     p.id,
		})
	}

	return result, nil
}

// GetModel returns the full model name used for API calls.
func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// GetDisplayName returns the model name for the UI.
// Example: "qwen/qwen3-coder:free" → "qwen3-coder:free" on OpenRouter
func (p *OpenAIProvider) GetDisplayName() string {
	return p.displayName(p.model)
}

func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

// Ping attempts to list models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("%s ping failed: %w", p.id, err)
	}
	return nil
}

func (p *OpenAIProvider) displayName(modelName string) string {
	if p.id == string(ProviderTypeOpenRouter) {
		return stripProviderPrefix(modelName)
	}
	return modelName
}

// stripProviderPrefix removes vendor prefixes from OpenRouter model names.
// "meta-llama/llama-3.2-90b-instruct" → "llama-3.2-90b-instruct"
func stripProviderPrefix(modelName string) string {
	if idx := strings.Index(modelName, "/"); idx != -1 {
		return modelName[idx+1:]
	}
	return modelName
}
