package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"toolchat/mcp"
	"toolchat/model"
)

// anthropicMaxTokens is the output cap sent with every request; the API
// requires one.
const anthropicMaxTokens = 4096

// AnthropicProvider implements model.Provider using Anthropic's Messages API.
type AnthropicProvider struct {
	client  *anthropic.Client
	model   anthropic.Model
	baseURL string
	apiKey  string
}

// NewAnthropicProvider creates a new Anthropic provider instance.
//
// Parameters:
//   - baseURL: Anthropic API base URL (default: "https://api.anthropic.com")
//   - apiKey: Anthropic API key (required)
//   - model: Initial model to use (default: "claude-sonnet-4-5-20250929")
func NewAnthropicProvider(baseURL, apiKey, model string) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	anthropicModel := anthropic.ModelClaudeSonnet4_5_20250929
	if model != "" {
		anthropicModel = anthropic.Model(model)
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:  &client,
		model:   anthropicModel,
		baseURL: baseURL,
		apiKey:  apiKey,
	}, nil
}

func (p *AnthropicProvider) ID() string {
	return string(ProviderTypeAnthropic)
}

// Send streams one message and accumulates it. System messages move to the
// system parameter; tool results travel as tool_result blocks.
func (p *AnthropicProvider) Send(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	messages, system := convertToAnthropicMessages(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: anthropicMaxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}

	if req.EnableTools && len(req.Tools) > 0 {
		params.Tools = mcp.ConvertMCPToolsToAnthropicFormat(req.Tools)
		switch req.ToolChoice {
		case model.ToolChoiceAuto:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		case model.ToolChoiceNone:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
		}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	msg := anthropic.Message{}

	for stream.Next() {
		if err := msg.Accumulate(stream.Current()); err != nil {
			return nil, fmt.Errorf("error accumulating message: %w", err)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("Anthropic streaming error: %w", err)
	}

	content, toolCalls := splitContent(msg.Content)

	return &model.ChatResponse{
		Content:               content,
		Provider:              p.ID(),
		Model:                 string(p.model),
		ToolCalls:             toolCalls,
		RequiresToolExecution: len(toolCalls) > 0,
		TokenCount:            int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}, nil
}

// ListModels returns a curated list; the SDK version in use has no
// dependable model listing for every account type.
func (p *AnthropicProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	models := []anthropic.Model{
		anthropic.ModelClaudeSonnet4_5_20250929,
		anthropic.ModelClaude3_5Haiku20241022,
		anthropic.ModelClaude_3_Opus_20240229,
		anthropic.ModelClaude_3_Haiku_20240307,
	}

	result := make([]model.ModelInfo, 0, len(models))
	for _, m := range models {
		result = append(result, model.ModelInfo{
			Name:         string(m),
			InternalName: string(m),
			Provider:     p.ID(),
		})
	}

	return result, nil
}

func (p *AnthropicProvider) GetModel() string {
	return string(p.model)
}

func (p *AnthropicProvider) GetDisplayName() string {
	return string(p.model)
}

func (p *AnthropicProvider) SetModel(model string) {
	p.model = anthropic.Model(model)
}

// Ping sends a one-token request; Anthropic has no health endpoint.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})

	if err != nil {
		return fmt.Errorf("Anthropic ping failed: %w", err)
	}
	return nil
}

// splitContent joins text blocks and extracts tool_use blocks. Tool names
// are decoded back to their dotted form.
func splitContent(blocks []anthropic.ContentBlockUnion) (string, []model.ToolCall) {
	var text string
	var toolCalls []model.ToolCall

	for _, block := range blocks {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += variant.Text
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if len(variant.Input) > 0 {
				if err := json.Unmarshal(variant.Input, &args); err != nil || args == nil {
					args = map[string]any{}
				}
			}

			id := variant.ID
			if id == "" {
				id = mcp.NewCallID()
			}
			toolCalls = append(toolCalls, model.ToolCall{
				ID:        id,
				Name:      mcp.DecodeToolName(variant.Name),
				Arguments: args,
			})
		}
	}

	return text, toolCalls
}
