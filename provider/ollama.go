package provider

import (
	"context"
	"fmt"

	"github.com/ollama/ollama/api"

	"toolchat/config"
	"toolchat/mcp"
	"toolchat/model"
	"toolchat/ollama"
)

// OllamaProvider wraps ollama.Client to implement model.Provider.
//
// Tool names are sent dotted; Ollama accepts them as-is. Calls come back
// without ids, so ids are generated (see mcp.ToolCallFromOllama).
type OllamaProvider struct {
	client *ollama.Client
}

// NewOllamaProvider creates a new Ollama provider instance.
//
// Empty baseURL and model fall back to "http://localhost:11434" and
// "llama3.1:latest". Returns an error if baseURL is invalid.
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	return &OllamaProvider{
		client: client,
	}, nil
}

func (p *OllamaProvider) ID() string {
	return string(ProviderTypeOllama)
}

// Send implements model.Provider.
//
// Tools are dropped for models known not to support tool calling; Ollama
// rejects the whole request otherwise. Unknown models get tools offered.
func (p *OllamaProvider) Send(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	var tools []api.Tool
	if req.EnableTools && req.ToolChoice != model.ToolChoiceNone && len(req.Tools) > 0 {
		supported, known := ollama.ModelToolSupport(p.client.GetModel())
		if known && !supported {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Ollama] Model '%s' has no tool support, skipping %d tools", p.client.GetModel(), len(req.Tools))
			}
		} else {
			tools = mcp.ConvertMCPToolsToOllama(req.Tools)
		}
	}

	result, err := p.client.ChatWithTools(ctx, ConvertToOllamaMessages(req.Messages), tools, nil)
	if err != nil {
		return nil, fmt.Errorf("Ollama chat failed: %w", err)
	}

	resp := &model.ChatResponse{
		Content:    result.Content,
		Provider:   p.ID(),
		Model:      p.client.GetModel(),
		TokenCount: result.TokenCount,
	}
	for _, call := range result.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, mcp.ToolCallFromOllama(call))
	}
	resp.RequiresToolExecution = len(resp.ToolCalls) > 0

	return resp, nil
}

// ListModels returns the models installed on the Ollama server.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return p.client.ListModels(ctx)
}

func (p *OllamaProvider) GetModel() string {
	return p.client.GetModel()
}

// GetDisplayName returns the model name; Ollama names carry no vendor prefix.
func (p *OllamaProvider) GetDisplayName() string {
	return p.client.GetModel()
}

func (p *OllamaProvider) SetModel(model string) {
	p.client.SetModel(model)
}

// Ping checks that the Ollama server answers within five seconds.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
