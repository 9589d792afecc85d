package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"toolchat/model"
)

type Client struct {
	client  *api.Client
	model   string
	baseURL string
}

// ChatResult is a fully accumulated streaming response.
type ChatResult struct {
	Content    string
	ToolCalls  []api.ToolCall
	TokenCount int
}

func NewClient(baseURL, modelName string) (*Client, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llama3.1:latest"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   modelName,
		baseURL: baseURL,
	}, nil
}

// ChatWithTools streams a chat request and accumulates content and tool
// calls. onChunk, if set, sees every content delta.
func (c *Client) ChatWithTools(ctx context.Context, messages []api.Message, tools []api.Tool, onChunk func(string)) (*ChatResult, error) {
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    tools,
		Stream:   func(b bool) *bool { return &b }(true),
	}

	var result ChatResult
	var content strings.Builder

	respFunc := func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			content.WriteString(resp.Message.Content)
			if onChunk != nil {
				onChunk(resp.Message.Content)
			}
		}
		result.ToolCalls = append(result.ToolCalls, resp.Message.ToolCalls...)
		if resp.Done {
			result.TokenCount = resp.PromptEvalCount + resp.EvalCount
		}
		return nil
	}

	if err := c.client.Chat(ctx, req, respFunc); err != nil {
		return nil, err
	}

	result.Content = content.String()
	return &result, nil
}

func (c *Client) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]model.ModelInfo, len(resp.Models))
	for i, m := range resp.Models {
		models[i] = model.ModelInfo{
			Name:         m.Name,
			Size:         m.Size,
			Provider:     "ollama",
			InternalName: m.Name,
		}
	}

	return models, nil
}

func (c *Client) SetModel(modelName string) {
	c.model = modelName
}

func (c *Client) GetModel() string {
	return c.model
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.List(ctx)
	return err
}

// toolCallingModels records model families with known tool support. Families
// not listed are unknown and get tools offered anyway.
var toolCallingModels = map[string]bool{
	"qwen":      true,
	"llama3.1":  true,
	"llama3.2":  true,
	"llama3.3":  true,
	"mistral":   true,
	"command-r": true,
	"nemotron":  true,
	"granite3":  true,
	"gpt-oss":   true,

	"llama3-gradient": false,
	"llama3":          false,
	"phi":             false,
	"gemma":           false,
	"codellama":       false,
	"deepseek":        false,
}

// orderedPrefixes lists the most specific prefixes first so "llama3.2" is
// not matched as plain "llama3".
var orderedPrefixes = []string{
	"llama3.3", "llama3.2", "llama3.1",
	"llama3-gradient",
	"command-r", "qwen", "mistral", "nemotron", "granite3", "gpt-oss",
	"codellama",
	"llama3",
	"deepseek", "phi", "gemma",
}

// ModelToolSupport reports whether modelName supports Ollama tool calling
// and whether that is known at all.
func ModelToolSupport(modelName string) (supported, known bool) {
	modelName = strings.ToLower(modelName)

	for _, prefix := range orderedPrefixes {
		if strings.HasPrefix(modelName, prefix) {
			supported, known = toolCallingModels[prefix]
			return supported, known
		}
	}

	return false, false
}
