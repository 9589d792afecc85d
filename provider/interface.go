// Package provider adapts LLM vendors to model.Provider.
//
// Each adapter turns a model.ChatRequest into one vendor request, consumes
// the streamed answer to completion and returns a model.ChatResponse with
// the accumulated content and tool calls. The conversation core never sees
// vendor types.
//
// Tool names travel namespaced as "<server>.<tool>". Hosted APIs reject
// dots, so the OpenAI-compatible and Anthropic adapters encode names on the
// way out and decode them on the way back (see mcp.EncodeToolName).
//
// Tool results for the follow-up round are built by FormatToolResult, which
// picks the envelope by provider id.
package provider

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama
}
