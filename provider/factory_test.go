package provider

import (
	"testing"

	"toolchat/model"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		expectID    string
	}{
		{
			name:     "ollama provider with defaults",
			config:   Config{Type: ProviderTypeOllama},
			expectID: "ollama",
		},
		{
			name: "ollama provider with custom config",
			config: Config{
				Type:    ProviderTypeOllama,
				BaseURL: "http://localhost:11434",
				Model:   "llama3.1",
			},
			expectID: "ollama",
		},
		{
			name: "openai provider",
			config: Config{
				Type:    ProviderTypeOpenAI,
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
				APIKey:  "test-key",
			},
			expectID: "openai",
		},
		{
			name: "openrouter provider",
			config: Config{
				Type:   ProviderTypeOpenRouter,
				Model:  "qwen/qwen3-coder:free",
				APIKey: "test-key",
			},
			expectID: "openrouter",
		},
		{
			name: "anthropic provider",
			config: Config{
				Type:    ProviderTypeAnthropic,
				BaseURL: "https://api.anthropic.com",
				Model:   "claude-sonnet-4-5-20250929",
				APIKey:  "test-key",
			},
			expectID: "anthropic",
		},
		{
			name:        "openai without key",
			config:      Config{Type: ProviderTypeOpenAI},
			expectError: true,
		},
		{
			name:        "anthropic without key",
			config:      Config{Type: ProviderTypeAnthropic},
			expectError: true,
		},
		{
			name: "unknown provider type",
			config: Config{
				Type:    ProviderType("unknown"),
				BaseURL: "http://localhost",
				Model:   "test",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				if p != nil {
					t.Error("expected nil provider, got non-nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.ID() != tt.expectID {
				t.Errorf("ID() = %q, want %q", p.ID(), tt.expectID)
			}
		})
	}
}

// TestFactoryReturnsOllamaProvider verifies that the factory returns an actual OllamaProvider
func TestFactoryReturnsOllamaProvider(t *testing.T) {
	p, err := NewProvider(Config{
		Type:    ProviderTypeOllama,
		BaseURL: "http://localhost:11434",
		Model:   "llama3.1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := p.(*OllamaProvider); !ok {
		t.Errorf("expected *OllamaProvider, got %T", p)
	}
}

func TestMapProviderIDToType(t *testing.T) {
	tests := map[string]ProviderType{
		"ollama":     ProviderTypeOllama,
		"openai":     ProviderTypeOpenAI,
		"openrouter": ProviderTypeOpenRouter,
		"anthropic":  ProviderTypeAnthropic,
		"custom":     ProviderType("custom"),
	}

	for id, want := range tests {
		if got := MapProviderIDToType(id); got != want {
			t.Errorf("MapProviderIDToType(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestOpenRouterDisplayName(t *testing.T) {
	p, err := NewOpenRouterProvider("", "key", "qwen/qwen3-coder:free")
	if err != nil {
		t.Fatal(err)
	}

	if p.GetModel() != "qwen/qwen3-coder:free" {
		t.Errorf("GetModel() = %q", p.GetModel())
	}
	if p.GetDisplayName() != "qwen3-coder:free" {
		t.Errorf("GetDisplayName() = %q", p.GetDisplayName())
	}

	var _ model.Provider = p
}
