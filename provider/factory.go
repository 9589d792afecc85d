package provider

import (
	"fmt"

	"toolchat/model"
)

// NewProvider creates a provider based on configuration.
//
// Returns an error if the type is unknown or the provider-specific
// constructor fails (invalid URL, missing API key).
//
// Example:
//
//	p, err := provider.NewProvider(provider.Config{
//	    Type:    provider.ProviderTypeOllama,
//	    BaseURL: "http://localhost:11434",
//	    Model:   "llama3.1",
//	})
func NewProvider(cfg Config) (model.Provider, error) {
	switch cfg.Type {
	case ProviderTypeOllama:
		return asProvider(NewOllamaProvider(cfg.BaseURL, cfg.Model))
	case ProviderTypeOpenRouter:
		return asProvider(NewOpenRouterProvider(cfg.BaseURL, cfg.APIKey, cfg.Model))
	case ProviderTypeOpenAI:
		return asProvider(NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model))
	case ProviderTypeAnthropic:
		return asProvider(NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model))
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// MapProviderIDToType converts a config provider id to a ProviderType.
// Unknown ids are passed through and rejected by NewProvider.
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "ollama":
		return ProviderTypeOllama
	case "openrouter":
		return ProviderTypeOpenRouter
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic":
		return ProviderTypeAnthropic
	default:
		return ProviderType(id)
	}
}

// asProvider keeps a failed constructor's typed nil pointer out of the
// interface.
func asProvider[P model.Provider](p P, err error) (model.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
