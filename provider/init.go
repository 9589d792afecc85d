package provider

import (
	"toolchat/config"
	"toolchat/model"
)

// InitializeProviders creates every enabled provider from config.
//
// API keys come from config.APIKey (environment first, then the credential
// store). A provider that cannot be created is logged and skipped so the
// app still starts, e.g. offline or without a key.
func InitializeProviders(cfg *config.Config) map[string]model.Provider {
	providers := make(map[string]model.Provider)

	for _, providerCfg := range cfg.EnabledProviders() {
		modelName := providerCfg.Model
		if modelName == "" && providerCfg.ID == cfg.DefaultProvider {
			modelName = cfg.DefaultModel
		}

		providerType := MapProviderIDToType(providerCfg.ID)
		p, err := NewProvider(Config{
			Type:    providerType,
			BaseURL: providerCfg.BaseURL,
			APIKey:  cfg.APIKey(providerCfg.ID),
			Model:   modelName,
		})
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Provider] Warning: failed to initialize provider %s: %v", providerCfg.ID, err)
			}
			continue
		}

		providers[providerCfg.ID] = p
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] Initialized provider: %s (type: %s, model: %s)", providerCfg.ID, providerType, p.GetModel())
		}
	}

	return providers
}
