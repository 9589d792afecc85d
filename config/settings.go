package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type SecurityConfig struct {
	CredentialStorage SecurityMethod `toml:"credential_storage"`
	SSHKeyPath        string         `toml:"ssh_key_path,omitempty"`
}

type UserConfig struct {
	DefaultProvider     string            `toml:"default_provider"`
	DefaultModel        string            `toml:"default_model,omitempty"`
	DefaultSystemPrompt string            `toml:"default_system_prompt,omitempty"`
	StorageBackend      string            `toml:"storage_backend"`
	WorkspaceRoots      []string          `toml:"workspace_roots,omitempty"`
	ToolsEnabled        bool              `toml:"tools_enabled"`
	AutoExecuteTools    bool              `toml:"auto_execute_tools"`
	MaxParallelTools    int               `toml:"max_parallel_tools"`
	ToolTimeoutSeconds  int               `toml:"tool_timeout_seconds"`
	Security            SecurityConfig    `toml:"security"`
	Providers           []ProviderConfig  `toml:"providers"`
	MCPServers          []MCPServerConfig `toml:"mcp_servers"`
}

func userConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

func LoadSystemConfig() (*SystemConfig, error) {
	cfg := DefaultSystemConfig()
	settingsPath := GetSettingsFilePath()

	if !FileExists(settingsPath) {
		if err := CreateDefaultSystemConfig(); err != nil {
			return nil, fmt.Errorf("failed to create system config: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(settingsPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}

	return cfg, nil
}

// LoadUserConfig decodes <dataDir>/config.toml over the defaults, so keys
// missing from the file keep their default values.
func LoadUserConfig(dataDir string) (*UserConfig, error) {
	cfg := DefaultUserConfig()
	path := userConfigPath(dataDir)

	if !FileExists(path) {
		if err := CreateDefaultUserConfig(dataDir); err != nil {
			return nil, fmt.Errorf("failed to create user config: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config: %w", err)
	}

	return cfg, nil
}

func SaveUserConfig(cfg *UserConfig, dataDir string) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	f, err := os.OpenFile(userConfigPath(dataDir), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create user config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode user config: %w", err)
	}

	return nil
}

// UpdateToggles persists the tool toggles without touching the rest of the
// user config.
func UpdateToggles(dataDir string, toolsEnabled, autoExecute bool) error {
	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ToolsEnabled = toolsEnabled
	cfg.AutoExecuteTools = autoExecute
	if err := SaveUserConfig(cfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func CreateDefaultSystemConfig() error {
	if err := EnsureDir(GetConfigDir()); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	settingsPath := GetSettingsFilePath()
	if FileExists(settingsPath) {
		return nil
	}

	if err := os.WriteFile(settingsPath, []byte(GenerateSystemConfigTemplate()), 0600); err != nil {
		return fmt.Errorf("failed to write system config: %w", err)
	}

	return nil
}

func CreateDefaultUserConfig(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	path := userConfigPath(dataDir)
	if FileExists(path) {
		return nil
	}

	if err := os.WriteFile(path, []byte(GenerateUserConfigTemplate()), 0600); err != nil {
		return fmt.Errorf("failed to write user config: %w", err)
	}

	return nil
}
