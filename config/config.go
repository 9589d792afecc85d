package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageJSON   = "json"
	StorageSQLite = "sqlite"
)

// Config is the resolved runtime configuration: system settings, the user
// config file and environment overrides merged together.
type Config struct {
	DataDirectory       string
	DefaultProvider     string
	DefaultModel        string
	DefaultSystemPrompt string
	StorageBackend      string
	WorkspaceRoots      []string
	ToolsEnabled        bool
	AutoExecuteTools    bool
	MaxParallelTools    int
	ToolTimeout         time.Duration
	Providers           []ProviderConfig
	MCPServers          []MCPServerConfig
	Security            SecurityConfig
	CredentialStore     *CredentialStore
	Keybindings         *KeyBindingsConfig
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// Provider returns the configuration entry for a provider id.
func (c *Config) Provider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// APIKey resolves a provider API key. TOOLCHAT_<PROVIDER>_API_KEY wins over
// the credential store.
func (c *Config) APIKey(providerID string) string {
	envName := "TOOLCHAT_" + strings.ToUpper(providerID) + "_API_KEY"
	if key := os.Getenv(envName); key != "" {
		return key
	}
	if c.CredentialStore != nil {
		return c.CredentialStore.Get(providerID)
	}
	return ""
}

func (c *Config) applyUserConfig(userCfg *UserConfig) {
	c.DefaultProvider = userCfg.DefaultProvider
	c.DefaultModel = userCfg.DefaultModel
	c.DefaultSystemPrompt = userCfg.DefaultSystemPrompt
	c.StorageBackend = userCfg.StorageBackend
	c.WorkspaceRoots = userCfg.WorkspaceRoots
	c.ToolsEnabled = userCfg.ToolsEnabled
	c.AutoExecuteTools = userCfg.AutoExecuteTools
	c.MaxParallelTools = userCfg.MaxParallelTools
	if userCfg.ToolTimeoutSeconds > 0 {
		c.ToolTimeout = time.Duration(userCfg.ToolTimeoutSeconds) * time.Second
	}
	c.Providers = userCfg.Providers
	c.MCPServers = userCfg.MCPServers
	c.Security = userCfg.Security
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("TOOLCHAT_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if provider := os.Getenv("TOOLCHAT_PROVIDER"); provider != "" {
		c.DefaultProvider = provider
	}
	if model := os.Getenv("TOOLCHAT_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if host := os.Getenv("TOOLCHAT_OLLAMA_HOST"); host != "" {
		found := false
		for i := range c.Providers {
			if c.Providers[i].ID == "ollama" {
				c.Providers[i].BaseURL = host
				found = true
			}
		}
		if !found {
			c.Providers = append(c.Providers, ProviderConfig{
				ID:      "ollama",
				Name:    ProviderDisplayName("ollama"),
				BaseURL: host,
				Enabled: true,
			})
		}
	}
}

func (c *Config) normalize() {
	if c.DefaultProvider == "" {
		c.DefaultProvider = "ollama"
	}
	switch c.StorageBackend {
	case StorageJSON, StorageSQLite:
	default:
		c.StorageBackend = StorageJSON
	}
	if c.MaxParallelTools <= 0 {
		c.MaxParallelTools = 4
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = 60 * time.Second
	}
	if len(c.WorkspaceRoots) == 0 {
		if wd, err := os.Getwd(); err == nil {
			c.WorkspaceRoots = []string{wd}
		}
	}
	for i, root := range c.WorkspaceRoots {
		c.WorkspaceRoots[i] = ExpandPath(root)
	}
	if c.Security.CredentialStorage == "" {
		c.Security.CredentialStorage = SecurityPlainText
	}
}

func CheckDebug() bool {
	debug := os.Getenv("TOOLCHAT_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600: prompts and tool output end up in here
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (TOOLCHAT_DEBUG=%s) ===", os.Getenv("TOOLCHAT_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Load reads settings.toml and <data_dir>/config.toml, creating templates on
// first run, then applies environment overrides and loads credentials.
func Load() (*Config, error) {
	loadDotEnv(".env")

	defaults := DefaultUserConfig()
	cfg := &Config{DataDirectory: DefaultSystemConfig().DataDirectory}
	cfg.applyUserConfig(defaults)

	if dataDir := os.Getenv("TOOLCHAT_DATA_DIR"); dataDir == "" {
		systemCfg, err := LoadSystemConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load system config: %w", err)
		}
		cfg.DataDirectory = systemCfg.DataDirectory
	} else {
		cfg.DataDirectory = dataDir
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	loadDotEnv(filepath.Join(dataDir, ".env"))

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.applyUserConfig(userCfg)
	cfg.applyEnvOverrides()
	cfg.normalize()

	cfg.Keybindings, err = LoadKeybindings(dataDir)
	if err != nil {
		if DebugLog != nil {
			DebugLog.Printf("[Config] Using default keybindings: %v", err)
		}
		cfg.Keybindings = DefaultKeybindings()
	}
	if ok, warning := cfg.Keybindings.Validate(); !ok {
		if DebugLog != nil {
			DebugLog.Printf("[Config] Invalid keybindings (%s), using defaults", warning)
		}
		cfg.Keybindings = DefaultKeybindings()
	}

	resolveSSHKeyPath(&cfg.Security)
	cfg.CredentialStore = NewCredentialStore(cfg.Security.CredentialStorage, ExpandPath(cfg.Security.SSHKeyPath))
	if passphrase := os.Getenv("TOOLCHAT_SSH_PASSPHRASE"); passphrase != "" {
		cfg.CredentialStore.SetPassphrase(passphrase)
	} else if cfg.Security.CredentialStorage == SecuritySSHKey && cfg.Security.SSHKeyPath != "" {
		if encrypted, err := IsSSHKeyEncrypted(ExpandPath(cfg.Security.SSHKeyPath)); err == nil && encrypted && DebugLog != nil {
			DebugLog.Printf("[Config] SSH key is encrypted and TOOLCHAT_SSH_PASSPHRASE is not set")
		}
	}
	if err := cfg.CredentialStore.Load(dataDir); err != nil {
		// Encrypted keys may need a passphrase; env keys still work without it
		if DebugLog != nil {
			DebugLog.Printf("[Config] Credential store not loaded: %v", err)
		}
	}

	return cfg, nil
}

// loadDotEnv exports KEY=value pairs from path. Variables already set in the
// environment win.
func loadDotEnv(path string) {
	if !FileExists(path) {
		return
	}
	if err := godotenv.Load(path); err != nil && DebugLog != nil {
		DebugLog.Printf("[Config] Ignoring %s: %v", path, err)
	}
}
