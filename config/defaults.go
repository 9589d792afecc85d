package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/toolchat",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		DefaultProvider:    "ollama",
		StorageBackend:     StorageJSON,
		ToolsEnabled:       true,
		AutoExecuteTools:   true,
		MaxParallelTools:   4,
		ToolTimeoutSeconds: 60,
		Security: SecurityConfig{
			CredentialStorage: SecurityPlainText,
		},
		Providers: []ProviderConfig{
			{ID: "ollama", Name: "Ollama", BaseURL: "http://localhost:11434", Enabled: true, Model: "llama3.1:latest"},
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# toolchat System Configuration
# Location: ~/.config/toolchat/settings.toml
# This file uses TOML format: https://toml.io

# Directory where sessions, credentials and the user config are stored
data_directory = "~/.local/share/toolchat"
`
}

func GenerateUserConfigTemplate() string {
	return `# toolchat User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Provider used for new sessions: ollama, openai, openrouter, anthropic
default_provider = "ollama"

# System prompt prepended to every conversation (optional)
default_system_prompt = ""

# Session persistence: "json" (one file per session) or "sqlite"
storage_backend = "json"

# Directories searched for referenced and related files.
# Defaults to the directory toolchat was started from.
# workspace_roots = ["~/src/project"]

# Offer MCP tools to the model, and run requested tools without asking
tools_enabled = true
auto_execute_tools = true

# Tool calls from one model reply run concurrently up to this bound
max_parallel_tools = 4
tool_timeout_seconds = 60

[security]
# "plaintext" (credentials.toml) or "ssh_key" (credentials.enc)
credential_storage = "plaintext"
# ssh_key_path = "~/.ssh/id_ed25519"

[[providers]]
id = "ollama"
name = "Ollama"
base_url = "http://localhost:11434"
enabled = true
model = "llama3.1:latest"

# [[providers]]
# id = "anthropic"
# name = "Anthropic"
# enabled = true
# model = "claude-sonnet-4-5-20250929"

# MCP servers. ${workspaceFolder} in command, args and env is replaced with
# the first workspace root.
#
# [[mcp_servers]]
# name = "filesystem"
# command = "npx"
# args = ["-y", "@modelcontextprotocol/server-filesystem", "${workspaceFolder}"]
# category = "files"
# dangerous_tools = ["write_file", "move_file"]
# enabled = true
`
}
