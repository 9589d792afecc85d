package config

// MCPServerConfig describes one tool server. Local servers set Command;
// remote servers set URL and optionally Transport ("sse" or
// "streamable-http") and AuthType ("none", "headers" or "oauth").
type MCPServerConfig struct {
	Name           string            `toml:"name"`
	Command        string            `toml:"command,omitempty"`
	Args           []string          `toml:"args,omitempty"`
	Env            map[string]string `toml:"env,omitempty"`
	URL            string            `toml:"url,omitempty"`
	Transport      string            `toml:"transport,omitempty"`
	AuthType       string            `toml:"auth_type,omitempty"`
	Category       string            `toml:"category,omitempty"`
	DangerousTools []string          `toml:"dangerous_tools,omitempty"`
	Enabled        bool              `toml:"enabled"`
}

func (s MCPServerConfig) IsRemote() bool {
	return s.URL != ""
}

// IsDangerous reports whether a tool of this server was marked dangerous in
// config. "*" marks every tool of the server.
func (s MCPServerConfig) IsDangerous(toolName string) bool {
	for _, name := range s.DangerousTools {
		if name == "*" || name == toolName {
			return true
		}
	}
	return false
}

// EnabledMCPServers returns the servers that should be started.
func (c *Config) EnabledMCPServers() []MCPServerConfig {
	var servers []MCPServerConfig
	for _, s := range c.MCPServers {
		if s.Enabled {
			servers = append(servers, s)
		}
	}
	return servers
}
