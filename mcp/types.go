package mcp

import (
	"os/exec"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"toolchat/config"
)

// ServerProcess is a connected tool server. Process is nil for remote and
// in-process servers.
type ServerProcess struct {
	Name      string
	Config    config.MCPServerConfig
	Process   *exec.Cmd
	Client    *client.Client
	Tools     []mcptypes.Tool
	Running   bool
	IsRemote  bool
	StartedAt time.Time
}

// ServerSpec is a server config with placeholders substituted and secrets
// merged into its environment, ready to launch.
type ServerSpec struct {
	Config  config.MCPServerConfig
	Command string
	Args    []string
	Env     map[string]string
}
