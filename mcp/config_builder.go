package mcp

import (
	"os"
	"regexp"
	"strings"

	"toolchat/config"
)

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_:]+)\}`)

// Placeholders holds the values substituted into server commands, args and
// env values.
type Placeholders struct {
	WorkspaceFolder string
	DataDir         string
}

// Substitute replaces ${workspaceFolder}, ${dataDir} and ${env:NAME}.
// Unknown placeholders are left as they are.
func (p Placeholders) Substitute(s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		switch {
		case name == "workspaceFolder":
			return p.WorkspaceFolder
		case name == "dataDir":
			return p.DataDir
		case strings.HasPrefix(name, "env:"):
			return os.Getenv(strings.TrimPrefix(name, "env:"))
		}
		return match
	})
}

// BuildServerSpec resolves a server config for launch. Secrets from the
// credential store override env values with the same key.
func BuildServerSpec(cfg config.MCPServerConfig, p Placeholders, secrets map[string]string) ServerSpec {
	spec := ServerSpec{
		Config:  cfg,
		Command: p.Substitute(cfg.Command),
		Env:     BuildEnvMap(cfg.Env, secrets, p),
	}

	for _, arg := range cfg.Args {
		spec.Args = append(spec.Args, p.Substitute(arg))
	}
	spec.Config.URL = p.Substitute(cfg.URL)

	return spec
}

// BuildEnvMap merges configured env values with stored secrets.
func BuildEnvMap(env, secrets map[string]string, p Placeholders) map[string]string {
	out := make(map[string]string, len(env)+len(secrets))
	for k, v := range env {
		out[k] = p.Substitute(v)
	}
	for k, v := range secrets {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func envList(envMap map[string]string) []string {
	// Inherit the parent environment so PATH and friends survive
	env := os.Environ()
	for k, v := range envMap {
		env = append(env, k+"="+v)
	}
	return env
}
