package mcp

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const versionProbeTimeout = 3 * time.Second

// Runtime is a launcher a local server depends on, such as npx or uvx.
type Runtime struct {
	Name      string
	Installed bool
	Version   string
	Path      string
	Error     string
}

// RuntimeChecker resolves server commands on PATH and caches the result so
// a missing launcher is reported once, before any spawn attempt.
type RuntimeChecker struct {
	mu       sync.Mutex
	runtimes map[string]*Runtime
	lookPath func(string) (string, error)
}

func NewRuntimeChecker() *RuntimeChecker {
	return &RuntimeChecker{
		runtimes: make(map[string]*Runtime),
		lookPath: exec.LookPath,
	}
}

// CheckCommand returns the runtime for command or an error naming what is
// missing.
func (rc *RuntimeChecker) CheckCommand(ctx context.Context, command string) (*Runtime, error) {
	name := filepath.Base(command)

	rc.mu.Lock()
	runtime, ok := rc.runtimes[command]
	rc.mu.Unlock()
	if !ok {
		runtime = rc.detect(ctx, command, name)
		rc.mu.Lock()
		rc.runtimes[command] = runtime
		rc.mu.Unlock()
	}

	if !runtime.Installed {
		return nil, fmt.Errorf("%s", runtime.Error)
	}
	return runtime, nil
}

func (rc *RuntimeChecker) detect(ctx context.Context, command, name string) *Runtime {
	runtime := &Runtime{Name: name}

	path, err := rc.lookPath(command)
	if err != nil {
		runtime.Error = fmt.Sprintf("%s not found on PATH", name)
		return runtime
	}
	runtime.Path = path
	runtime.Installed = true

	// Only well-known launchers are asked for a version; arbitrary server
	// binaries may not treat --version as harmless
	if knownLauncher(name) {
		probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
		defer cancel()
		if out, err := exec.CommandContext(probeCtx, path, "--version").Output(); err == nil {
			runtime.Version = cleanVersion(string(out))
		}
	}

	return runtime
}

func knownLauncher(name string) bool {
	switch name {
	case "node", "npx", "uvx", "uv", "python", "python3", "docker", "deno", "bun":
		return true
	}
	return false
}

func cleanVersion(out string) string {
	line := strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])
	line = strings.TrimPrefix(line, "Python ")
	line = strings.TrimPrefix(line, "Docker version ")
	line = strings.TrimPrefix(line, "v")
	if idx := strings.Index(line, ","); idx != -1 {
		line = line[:idx]
	}
	return line
}

func (r *Runtime) String() string {
	if r == nil {
		return ""
	}
	if r.Version == "" {
		return r.Name
	}
	return r.Name + " " + r.Version
}
