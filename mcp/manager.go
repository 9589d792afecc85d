package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"toolchat/config"
	"toolchat/model"
)

// Manager is the tool registry and executor used by the orchestrator.
type Manager struct {
	mu           sync.RWMutex
	servers      []config.MCPServerConfig
	failed       map[string]error
	builtin      bool
	runtimes     map[string]string
	pm           *ProcessManager
	aggregator   *ToolAggregator
	checker      *RuntimeChecker
	placeholders Placeholders
	credentials  *config.CredentialStore
}

func NewManager(dataDir string, placeholders Placeholders, credentials *config.CredentialStore) *Manager {
	pm := NewProcessManager(dataDir, credentials)
	return &Manager{
		failed:       make(map[string]error),
		runtimes:     make(map[string]string),
		pm:           pm,
		aggregator:   NewToolAggregator(pm),
		checker:      NewRuntimeChecker(),
		placeholders: placeholders,
		credentials:  credentials,
	}
}

// AttachServer connects an in-process server under cfg.Name.
func (m *Manager) AttachServer(ctx context.Context, cfg config.MCPServerConfig, srv *server.MCPServer) error {
	mcpClient, err := client.NewInProcessClient(srv)
	if err != nil {
		return fmt.Errorf("failed to create in-process client: %w", err)
	}
	if err := m.pm.Attach(ctx, cfg, mcpClient); err != nil {
		return err
	}

	m.mu.Lock()
	if cfg.Name == BuiltinServerName {
		m.builtin = true
	}
	m.mu.Unlock()
	return nil
}

// Start launches every enabled server. A server that fails to start is
// recorded for Status and skipped; the rest still start.
func (m *Manager) Start(ctx context.Context, servers []config.MCPServerConfig) error {
	m.mu.Lock()
	m.servers = append([]config.MCPServerConfig(nil), servers...)
	m.failed = make(map[string]error)
	m.mu.Unlock()

	var started int
	for _, cfg := range servers {
		if !cfg.Enabled {
			continue
		}
		if cfg.Name == "" || strings.Contains(cfg.Name, ".") {
			m.recordFailure(cfg.Name, fmt.Errorf("invalid server name %q", cfg.Name))
			continue
		}

		var secrets map[string]string
		if m.credentials != nil {
			secrets = m.credentials.ServerSecrets(cfg.Name)
		}
		spec := BuildServerSpec(cfg, m.placeholders, secrets)

		if !cfg.IsRemote() && spec.Command != "" {
			runtime, err := m.checker.CheckCommand(ctx, spec.Command)
			if err != nil {
				m.recordFailure(cfg.Name, err)
				continue
			}
			m.mu.Lock()
			m.runtimes[cfg.Name] = runtime.String()
			m.mu.Unlock()
		}

		if err := m.pm.StartServer(ctx, spec); err != nil {
			m.recordFailure(cfg.Name, err)
			continue
		}
		started++
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Start: %d of %d configured servers running", started, len(servers))
	}
	return nil
}

func (m *Manager) recordFailure(name string, err error) {
	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Server '%s' failed: %v", name, err)
	}
	m.mu.Lock()
	m.failed[name] = err
	m.mu.Unlock()
}

// Refresh replaces the configured servers. In-process servers stay attached
// and have their tool lists re-read.
func (m *Manager) Refresh(ctx context.Context, servers []config.MCPServerConfig) error {
	for _, name := range m.pm.Running() {
		if name == BuiltinServerName {
			if err := m.pm.RefreshTools(ctx, name); err != nil && config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Refresh: Error listing tools for '%s': %v", name, err)
			}
			continue
		}
		if err := m.pm.StopServer(ctx, name); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[MCP] Refresh: Error stopping '%s': %v", name, err)
		}
	}
	return m.Start(ctx, servers)
}

// ListTools returns the current catalog. It is re-read on every turn.
func (m *Manager) ListTools() []model.ToolInfo {
	return m.aggregator.Catalog()
}

// Execute runs one tool call. A tool that reports an error yields a failed
// result; an unreachable server or transport failure is returned as an error.
func (m *Manager) Execute(ctx context.Context, req model.ToolExecutionRequest) (model.ToolExecutionResult, error) {
	start := time.Now()

	res, err := m.aggregator.ExecuteTool(ctx, req.ToolName, req.Arguments)
	if err != nil {
		return model.ToolExecutionResult{}, fmt.Errorf("failed to call %s: %w", req.ToolName, err)
	}

	payload, text := resultPayload(res)
	result := model.ToolExecutionResult{
		ToolName:  req.ToolName,
		Success:   !res.IsError,
		RequestID: req.RequestID,
		Duration:  time.Since(start),
	}
	if res.IsError {
		result.Error = text
		if result.Error == "" {
			result.Error = "tool reported an error"
		}
	} else {
		result.Result = payload
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Execute: %s (request %s) success=%v in %v", req.ToolName, req.RequestID, result.Success, result.Duration)
	}

	return result, nil
}

// Status reports every configured server plus attached in-process ones.
func (m *Manager) Status() []model.ServerStatus {
	m.mu.RLock()
	servers := append([]config.MCPServerConfig(nil), m.servers...)
	failed := make(map[string]error, len(m.failed))
	for k, v := range m.failed {
		failed[k] = v
	}
	runtimes := make(map[string]string, len(m.runtimes))
	for k, v := range m.runtimes {
		runtimes[k] = v
	}
	builtin := m.builtin
	m.mu.RUnlock()

	if builtin {
		servers = append([]config.MCPServerConfig{BuiltinServerConfig()}, servers...)
	}

	var statuses []model.ServerStatus
	for _, cfg := range servers {
		st := model.ServerStatus{
			Name:     cfg.Name,
			Category: cfg.Category,
			Remote:   cfg.IsRemote(),
			Runtime:  runtimes[cfg.Name],
		}
		if !cfg.Enabled {
			st.Error = "disabled"
		}
		if tools, err := m.pm.GetTools(cfg.Name); err == nil {
			st.Running = true
			st.ToolCount = len(tools)
		}
		if err := failed[cfg.Name]; err != nil {
			st.Error = err.Error()
		}
		statuses = append(statuses, st)
	}
	return statuses
}

func (m *Manager) Shutdown(ctx context.Context) error {
	err := m.pm.Shutdown(ctx)

	m.mu.Lock()
	m.builtin = false
	m.mu.Unlock()

	return err
}

// resultPayload flattens MCP content. All-text results become one string;
// anything else is kept as decoded JSON so the model sees its structure.
func resultPayload(res *mcptypes.CallToolResult) (any, string) {
	var texts []string
	allText := true

	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcptypes.TextContent:
			texts = append(texts, tc.Text)
		case *mcptypes.TextContent:
			texts = append(texts, tc.Text)
		default:
			allText = false
		}
	}

	text := strings.Join(texts, "\n")
	if allText {
		return text, text
	}

	data, err := json.Marshal(res.Content)
	if err != nil {
		return text, text
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return text, text
	}
	return generic, text
}
