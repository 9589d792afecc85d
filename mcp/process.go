package mcp

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	globalconfig "toolchat/config"
)

const (
	clientName    = "toolchat"
	clientVersion = "1.0.0"
	closeTimeout  = 1 * time.Second
)

// ProcessManager owns the connections to tool servers.
type ProcessManager struct {
	processes   map[string]*ServerProcess
	dataDir     string                         // for OAuth token files
	credentials *globalconfig.CredentialStore // for token encryption
	mu          sync.RWMutex
}

func NewProcessManager(dataDir string, credentials *globalconfig.CredentialStore) *ProcessManager {
	return &ProcessManager{
		processes:   make(map[string]*ServerProcess),
		dataDir:     dataDir,
		credentials: credentials,
	}
}

// StartServer connects to a server, initializes the session and lists its
// tools.
func (pm *ProcessManager) StartServer(ctx context.Context, spec ServerSpec) error {
	name := spec.Config.Name
	isRemote := spec.Config.IsRemote()

	pm.mu.Lock()
	switch {
	case pm.processes[name] != nil && pm.processes[name].Running:
		pm.mu.Unlock()
		return fmt.Errorf("server %s already running", name)
	}
	pm.mu.Unlock()

	var mcpClient *client.Client
	var capturedCmd *exec.Cmd
	var err error

	switch {
	case isRemote:
		mcpClient, err = pm.createRemoteClient(ctx, spec)
		if err != nil {
			return fmt.Errorf("failed to connect to remote server %s: %w", name, err)
		}

		switch {
		case globalconfig.DebugLog != nil:
			globalconfig.DebugLog.Printf("[MCP] Connected to remote server '%s' at %s (auth: %s)",
				name, spec.Config.URL, spec.Config.AuthType)
		}

	case spec.Command != "":
		mcpClient, capturedCmd, err = pm.createLocalClient(spec)
		if err != nil {
			return fmt.Errorf("failed to start local server %s: %w", name, err)
		}

	default:
		return fmt.Errorf("server %s has neither a command nor a url", name)
	}

	return pm.register(ctx, spec.Config, mcpClient, capturedCmd)
}

// Attach registers a client that is already connected, such as an
// in-process server.
func (pm *ProcessManager) Attach(ctx context.Context, cfg globalconfig.MCPServerConfig, mcpClient *client.Client) error {
	pm.mu.RLock()
	_, exists := pm.processes[cfg.Name]
	pm.mu.RUnlock()
	if exists {
		return fmt.Errorf("server %s already running", cfg.Name)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start in-process transport: %w", err)
	}
	return pm.register(ctx, cfg, mcpClient, nil)
}

func (pm *ProcessManager) register(ctx context.Context, cfg globalconfig.MCPServerConfig, mcpClient *client.Client, cmd *exec.Cmd) error {
	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: mcptypes.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	}

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize server %s: %w", cfg.Name, err)
	}

	toolsResult, err := mcpClient.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to list tools for %s: %w", cfg.Name, err)
	}

	pm.mu.Lock()
	pm.processes[cfg.Name] = &ServerProcess{
		Name:      cfg.Name,
		Config:    cfg,
		Process:   cmd,
		Client:    mcpClient,
		Tools:     toolsResult.Tools,
		Running:   true,
		IsRemote:  cfg.IsRemote(),
		StartedAt: time.Now(),
	}
	pm.mu.Unlock()

	if globalconfig.DebugLog != nil {
		globalconfig.DebugLog.Printf("[MCP] Server '%s' ready with %d tools", cfg.Name, len(toolsResult.Tools))
	}

	return nil
}

func (pm *ProcessManager) StopServer(ctx context.Context, name string) error {
	pm.mu.Lock()
	proc, exists := pm.processes[name]
	switch {
	case !exists:
		pm.mu.Unlock()
		return fmt.Errorf("server %s not found", name)
	}

	// Remove first so no new calls are routed to it
	proc.Running = false
	delete(pm.processes, name)
	pm.mu.Unlock()

	clientClosed := false
	if proc.Client != nil {
		closeCtx, cancel := context.WithTimeout(ctx, closeTimeout)
		defer cancel()

		closeDone := make(chan error, 1)
		go func() {
			closeDone <- proc.Client.Close()
		}()

		select {
		case err := <-closeDone:
			switch {
			case err != nil && globalconfig.DebugLog != nil:
				globalconfig.DebugLog.Printf("[MCP] StopServer: Error closing client for '%s': %v", name, err)
			case err == nil:
				clientClosed = true
			}
		case <-closeCtx.Done():
			if globalconfig.DebugLog != nil {
				globalconfig.DebugLog.Printf("[MCP] StopServer: Close timeout for '%s'", name)
			}
		}
	}

	// A hung close leaves the subprocess behind
	if !clientClosed && !proc.IsRemote && proc.Process != nil && proc.Process.Process != nil {
		if globalconfig.DebugLog != nil {
			globalconfig.DebugLog.Printf("[MCP] StopServer: Killing process for '%s' (PID: %d)", name, proc.Process.Process.Pid)
		}
		if err := proc.Process.Process.Kill(); err != nil && globalconfig.DebugLog != nil {
			globalconfig.DebugLog.Printf("[MCP] StopServer: Error killing process for '%s': %v", name, err)
		}
	}

	return nil
}

func (pm *ProcessManager) GetClient(name string) (*client.Client, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	proc, exists := pm.processes[name]
	if !exists || !proc.Running {
		return nil, fmt.Errorf("server %s not running", name)
	}

	return proc.Client, nil
}

func (pm *ProcessManager) GetTools(name string) ([]mcptypes.Tool, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	proc, exists := pm.processes[name]
	if !exists || !proc.Running {
		return nil, fmt.Errorf("server %s not running", name)
	}

	return proc.Tools, nil
}

// Running returns the names of connected servers.
func (pm *ProcessManager) Running() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	names := make([]string, 0, len(pm.processes))
	for name, proc := range pm.processes {
		if proc.Running {
			names = append(names, name)
		}
	}
	return names
}

func (pm *ProcessManager) RefreshTools(ctx context.Context, name string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	proc, exists := pm.processes[name]
	if !exists || !proc.Running {
		return fmt.Errorf("server %s not running", name)
	}

	toolsResult, err := proc.Client.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to refresh tools: %w", err)
	}

	proc.Tools = toolsResult.Tools
	return nil
}

// Shutdown stops every server in parallel.
func (pm *ProcessManager) Shutdown(ctx context.Context) error {
	pm.mu.Lock()
	names := make([]string, 0, len(pm.processes))
	for name := range pm.processes {
		names = append(names, name)
	}
	pm.mu.Unlock()

	if globalconfig.DebugLog != nil {
		globalconfig.DebugLog.Printf("[MCP] Shutdown: Stopping %d servers", len(names))
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(names))

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := pm.StopServer(ctx, name); err != nil {
				errChan <- err
			}
		}(name)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	return nil
}

func (pm *ProcessManager) createRemoteClient(ctx context.Context, spec ServerSpec) (*client.Client, error) {
	transportType := spec.Config.Transport
	switch {
	case transportType == "":
		transportType = "sse"
	}

	switch transportType {
	case "streamable-http":
		return pm.createStreamableHttpClient(ctx, spec)
	case "sse":
		switch spec.Config.AuthType {
		case "oauth":
			return pm.createOAuthClient(ctx, spec)
		case "headers", "none", "":
			return pm.createHeadersClient(ctx, spec)
		default:
			return nil, fmt.Errorf("unknown auth type: %s", spec.Config.AuthType)
		}
	default:
		return nil, fmt.Errorf("unknown transport type: %s", transportType)
	}
}

// createHeadersClient sends env values as HTTP headers.
func (pm *ProcessManager) createHeadersClient(ctx context.Context, spec ServerSpec) (*client.Client, error) {
	var opts []transport.ClientOption
	switch {
	case len(spec.Env) > 0:
		opts = append(opts, transport.WithHeaders(spec.Env))
	}

	mcpClient, err := client.NewSSEMCPClient(spec.Config.URL, opts...)
	if err != nil {
		return nil, err
	}

	if err := mcpClient.GetTransport().Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start SSE transport: %w", err)
	}

	return mcpClient, nil
}

func (pm *ProcessManager) createOAuthClient(ctx context.Context, spec ServerSpec) (*client.Client, error) {
	clientID := spec.Env["OAUTH_CLIENT_ID"]
	redirectURI := spec.Env["OAUTH_REDIRECT_URI"]

	switch {
	case clientID == "":
		return nil, fmt.Errorf("OAUTH_CLIENT_ID required for OAuth auth")
	case redirectURI == "":
		return nil, fmt.Errorf("OAUTH_REDIRECT_URI required for OAuth auth")
	}

	var scopes []string
	if s := spec.Env["OAUTH_SCOPES"]; s != "" {
		for _, scope := range strings.Split(s, ",") {
			scopes = append(scopes, strings.TrimSpace(scope))
		}
	}

	oauthConfig := client.OAuthConfig{
		ClientID:     clientID,
		ClientSecret: spec.Env["OAUTH_CLIENT_SECRET"],
		RedirectURI:  redirectURI,
		Scopes:       scopes,
		TokenStore:   pm.tokenStore(spec.Config.Name),
		PKCEEnabled:  true,
	}

	mcpClient, err := client.NewOAuthSSEClient(spec.Config.URL, oauthConfig)
	if err != nil {
		return nil, err
	}

	if err := mcpClient.GetTransport().Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start SSE transport: %w", err)
	}

	return mcpClient, nil
}

// tokenStore persists OAuth tokens next to the credentials, encrypted the
// same way. Without a data dir tokens only live for this run.
func (pm *ProcessManager) tokenStore(name string) transport.TokenStore {
	if pm.dataDir == "" {
		return transport.NewMemoryTokenStore()
	}
	if pm.credentials == nil || pm.credentials.Method() == globalconfig.SecurityPlainText {
		return globalconfig.NewFileTokenStore(name, pm.dataDir, nil)
	}

	encMgr, err := pm.credentials.EncryptionManager()
	if err != nil {
		if globalconfig.DebugLog != nil {
			globalconfig.DebugLog.Printf("[MCP] Token encryption unavailable for '%s', using memory store: %v", name, err)
		}
		return transport.NewMemoryTokenStore()
	}
	return globalconfig.NewFileTokenStore(name, pm.dataDir, encMgr)
}

func (pm *ProcessManager) createStreamableHttpClient(ctx context.Context, spec ServerSpec) (*client.Client, error) {
	var opts []transport.StreamableHTTPCOption
	switch {
	case len(spec.Env) > 0:
		opts = append(opts, transport.WithHTTPHeaders(spec.Env))
	}

	mcpClient, err := client.NewStreamableHttpClient(spec.Config.URL, opts...)
	if err != nil {
		return nil, err
	}

	if err := mcpClient.GetTransport().Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start HTTP transport: %w", err)
	}

	return mcpClient, nil
}

// createLocalClient spawns a stdio server and returns its command so the
// process can be killed if closing hangs.
func (pm *ProcessManager) createLocalClient(spec ServerSpec) (*client.Client, *exec.Cmd, error) {
	var capturedCmd *exec.Cmd

	switch {
	case globalconfig.DebugLog != nil:
		globalconfig.DebugLog.Printf("[MCP] StartServer: '%s' - Command='%s', Args=%v", spec.Config.Name, spec.Command, spec.Args)
	}

	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		capturedCmd = cmd
		return cmd, nil
	}

	mcpClient, err := client.NewStdioMCPClientWithOptions(
		spec.Command,
		envList(spec.Env),
		spec.Args,
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case capturedCmd != nil && capturedCmd.Process != nil && globalconfig.DebugLog != nil:
		globalconfig.DebugLog.Printf("[MCP] Started local server '%s' with PID %d", spec.Config.Name, capturedCmd.Process.Pid)
	}

	return mcpClient, capturedCmd, nil
}
