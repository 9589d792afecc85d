package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"toolchat/chat"
	"toolchat/config"
	"toolchat/mcp"
	"toolchat/provider"
	"toolchat/storage"
	"toolchat/ui"
	"toolchat/workspace"
)

const (
	Version = "v0.01.00"
	License = "Apache-2.0"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("toolchat %s (%s)\n", Version, License)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize debug logging after config is loaded
	config.InitDebugLog(cfg.DataDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := storage.Open(cfg.StorageBackend, cfg.DataDir())
	if err != nil {
		return fmt.Errorf("failed to open %s session storage: %w", cfg.StorageBackend, err)
	}
	defer func() {
		if err := backend.Close(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("Warning: failed to close session storage: %v", err)
		}
	}()

	toggles := config.NewToggles(cfg)
	toggles.Subscribe(func(s config.ToggleSnapshot) {
		if err := config.UpdateToggles(cfg.DataDir(), s.ToolsEnabled, s.AutoExecute); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("Warning: failed to persist toggles: %v", err)
		}
	})

	ws := workspace.New(cfg.WorkspaceRoots)
	retriever := workspace.NewRetriever(ws)

	tools := mcp.NewManager(cfg.DataDir(), mcp.Placeholders{
		WorkspaceFolder: ws.Root(),
		DataDir:         cfg.DataDir(),
	}, cfg.CredentialStore)
	if err := tools.AttachServer(ctx, mcp.BuiltinServerConfig(), mcp.NewWorkspaceServer(ws, retriever)); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("Warning: workspace tools unavailable: %v", err)
	}
	if err := tools.Start(ctx, cfg.EnabledMCPServers()); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("Warning: some tool servers failed to start: %v", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := tools.Shutdown(shutdownCtx); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("Warning: tool server shutdown: %v", err)
		}
	}()

	models := provider.NewManager(provider.InitializeProviders(cfg), cfg.DefaultProvider)

	sink := chat.NewChannelSink(256)

	store := chat.NewSessionStore(backend, toggles)
	if err := store.Load(ctx); err != nil {
		var perr *chat.PersistenceError
		if !errors.As(err, &perr) {
			return fmt.Errorf("failed to load sessions: %w", err)
		}
		// Started on a fresh session; say so once the UI is up
		sink.Emit(chat.Event{Kind: chat.EventWarning, Warning: fmt.Sprintf("Saved sessions could not be loaded: %v", perr.Err)})
	}

	orch := chat.New(chat.Options{
		Store:        store,
		Selector:     chat.NewContextSelector(ws, retriever),
		Dispatcher:   chat.NewDispatcher(tools, cfg.MaxParallelTools, cfg.ToolTimeout),
		Client:       models,
		Catalog:      tools,
		Formatter:    provider.Formatter{},
		Toggles:      toggles,
		Sink:         sink,
		SystemPrompt: cfg.DefaultSystemPrompt,
		Reload:       config.Load,
	})

	// SIGHUP reloads settings.toml without restarting
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := orch.Refresh(ctx); err != nil {
					sink.Emit(chat.Event{Kind: chat.EventWarning, Warning: err.Error()})
				}
			}
		}
	}()

	p := tea.NewProgram(
		ui.New(ctx, orch, sink.Events(), retriever, cfg.Keybindings),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running toolchat: %w", err)
	}

	if dropped := sink.Dropped(); dropped > 0 && config.DebugLog != nil {
		config.DebugLog.Printf("Dropped %d UI events during the session", dropped)
	}
	return nil
}
