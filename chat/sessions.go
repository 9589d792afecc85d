package chat

import (
	"context"
	"errors"
	"fmt"

	"toolchat/config"
	"toolchat/model"
	"toolchat/storage"
)

// Session operations run alongside turns: a turn keeps writing to the
// session it started in even if another one is selected meanwhile.

// NewSession creates and selects a fresh session.
func (o *Orchestrator) NewSession(ctx context.Context) (*model.ChatSession, error) {
	o.dropPending()
	session, err := o.store.Create(ctx)
	if err = o.tolerate(session, err); err != nil {
		return nil, err
	}
	o.announceSessions()
	return session, nil
}

// SelectSession makes id current and switches to the provider and model the
// session last used.
func (o *Orchestrator) SelectSession(ctx context.Context, id string) (*model.ChatSession, error) {
	session, err := o.store.Select(ctx, id)
	if err = o.tolerate(session, err); err != nil {
		return nil, err
	}
	o.dropPending()

	if session.Provider != "" && o.client != nil {
		if err := o.client.Use(session.Provider, session.Model); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] Keeping active provider, %s unavailable: %v", session.Provider, err)
		}
	}

	o.announceSessions()
	return session, nil
}

// DeleteSession removes a session.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	wasCurrent := o.store.CurrentID() == id
	err := o.store.Delete(ctx, id)

	var perr *PersistenceError
	if errors.As(err, &perr) {
		o.warn(id, perr)
	} else if err != nil {
		return err
	}
	if wasCurrent {
		o.dropPending()
	}

	o.announceSessions()
	return nil
}

// RenameSession sets the title of session id.
func (o *Orchestrator) RenameSession(ctx context.Context, id, title string) error {
	err := o.store.Rename(ctx, id, title)

	var perr *PersistenceError
	if errors.As(err, &perr) {
		o.warn(id, perr)
	} else if err != nil {
		return err
	}

	o.sink.Emit(Event{Kind: EventSessionList, Sessions: o.store.Summaries()})
	return nil
}

// ClearSession drops every message of the current session.
func (o *Orchestrator) ClearSession(ctx context.Context) error {
	o.dropPending()
	err := o.store.Clear(ctx)

	var perr *PersistenceError
	if errors.As(err, &perr) {
		o.warn(o.store.CurrentID(), perr)
	} else if err != nil {
		return err
	}

	o.announceSessions()
	return nil
}

// Sessions returns the session list.
func (o *Orchestrator) Sessions() []SessionSummary {
	return o.store.Summaries()
}

// CurrentSession returns a copy of the current session.
func (o *Orchestrator) CurrentSession() *model.ChatSession {
	return o.store.Current()
}

// Search finds messages containing query across every session.
func (o *Orchestrator) Search(query string) []storage.SessionMessageMatch {
	return storage.SearchSessions(o.store.List(), query)
}

// Export writes the current session as JSON to path, or to a generated
// path when path is empty. It returns the path written.
func (o *Orchestrator) Export(path string) (string, error) {
	session := o.store.Current()
	if session == nil {
		return "", ErrSessionNotFound
	}
	if path == "" {
		path = storage.GenerateExportPath(session.Title)
	}
	if err := storage.ExportSession(session, path); err != nil {
		return "", err
	}
	return path, nil
}

// SetToolsEnabled flips the global tools toggle and records it on the
// current session. A turn already running keeps the value it started with.
func (o *Orchestrator) SetToolsEnabled(enabled bool) {
	o.toggles.SetToolsEnabled(enabled)

	err := o.store.SetToolsEnabled(context.Background(), enabled)
	var perr *PersistenceError
	if errors.As(err, &perr) {
		o.warn(o.store.CurrentID(), perr)
	} else if err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] Failed to record tools flag: %v", err)
	}
}

// SetAutoExecute flips automatic tool execution.
func (o *Orchestrator) SetAutoExecute(enabled bool) {
	o.toggles.SetAutoExecute(enabled)
}

// Toggles returns the current toggle values.
func (o *Orchestrator) Toggles() config.ToggleSnapshot {
	return o.toggles.Snapshot()
}

// Status reports provider, tool and dispatch state.
func (o *Orchestrator) Status() StatusSnapshot {
	toggles := o.toggles.Snapshot()
	status := StatusSnapshot{
		State:        o.State(),
		ToolsEnabled: toggles.ToolsEnabled,
		AutoExecute:  toggles.AutoExecute,
		Stats:        o.dispatcher.Stats(),
	}
	if o.client != nil {
		status.Provider, status.Model = o.client.Active()
	}
	if o.catalog != nil {
		status.ToolCount = len(o.catalog.ListTools())
		if reporter, ok := o.catalog.(statusReporter); ok {
			status.Servers = reporter.Status()
		}
	}
	return status
}

// EmitStatus publishes a status event.
func (o *Orchestrator) EmitStatus() {
	status := o.Status()
	o.sink.Emit(Event{Kind: EventStatus, Status: &status})
}

// Announce publishes the session list and the current history, as after
// startup.
func (o *Orchestrator) Announce() {
	o.announceSessions()
}

func (o *Orchestrator) announceSessions() {
	o.sink.Emit(Event{Kind: EventSessionList, Sessions: o.store.Summaries()})
	o.sink.Emit(Event{
		Kind:      EventChatHistory,
		SessionID: o.store.CurrentID(),
		History:   o.store.History(),
	})
}

// tolerate turns a persistence failure on a session operation into a
// warning. Any other error is returned.
func (o *Orchestrator) tolerate(session *model.ChatSession, err error) error {
	var perr *PersistenceError
	if errors.As(err, &perr) && session != nil {
		o.warn(session.ID, perr)
		return nil
	}
	return err
}

// UseModel switches the provider, and optionally the model, used from the
// next turn on.
func (o *Orchestrator) UseModel(providerID, modelName string) error {
	if o.client == nil {
		return errors.New("no model client configured")
	}
	if err := o.client.Use(providerID, modelName); err != nil {
		return err
	}
	o.EmitStatus()
	return nil
}

// SystemPrompt returns the prompt prepended to every request.
func (o *Orchestrator) SystemPrompt() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.systemPrompt
}

// Refresh reloads the configuration and applies it: toggles, system prompt
// and tool servers. A turn already running keeps what it started with.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	if o.reload == nil {
		return errors.New("configuration reload is not available")
	}
	cfg, err := o.reload()
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	o.toggles.Refresh(cfg)

	o.mu.Lock()
	o.systemPrompt = cfg.DefaultSystemPrompt
	o.mu.Unlock()

	var refreshErr error
	if refresher, ok := o.catalog.(catalogRefresher); ok {
		if err := refresher.Refresh(ctx, cfg.EnabledMCPServers()); err != nil {
			refreshErr = fmt.Errorf("failed to refresh tool servers: %w", err)
		}
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] Refresh: configuration reloaded (err=%v)", refreshErr)
	}

	o.EmitStatus()
	return refreshErr
}
