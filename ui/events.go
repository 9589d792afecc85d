package ui

import (
	"encoding/json"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"toolchat/chat"
	"toolchat/config"
	"toolchat/model"
)

type eventMsg struct {
	Event chat.Event
}

// turnDoneMsg reports the end of a turn or confirmation started by the UI.
type turnDoneMsg struct {
	Err error
}

// noticeMsg sets the status line.
type noticeMsg struct {
	Text    string
	IsError bool
}

// waitForEvent blocks on the next orchestrator event. The handler re-arms it
// after every event.
func waitForEvent(events <-chan chat.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg{Event: e}
	}
}

func (a *App) handleEvent(e chat.Event) tea.Cmd {
	var cmds []tea.Cmd

	switch e.Kind {
	case chat.EventLoading:
		wasLoading := a.loading
		a.loading = e.Loading
		if a.loading && !wasLoading {
			cmds = append(cmds, a.spinner.Tick)
		}
		a.updateViewportContent(true)

	case chat.EventMessageAppended:
		// Turns keep writing to the session they started in
		if e.SessionID != a.sessionID || e.Message == nil {
			break
		}
		a.messages = append(a.messages, *e.Message)
		a.updateViewportContent(true)
		cmds = append(cmds, a.renderPending())

	case chat.EventMessageUpdated:
		if e.SessionID != a.sessionID || e.Message == nil {
			break
		}
		for i := range a.messages {
			if a.messages[i].ID == e.Message.ID {
				a.messages[i] = *e.Message
				delete(a.rendered, e.Message.ID)
			}
		}
		a.updateViewportContent(false)
		cmds = append(cmds, a.renderPending())

	case chat.EventToolExecutionPrompt:
		a.setPrompt(e.Prompt)
		if a.prompt != nil && len(a.prompt.Calls) > 0 {
			a.modal = modalTools
		}

	case chat.EventStatus:
		a.status = e.Status
		if e.Status != nil {
			a.toggles = config.ToggleSnapshot{ToolsEnabled: e.Status.ToolsEnabled, AutoExecute: e.Status.AutoExecute}
		}

	case chat.EventSessionList:
		a.sessions = e.Sessions
		if a.sessionIdx >= len(a.visibleSessions()) {
			a.sessionIdx = 0
		}

	case chat.EventChatHistory:
		if e.SessionID != a.sessionID {
			a.rendered = make(map[string]string)
			a.clearPrompt()
		}
		a.sessionID = e.SessionID
		a.messages = e.History
		a.updateViewportContent(true)
		cmds = append(cmds, a.renderPending())

	case chat.EventStateChanged:
		a.state = e.State

	case chat.EventTogglesChanged:
		a.toggles = e.Toggles

	case chat.EventWarning:
		a.notice, a.isError = e.Warning, false
	}

	cmds = append(cmds, waitForEvent(a.events))
	return tea.Batch(cmds...)
}

func (a *App) handleTurnDone(err error) {
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrTurnInFlight):
		a.notice, a.isError = "Still working on the previous message", false
	case errors.Is(err, chat.ErrNoPendingTools):
		a.notice, a.isError = "No tool calls are waiting", false
	default:
		// The orchestrator already appended an error message for failed turns
		if config.DebugLog != nil {
			config.DebugLog.Printf("[UI] Turn ended with error: %v", err)
		}
	}
}

// sendMessage starts a turn in the background. A new message drops any
// gated batch.
func (a *App) sendMessage(text string) tea.Cmd {
	a.clearPrompt()
	refs := extractFileRefs(text)
	return func() tea.Msg {
		return turnDoneMsg{Err: a.conv.HandleUserMessage(a.ctx, text, refs)}
	}
}

// confirmTools runs the selected calls. nil asks for the whole batch.
func (a *App) confirmTools() tea.Cmd {
	ids := a.selectedCallIDs()
	if ids != nil && len(ids) == 0 {
		return notice("No tool calls selected", true)
	}
	a.clearPrompt()
	return func() tea.Msg {
		return turnDoneMsg{Err: a.conv.ConfirmToolExecution(a.ctx, ids)}
	}
}

func (a *App) declineTools() {
	a.conv.DeclineToolExecution()
	a.clearPrompt()
	a.notice, a.isError = "Tool calls declined", false
}

func (a *App) setPrompt(p *chat.ToolExecutionPrompt) {
	a.prompt = p
	a.promptIdx = 0
	a.promptSkip = make(map[string]bool)
}

func (a *App) clearPrompt() {
	a.setPrompt(nil)
	if a.modal == modalTools {
		a.modal = modalNone
	}
}

// toggleCall flips whether the highlighted call will run.
func (a *App) toggleCall() {
	if a.prompt == nil || a.promptIdx >= len(a.prompt.Calls) {
		return
	}
	id := a.prompt.Calls[a.promptIdx].ID
	if a.promptSkip == nil {
		a.promptSkip = make(map[string]bool)
	}
	if a.promptSkip[id] {
		delete(a.promptSkip, id)
	} else {
		a.promptSkip[id] = true
	}
}

// selectedCallIDs returns nil when every call is selected, otherwise the
// selected ids in batch order.
func (a *App) selectedCallIDs() []string {
	if a.prompt == nil || len(a.promptSkip) == 0 {
		return nil
	}
	ids := []string{}
	for _, call := range a.prompt.Calls {
		if !a.promptSkip[call.ID] {
			ids = append(ids, call.ID)
		}
	}
	return ids
}

// runTool executes one tool directly. args is a JSON object or empty.
func (a *App) runTool(name, args string) tea.Cmd {
	call := model.ToolCall{Name: name, Arguments: map[string]any{}}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &call.Arguments); err != nil {
			return notice(fmt.Sprintf("Arguments must be a JSON object: %v", err), true)
		}
	}
	return func() tea.Msg {
		_, err := a.conv.ExecuteSingleTool(a.ctx, call)
		return turnDoneMsg{Err: err}
	}
}

func (a *App) refresh() tea.Cmd {
	return func() tea.Msg {
		if err := a.conv.Refresh(a.ctx); err != nil {
			return noticeMsg{Text: err.Error(), IsError: true}
		}
		return noticeMsg{Text: "Configuration reloaded"}
	}
}
