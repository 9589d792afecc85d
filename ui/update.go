package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"toolchat/config"
	"toolchat/model"
)

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.textarea.SetWidth(msg.Width)
		a.viewport.Width = msg.Width
		a.viewport.Height = msg.Height - 8
		if a.viewport.Height < 3 {
			a.viewport.Height = 3
		}
		a.ready = true
		a.rendered = make(map[string]string)
		a.updateViewportContent(true)
		return a, a.renderPending()

	case eventMsg:
		return a, a.handleEvent(msg.Event)

	case turnDoneMsg:
		a.handleTurnDone(msg.Err)
		return a, nil

	case noticeMsg:
		a.notice, a.isError = msg.Text, msg.IsError
		return a, nil

	case completionMsg:
		if mention, ok := currentMention(a.textarea.Value()); ok && mention == msg.Query {
			a.completions = msg.Paths
			a.completionIdx = 0
		}
		return a, nil

	case markdownRenderedMsg:
		if msg.Width == a.contentWidth() {
			a.rendered[msg.MessageID] = msg.Rendered
			a.updateViewportContent(false)
		}
		return a, nil

	case spinner.TickMsg:
		if !a.loading {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		a.updateViewportContent(false)
		return a, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.modal != modalNone {
			return a, a.handleModalKey(msg)
		}
		if cmd, handled := a.handleGlobalKey(msg); handled {
			return a, cmd
		}
		if cmd, handled := a.handleInputKey(msg); handled {
			return a, cmd
		}
	}

	var cmd tea.Cmd
	before := a.textarea.Value()
	a.textarea, cmd = a.textarea.Update(msg)
	cmds = append(cmds, cmd)
	if after := a.textarea.Value(); after != before {
		a.notice = ""
		cmds = append(cmds, a.refreshCompletions(after))
	}

	return a, tea.Batch(cmds...)
}

// handleGlobalKey runs keybinding actions available from the chat view.
func (a *App) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	kb := a.kb
	switch msg.String() {
	case kb.GetActionKey("quit"):
		return tea.Quit, true
	case kb.GetActionKey("help"):
		a.modal = modalHelp
	case kb.GetActionKey("new_session"):
		return a.run(cmdNew, nil, ""), true
	case kb.GetActionKey("session_list"):
		a.openSessionList()
	case kb.GetActionKey("status"):
		a.conv.EmitStatus()
		a.modal = modalStatus
	case kb.GetActionKey("search_sessions"):
		a.openSearch("")
	case kb.GetActionKey("toggle_tools"):
		a.conv.SetToolsEnabled(!a.toggles.ToolsEnabled)
	case kb.GetActionKey("toggle_auto_execute"):
		a.conv.SetAutoExecute(!a.toggles.AutoExecute)
	case kb.GetActionKey("scroll_down"):
		a.viewport.ScrollDown(1)
	case kb.GetActionKey("scroll_up"):
		a.viewport.ScrollUp(1)
	case kb.GetActionKey("half_page_down"):
		a.viewport.HalfPageDown()
	case kb.GetActionKey("half_page_up"):
		a.viewport.HalfPageUp()
	case kb.GetActionKey("page_down"):
		a.viewport.PageDown()
	case kb.GetActionKey("page_up"):
		a.viewport.PageUp()
	case kb.GetActionKey("scroll_to_top"):
		a.viewport.GotoTop()
	case kb.GetActionKey("scroll_to_bottom"):
		a.viewport.GotoBottom()
	case kb.GetActionKey("yank_last_response"):
		return a.yankLastResponse(), true
	case kb.GetActionKey("yank_conversation"):
		return a.yankConversation(), true
	case kb.GetActionKey("clear_input"):
		a.textarea.Reset()
		a.completions = nil
	default:
		return nil, false
	}
	return nil, true
}

// handleInputKey covers enter and completion keys in the input box.
func (a *App) handleInputKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "tab":
		if len(a.completions) == 0 {
			return nil, false
		}
		a.textarea.SetValue(replaceMention(a.textarea.Value(), a.completions[a.completionIdx]))
		a.completions = nil
		return nil, true

	case "up", "down":
		if len(a.completions) == 0 {
			return nil, false
		}
		if msg.String() == "down" {
			a.completionIdx = (a.completionIdx + 1) % len(a.completions)
		} else {
			a.completionIdx = (a.completionIdx - 1 + len(a.completions)) % len(a.completions)
		}
		return nil, true

	case "esc":
		if len(a.completions) > 0 {
			a.completions = nil
			return nil, true
		}
		if a.prompt != nil {
			a.modal = modalTools
			return nil, true
		}
		return nil, false

	case "enter":
		input := a.textarea.Value()
		if strings.TrimSpace(input) == "" {
			return nil, true
		}
		a.completions = nil
		a.notice = ""

		cmd := parseCommand(input)
		if cmd.kind == cmdNone {
			a.textarea.Reset()
			return a.sendMessage(unescapeMessage(input)), true
		}
		a.textarea.Reset()
		return a.run(cmd.kind, cmd.args, cmd.rest), true
	}
	return nil, false
}

// run executes a slash command or keybinding action.
func (a *App) run(kind commandKind, args []string, rest string) tea.Cmd {
	switch kind {
	case cmdNew:
		if _, err := a.conv.NewSession(a.ctx); err != nil {
			return notice(fmt.Sprintf("Could not create session: %v", err), true)
		}

	case cmdSessions:
		a.openSessionList()

	case cmdLoad:
		n, err := sessionNumber(args, len(a.sessions))
		if err != nil {
			return notice(err.Error(), true)
		}
		return a.selectSession(a.sessions[n].ID)

	case cmdDelete:
		id := a.sessionID
		if len(args) > 0 {
			n, err := sessionNumber(args, len(a.sessions))
			if err != nil {
				return notice(err.Error(), true)
			}
			id = a.sessions[n].ID
		}
		if err := a.conv.DeleteSession(a.ctx, id); err != nil {
			return notice(fmt.Sprintf("Could not delete session: %v", err), true)
		}

	case cmdRename:
		if rest == "" {
			return notice("Usage: /rename <title>", true)
		}
		if err := a.conv.RenameSession(a.ctx, a.sessionID, rest); err != nil {
			return notice(fmt.Sprintf("Could not rename session: %v", err), true)
		}

	case cmdTools:
		v, ok := parseSwitch(args, a.toggles.ToolsEnabled)
		if !ok {
			return notice("Usage: /tools [on|off]", true)
		}
		a.conv.SetToolsEnabled(v)
		return notice("Tools "+stripANSI(onOff(v)), false)

	case cmdAuto:
		v, ok := parseSwitch(args, a.toggles.AutoExecute)
		if !ok {
			return notice("Usage: /auto [on|off]", true)
		}
		a.conv.SetAutoExecute(v)
		return notice("Automatic tool execution "+stripANSI(onOff(v)), false)

	case cmdStatus:
		a.conv.EmitStatus()
		a.modal = modalStatus

	case cmdSearch:
		a.openSearch(rest)

	case cmdExport:
		path, err := a.conv.Export(config.ExpandPath(rest))
		if err != nil {
			return notice(fmt.Sprintf("Export failed: %v", err), true)
		}
		return notice("Exported to "+path, false)

	case cmdClear:
		if err := a.conv.ClearSession(a.ctx); err != nil {
			return notice(fmt.Sprintf("Could not clear session: %v", err), true)
		}

	case cmdModel:
		if len(args) == 0 {
			return notice("Usage: /model <provider> [model]", true)
		}
		modelName := ""
		if len(args) > 1 {
			modelName = args[1]
		}
		if err := a.conv.UseModel(args[0], modelName); err != nil {
			return notice(err.Error(), true)
		}

	case cmdRun:
		if len(args) == 0 {
			return notice("Usage: /run <tool> [json arguments]", true)
		}
		return a.runTool(args[0], strings.TrimSpace(strings.TrimPrefix(rest, args[0])))

	case cmdRefresh:
		a.notice, a.isError = "Reloading configuration...", false
		return a.refresh()

	case cmdHelp:
		a.modal = modalHelp

	case cmdQuit:
		return tea.Quit

	case cmdUnknown:
		return notice("Unknown command, try /help", true)
	}
	return nil
}

func (a *App) selectSession(id string) tea.Cmd {
	if _, err := a.conv.SelectSession(a.ctx, id); err != nil {
		return notice(fmt.Sprintf("Could not open session: %v", err), true)
	}
	return nil
}

// sessionNumber reads a 1-based list position.
func sessionNumber(args []string, count int) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("a session number is required")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > count {
		return 0, fmt.Errorf("no session %q, there are %d", args[0], count)
	}
	return n - 1, nil
}

func notice(text string, isError bool) tea.Cmd {
	return func() tea.Msg {
		return noticeMsg{Text: text, IsError: isError}
	}
}

func (a *App) yankLastResponse() tea.Cmd {
	for i := len(a.messages) - 1; i >= 0; i-- {
		msg := a.messages[i]
		if msg.Role != model.RoleAssistant || msg.Content == "" {
			continue
		}
		if err := clipboard.WriteAll(msg.Content); err != nil {
			return notice(fmt.Sprintf("Clipboard unavailable: %v", err), true)
		}
		return notice("Copied last response", false)
	}
	return notice("Nothing to copy", false)
}

func (a *App) yankConversation() tea.Cmd {
	if len(a.messages) == 0 {
		return notice("Nothing to copy", false)
	}
	if err := clipboard.WriteAll(formatTranscript(a.messages)); err != nil {
		return notice(fmt.Sprintf("Clipboard unavailable: %v", err), true)
	}
	return notice(fmt.Sprintf("Copied %d messages", len(a.messages)), false)
}
