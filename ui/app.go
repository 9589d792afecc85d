package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"toolchat/chat"
	"toolchat/config"
	"toolchat/model"
	"toolchat/storage"
)

// Conversation is what the UI drives. *chat.Orchestrator implements it.
type Conversation interface {
	HandleUserMessage(ctx context.Context, text string, fileRefs []string) error
	ConfirmToolExecution(ctx context.Context, callIDs []string) error
	DeclineToolExecution() bool
	ExecuteSingleTool(ctx context.Context, call model.ToolCall) (model.ToolExecutionResult, error)

	NewSession(ctx context.Context) (*model.ChatSession, error)
	SelectSession(ctx context.Context, id string) (*model.ChatSession, error)
	DeleteSession(ctx context.Context, id string) error
	RenameSession(ctx context.Context, id, title string) error
	ClearSession(ctx context.Context) error
	Search(query string) []storage.SessionMessageMatch
	Export(path string) (string, error)

	SetToolsEnabled(enabled bool)
	SetAutoExecute(enabled bool)
	Toggles() config.ToggleSnapshot
	UseModel(providerID, modelName string) error
	EmitStatus()
	Announce()
	Refresh(ctx context.Context) error
}

// FileLister suggests workspace paths for "@" mentions.
type FileLister interface {
	ListFiles(ctx context.Context, query string, limit int) ([]string, error)
}

type modal int

const (
	modalNone modal = iota
	modalHelp
	modalStatus
	modalTools
	modalSessions
	modalSearch
	modalConfirmDelete
)

// App is the terminal chat view.
type App struct {
	conv   Conversation
	events <-chan chat.Event
	files  FileLister
	kb     *config.KeyBindingsConfig
	ctx    context.Context

	width  int
	height int
	ready  bool

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	sessionID string
	messages  []model.ChatMessage
	rendered  map[string]string

	sessions    []chat.SessionSummary
	sessionIdx  int
	filterInput textinput.Model
	filtering   bool

	searchInput   textinput.Model
	searchResults []storage.SessionMessageMatch
	searchIdx     int
	lastSearch    string

	prompt     *chat.ToolExecutionPrompt
	promptIdx  int
	promptSkip map[string]bool
	status     *chat.StatusSnapshot
	state      chat.TurnState
	toggles    config.ToggleSnapshot
	loading    bool

	completions   []string
	completionIdx int

	modal   modal
	notice  string
	isError bool
}

// New builds the app. events is the receive side of the orchestrator's
// channel sink.
func New(ctx context.Context, conv Conversation, events <-chan chat.Event, files FileLister, kb *config.KeyBindingsConfig) *App {
	if kb == nil {
		kb = config.DefaultKeybindings()
	}

	ta := textarea.New()
	ta.Placeholder = "Ask something. Mention files with @path, commands start with /"
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.SetWidth(80)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))
	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	filter := textinput.New()
	filter.Placeholder = "filter sessions"
	search := textinput.New()
	search.Placeholder = "search all sessions"

	return &App{
		conv:        conv,
		events:      events,
		files:       files,
		kb:          kb,
		ctx:         ctx,
		textarea:    ta,
		viewport:    viewport.New(0, 0),
		spinner:     sp,
		rendered:    make(map[string]string),
		filterInput: filter,
		searchInput: search,
		toggles:     conv.Toggles(),
		state:       chat.StateIdle,
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		waitForEvent(a.events),
		func() tea.Msg {
			a.conv.Announce()
			a.conv.EmitStatus()
			return nil
		},
	)
}

func (a *App) View() string {
	if !a.ready {
		return "Loading toolchat..."
	}

	switch a.modal {
	case modalHelp:
		return a.renderHelpModal(a.width, a.height)
	case modalStatus:
		return renderStatusModal(a.status, a.width, a.height)
	case modalTools:
		return renderToolPrompt(a.prompt, a.promptIdx, a.promptSkip, a.width, a.height)
	case modalSessions:
		return a.renderSessionList()
	case modalSearch:
		return a.renderSearch()
	case modalConfirmDelete:
		return RenderConfirmationModal(ConfirmationState{
			Active:  true,
			Title:   "Delete Session",
			Message: fmt.Sprintf("Delete %q?\nThis cannot be undone.", a.selectedSessionTitle()),
		}, a.width, a.height)
	}

	title := AssistantStyle.Bold(true).Render("toolchat")
	if a.status != nil && a.status.Provider != "" {
		label := config.ProviderDisplayName(a.status.Provider)
		if a.status.Model != "" {
			label += "/" + a.status.Model
		}
		title += TitleStyle.Render(" - " + label)
	}
	title += UserStyle.Render(" - " + a.sessionTitle())
	if a.loading {
		title += " " + a.spinner.View() + DimStyle.Render(" "+stateLabel(a.state))
	} else if a.prompt != nil {
		title += " " + SelectedStyle.Render(fmt.Sprintf("%d tool calls awaiting approval", len(a.prompt.Calls)))
	}

	var sections []string
	sections = append(sections, title, "", a.viewport.View())
	if len(a.completions) > 0 {
		sections = append(sections, a.renderCompletions())
	}
	sections = append(sections, a.textarea.View(), a.statusBar())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (a *App) statusBar() string {
	if a.notice != "" {
		if a.isError {
			return ErrorStyle.Render(a.notice)
		}
		return WarningStyle.Render(a.notice)
	}

	descStyle := lipgloss.NewStyle().Foreground(successColor).Bold(true)
	bar := fmt.Sprintf("%s %s  %s %s  %s %s  tools %s  auto %s",
		a.kb.DisplayActionKey("help"), descStyle.Render("Help"),
		a.kb.DisplayActionKey("new_session"), descStyle.Render("New"),
		a.kb.DisplayActionKey("session_list"), descStyle.Render("Sessions"),
		onOff(a.toggles.ToolsEnabled), onOff(a.toggles.AutoExecute),
	)
	return StatusStyle.Render(bar)
}

func (a *App) sessionTitle() string {
	for _, s := range a.sessions {
		if s.ID == a.sessionID {
			return s.Title
		}
	}
	return model.DefaultSessionTitle
}

func (a *App) selectedSessionTitle() string {
	list := a.visibleSessions()
	if a.sessionIdx >= 0 && a.sessionIdx < len(list) {
		return list[a.sessionIdx].Title
	}
	return ""
}

// updateViewportContent redraws every message, using cached markdown where
// it is available.
func (a *App) updateViewportContent(gotoBottom bool) {
	width := a.contentWidth()
	var b strings.Builder

	for _, msg := range a.messages {
		ts := DimStyle.Render(msg.Timestamp.Format("15:04"))
		switch msg.Role {
		case model.RoleUser:
			var files []string
			if msg.Metadata != nil {
				files = msg.Metadata.Files
			}
			b.WriteString(formatUserMessage(ts, msg.Content, files))
		case model.RoleTool:
			b.WriteString(formatToolMessage(ts, msg, width))
		default:
			b.WriteString(assistantHeader(ts, msg))
			if msg.Metadata != nil && msg.Metadata.Provider == model.ErrorProviderID {
				b.WriteString(ErrorStyle.UnsetBold().Render(wordWrapWithIndent(msg.Content, "", width)))
			} else if r, ok := a.rendered[msg.ID]; ok {
				b.WriteString(r)
			} else {
				b.WriteString(wordWrapWithIndent(msg.Content, "", width))
			}
			b.WriteString("\n")
		}
	}

	if a.loading {
		b.WriteString(a.spinner.View() + " " + DimStyle.Render(stateLabel(a.state)) + "\n")
	}

	a.viewport.SetContent(b.String())
	if gotoBottom {
		a.viewport.GotoBottom()
	}
}

// renderPending returns commands rendering every assistant message that has
// no cached markdown yet.
func (a *App) renderPending() tea.Cmd {
	var cmds []tea.Cmd
	width := a.contentWidth()
	for _, msg := range a.messages {
		if msg.Role != model.RoleAssistant {
			continue
		}
		if msg.Metadata != nil && msg.Metadata.Provider == model.ErrorProviderID {
			continue
		}
		if _, ok := a.rendered[msg.ID]; !ok {
			cmds = append(cmds, renderMarkdown(msg.ID, msg.Content, width))
		}
	}
	return tea.Batch(cmds...)
}

func (a *App) contentWidth() int {
	if a.width < 24 {
		return 80
	}
	return a.width - 4
}

func stateLabel(s chat.TurnState) string {
	switch s {
	case chat.StateAssembling:
		return "gathering context"
	case chat.StateAwaitingModel:
		return "waiting for the model"
	case chat.StateExecuting:
		return "running tools"
	case chat.StateAwaitingFollowUp:
		return "summarizing tool results"
	}
	return "working"
}
