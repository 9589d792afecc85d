package ui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"toolchat/chat"
)

type ConfirmationState struct {
	Active  bool
	Title   string
	Message string
}

func modalWidthFor(width, desired int) int {
	if width < desired+10 {
		return width - 10
	}
	return desired
}

// renderThreeSectionModal draws a title, a bordered body and a footer,
// centered on screen.
func renderThreeSectionModal(title string, titleColor lipgloss.Color, body []string, footer string, desired, width, height int) string {
	w := modalWidthFor(width, desired)

	titleSection := lipgloss.NewStyle().
		Bold(true).
		Foreground(titleColor).
		Align(lipgloss.Center).
		Width(w).
		Render(title)

	lines := append([]string{""}, body...)
	lines = append(lines, "")
	bodySection := lipgloss.NewStyle().
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Width(w).
		Render(strings.Join(lines, "\n"))

	footerSection := lipgloss.NewStyle().
		Foreground(dimColor).
		Align(lipgloss.Center).
		Width(w).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(footer)

	content := strings.Join([]string{titleSection, bodySection, footerSection}, "\n")
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func RenderConfirmationModal(state ConfirmationState, width, height int) string {
	w := modalWidthFor(width, 60)
	center := lipgloss.NewStyle().Width(w).Align(lipgloss.Center)

	var body []string
	for _, line := range strings.Split(state.Message, "\n") {
		body = append(body, center.Render(line))
	}
	return renderThreeSectionModal(state.Title, warningColor, body, FormatFooter("y", "Yes", "n", "No"), 60, width, height)
}

// renderToolPrompt lists the gated calls with their arguments. Calls in
// skipped are left unticked and cursor marks the highlighted one.
func renderToolPrompt(prompt *chat.ToolExecutionPrompt, cursor int, skipped map[string]bool, width, height int) string {
	if prompt == nil {
		return ""
	}
	w := modalWidthFor(width, 76)

	var body []string
	for i, call := range prompt.Calls {
		name := HighlightStyle.Render(call.Name)
		if call.Dangerous {
			name += " " + ErrorStyle.Render("[modifies state]")
		}
		box := "[x]"
		if skipped[call.ID] {
			box = "[ ]"
		}
		marker := "  "
		if i == cursor {
			marker = SelectedStyle.Render("> ")
		}
		body = append(body, fmt.Sprintf("%s%s %d. %s", marker, box, i+1, name))
		body = append(body, strings.TrimRight(wordWrapWithIndent(call.Description, "   ", w), "\n"))
		for _, line := range formatArguments(call.Arguments) {
			body = append(body, DimStyle.Render("   "+runewidth.Truncate(line, w-4, "…")))
		}
		body = append(body, "")
	}

	title := fmt.Sprintf("Run %d tool call", len(prompt.Calls))
	if len(prompt.Calls) != 1 {
		title += "s"
	}
	footer := FormatFooter("y", "Run", "Space", "Select", "n", "Decline", "Esc", "Later")
	return renderThreeSectionModal(title+"?", warningColor, body, footer, 76, width, height)
}

// formatArguments renders tool arguments one key per line, sorted.
func formatArguments(args map[string]any) []string {
	if len(args) == 0 {
		return []string{"(no arguments)"}
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		var value string
		switch v := args[k].(type) {
		case string:
			value = v
		default:
			data, err := json.Marshal(v)
			if err != nil {
				value = fmt.Sprint(v)
			} else {
				value = string(data)
			}
		}
		lines = append(lines, fmt.Sprintf("%s: %s", k, strings.ReplaceAll(value, "\n", " ")))
	}
	return lines
}

func renderStatusModal(status *chat.StatusSnapshot, width, height int) string {
	if status == nil {
		return renderThreeSectionModal("Status", accentColor, []string{"Collecting status..."}, FormatFooter("Esc", "Close"), 70, width, height)
	}

	label := lipgloss.NewStyle().Foreground(accentColor).Width(16)
	body := []string{
		label.Render("Provider") + status.Provider,
		label.Render("Model") + status.Model,
		label.Render("State") + string(status.State),
		label.Render("Tools") + onOff(status.ToolsEnabled),
		label.Render("Auto execute") + onOff(status.AutoExecute),
		label.Render("Tools offered") + fmt.Sprintf("%d", status.ToolCount),
		label.Render("Tool calls") + fmt.Sprintf("%d run, %d ok, %d failed", status.Stats.Total, status.Stats.Succeeded, status.Stats.Failed),
		"",
		TitleStyle.Render("Tool servers"),
	}

	if len(status.Servers) == 0 {
		body = append(body, DimStyle.Render("none configured"))
	}
	for _, s := range status.Servers {
		state := lipgloss.NewStyle().Foreground(successColor).Render("running")
		if !s.Running {
			state = ErrorStyle.Render("stopped")
		}
		line := fmt.Sprintf("%-18s %s  %d tools", runewidth.Truncate(s.Name, 18, "…"), state, s.ToolCount)
		body = append(body, line)
		if s.Error != "" {
			body = append(body, DimStyle.Render("  "+s.Error))
		}
	}

	return renderThreeSectionModal("Status", accentColor, body, FormatFooter("Esc", "Close"), 70, width, height)
}

func (a *App) renderHelpModal(width, height int) string {
	kb := a.kb
	blue := lipgloss.NewStyle().Foreground(accentColor)

	keys := lipgloss.JoinVertical(lipgloss.Left,
		blue.Render("## Keys"),
		fmt.Sprintf("• %-13s New session", kb.DisplayActionKey("new_session")),
		fmt.Sprintf("• %-13s Sessions", kb.DisplayActionKey("session_list")),
		fmt.Sprintf("• %-13s Search all", kb.DisplayActionKey("search_sessions")),
		fmt.Sprintf("• %-13s Status", kb.DisplayActionKey("status")),
		fmt.Sprintf("• %-13s Toggle tools", kb.DisplayActionKey("toggle_tools")),
		fmt.Sprintf("• %-13s Toggle auto run", kb.DisplayActionKey("toggle_auto_execute")),
		fmt.Sprintf("• %-13s Copy response", kb.DisplayActionKey("yank_last_response")),
		fmt.Sprintf("• %-13s Copy chat", kb.DisplayActionKey("yank_conversation")),
		fmt.Sprintf("• %-13s Scroll", kb.DisplayActionKey("scroll_down")+"/"+kb.DisplayActionKey("scroll_up")),
		fmt.Sprintf("• %-13s Top", kb.DisplayActionKey("scroll_to_top")),
		fmt.Sprintf("• %-13s Bottom", kb.DisplayActionKey("scroll_to_bottom")),
		fmt.Sprintf("• %-13s Quit", kb.DisplayActionKey("quit")),
		"• Enter         Send",
		"• Alt+Enter     Newline",
		"• Tab           Complete @file",
	)

	cmdLines := []string{blue.Render("## Commands")}
	for _, c := range commandHelp {
		cmdLines = append(cmdLines, fmt.Sprintf("%-26s %s", c[0], DimStyle.Render(c[1])))
	}
	commands := lipgloss.JoinVertical(lipgloss.Left, cmdLines...)

	columnStyle := lipgloss.NewStyle().PaddingLeft(4).PaddingRight(4)
	content := lipgloss.JoinVertical(lipgloss.Center,
		UserStyle.Render("toolchat - Keys and Commands"),
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, columnStyle.Render(keys), columnStyle.Render(commands)),
		"",
		HelpStyle.Render(FormatFooter("Esc", "Close")),
	)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func (a *App) openSessionList() {
	a.modal = modalSessions
	a.filtering = false
	a.filterInput.SetValue("")
	a.filterInput.Blur()
	a.sessionIdx = 0
	for i, s := range a.sessions {
		if s.ID == a.sessionID {
			a.sessionIdx = i
		}
	}
}

// visibleSessions applies the fuzzy filter to the session list.
func (a *App) visibleSessions() []chat.SessionSummary {
	query := strings.TrimSpace(a.filterInput.Value())
	if query == "" {
		return a.sessions
	}
	matches := fuzzy.FindFrom(query, sessionTitles(a.sessions))
	out := make([]chat.SessionSummary, 0, len(matches))
	for _, m := range matches {
		out = append(out, a.sessions[m.Index])
	}
	return out
}

type sessionTitles []chat.SessionSummary

func (s sessionTitles) String(i int) string { return s[i].Title }
func (s sessionTitles) Len() int            { return len(s) }

func (a *App) renderSessionList() string {
	w := modalWidthFor(a.width, 70)
	list := a.visibleSessions()

	var body []string
	if a.filtering || a.filterInput.Value() != "" {
		body = append(body, a.filterInput.View(), "")
	}
	if len(list) == 0 {
		body = append(body, DimStyle.Render("No sessions"))
	}
	for i, s := range list {
		marker := "  "
		if s.Current {
			marker = "● "
		}
		title := runewidth.FillRight(runewidth.Truncate(s.Title, w-30, "…"), w-30)
		line := fmt.Sprintf("%s%s %4d msgs  %s", marker, title, s.MessageCount, humanize.Time(s.LastUpdated))
		if i == a.sessionIdx {
			line = SelectedStyle.Render(line)
		}
		body = append(body, line)
	}

	footer := FormatFooter("j/k", "Navigate", "Enter", "Open", "d", "Delete", "/", "Filter", "Esc", "Close")
	return renderThreeSectionModal("Sessions", accentColor, body, footer, 70, a.width, a.height)
}

func (a *App) openSearch(query string) {
	a.modal = modalSearch
	a.searchInput.SetValue(query)
	a.searchInput.Focus()
	a.searchIdx = 0
	a.searchResults = nil
	a.lastSearch = query
	if query != "" {
		a.searchResults = a.conv.Search(query)
	}
}

func (a *App) renderSearch() string {
	w := modalWidthFor(a.width, 80)
	body := []string{a.searchInput.View(), ""}

	if a.searchInput.Value() != "" && len(a.searchResults) == 0 {
		body = append(body, DimStyle.Render("No matches"))
	}
	limit := a.height - 12
	if limit < 3 {
		limit = 3
	}
	start := 0
	if a.searchIdx >= limit {
		start = a.searchIdx - limit + 1
	}
	for i := start; i < len(a.searchResults) && i < start+limit; i++ {
		m := a.searchResults[i]
		line := fmt.Sprintf("%s  %s",
			runewidth.Truncate(m.SessionTitle, 20, "…"),
			runewidth.Truncate(strings.ReplaceAll(m.Preview, "\n", " "), w-26, "…"))
		if i == a.searchIdx {
			line = SelectedStyle.Render(line)
		}
		body = append(body, line)
	}

	footer := FormatFooter("Enter", "Search/Open", "↑/↓", "Navigate", "Esc", "Close")
	return renderThreeSectionModal("Search Sessions", accentColor, body, footer, 80, a.width, a.height)
}

func (a *App) handleModalKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	kb := a.kb

	switch a.modal {
	case modalTools:
		switch key {
		case kb.GetActionKey("confirm_tools"), "enter":
			return a.confirmTools()
		case kb.GetActionKey("decline_tools"):
			a.declineTools()
		case "j", "down":
			if a.prompt != nil && a.promptIdx < len(a.prompt.Calls)-1 {
				a.promptIdx++
			}
		case "k", "up":
			if a.promptIdx > 0 {
				a.promptIdx--
			}
		case " ":
			a.toggleCall()
		case "esc":
			a.modal = modalNone
		}
		return nil

	case modalConfirmDelete:
		switch key {
		case "y":
			list := a.visibleSessions()
			a.modal = modalSessions
			if a.sessionIdx < len(list) {
				if err := a.conv.DeleteSession(a.ctx, list[a.sessionIdx].ID); err != nil {
					return notice(fmt.Sprintf("Could not delete session: %v", err), true)
				}
			}
		case "n", "esc":
			a.modal = modalSessions
		}
		return nil

	case modalSessions:
		return a.handleSessionKey(msg)

	case modalSearch:
		return a.handleSearchKey(msg)
	}

	// Help and status close on any of these
	switch key {
	case "esc", "q", "enter", kb.GetActionKey("help"), kb.GetActionKey("status"):
		a.modal = modalNone
	}
	return nil
}

func (a *App) handleSessionKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	list := a.visibleSessions()

	if a.filtering {
		switch key {
		case "esc":
			a.filtering = false
			a.filterInput.SetValue("")
			a.filterInput.Blur()
		case "enter":
			a.filtering = false
			a.filterInput.Blur()
		default:
			var cmd tea.Cmd
			a.filterInput, cmd = a.filterInput.Update(msg)
			a.sessionIdx = 0
			return cmd
		}
		return nil
	}

	switch key {
	case a.kb.GetActionKey("session_down"), "down":
		if a.sessionIdx < len(list)-1 {
			a.sessionIdx++
		}
	case a.kb.GetActionKey("session_up"), "up":
		if a.sessionIdx > 0 {
			a.sessionIdx--
		}
	case "/":
		a.filtering = true
		a.filterInput.Focus()
	case a.kb.GetActionKey("session_delete"):
		if len(list) > 0 {
			a.modal = modalConfirmDelete
		}
	case "enter":
		a.modal = modalNone
		if a.sessionIdx < len(list) {
			return a.selectSession(list[a.sessionIdx].ID)
		}
	case "esc", "q":
		a.modal = modalNone
	}
	return nil
}

func (a *App) handleSearchKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		a.modal = modalNone
		a.searchInput.Blur()
		return nil
	case "down":
		if a.searchIdx < len(a.searchResults)-1 {
			a.searchIdx++
		}
		return nil
	case "up":
		if a.searchIdx > 0 {
			a.searchIdx--
		}
		return nil
	case "enter":
		query := a.searchInput.Value()
		if len(a.searchResults) > 0 && a.lastSearch == query {
			match := a.searchResults[a.searchIdx]
			a.modal = modalNone
			a.searchInput.Blur()
			return a.selectSession(match.SessionID)
		}
		a.searchResults = a.conv.Search(query)
		a.lastSearch = query
		a.searchIdx = 0
		return nil
	}

	var cmd tea.Cmd
	a.searchInput, cmd = a.searchInput.Update(msg)
	return cmd
}
