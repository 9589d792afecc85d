package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"toolchat/config"
)

const maxCompletions = 6

type completionMsg struct {
	Query string
	Paths []string
}

// refreshCompletions looks up workspace files for the "@" mention being
// typed. Results for a stale query are dropped in Update.
func (a *App) refreshCompletions(input string) tea.Cmd {
	mention, ok := currentMention(input)
	if !ok || a.files == nil {
		a.completions = nil
		return nil
	}

	ctx := a.ctx
	return func() tea.Msg {
		paths, err := a.files.ListFiles(ctx, mention, maxCompletions)
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[UI] File completion failed: %v", err)
			}
			return nil
		}
		return completionMsg{Query: mention, Paths: paths}
	}
}

func (a *App) renderCompletions() string {
	width := a.width - 4
	if width < 20 {
		width = 20
	}

	var lines []string
	for i, path := range a.completions {
		path = runewidth.Truncate(path, width, "…")
		if i == a.completionIdx {
			lines = append(lines, SelectedStyle.Render("› "+path))
		} else {
			lines = append(lines, DimStyle.Render("  "+path))
		}
	}
	return strings.Join(lines, "\n")
}
