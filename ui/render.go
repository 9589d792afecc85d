package ui

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	markdown "github.com/MichaelMure/go-term-markdown"
	tea "github.com/charmbracelet/bubbletea"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"

	"toolchat/config"
	"toolchat/model"
)

const codeGutter = "┃"

// maxToolLines caps how much of a tool result is shown inline.
const maxToolLines = 12

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	urlRegex        = regexp.MustCompile(`(https?://[^\s]+)`)
	ansiRegex       = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

type markdownRenderedMsg struct {
	MessageID string
	Width     int
	Rendered  string
}

// renderMarkdown renders assistant content off the update loop.
func renderMarkdown(messageID, content string, width int) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		rendered := renderMarkdownNow(content, width)
		if config.DebugLog != nil {
			config.DebugLog.Printf("[UI] Rendered message %s (%d chars) in %v", messageID, len(content), time.Since(start))
		}
		return markdownRenderedMsg{MessageID: messageID, Width: width, Rendered: rendered}
	}
}

func renderMarkdownNow(content string, width int) string {
	if width < 20 {
		width = 20
	}
	content = mdLinkRegex.ReplaceAllString(content, "$2")

	// Plain URLs stay plain text so the terminal can make them clickable
	p := parser.NewWithExtensions(markdown.Extensions() &^ parser.Autolink)
	r := markdown.NewRenderer(width-4, 0)
	rendered := gomarkdown.Render(p.Parse([]byte(content)), r)

	return postProcessMarkdown(string(rendered), width)
}

func postProcessMarkdown(rendered string, width int) string {
	rendered = inlineCodeRegex.ReplaceAllString(rendered, "\x1b[31m$1\x1b[0m")
	rendered = colorURLs(rendered)
	return frameCodeBlocks(rendered, width)
}

func colorURLs(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if !strings.Contains(line, codeGutter) {
			lines[i] = urlRegex.ReplaceAllString(line, "\x1b[31m$1\x1b[0m")
		}
	}
	return strings.Join(lines, "\n")
}

// frameCodeBlocks replaces the renderer's gutter on code lines with a
// horizontal rule above and below the block.
func frameCodeBlocks(s string, width int) string {
	const darkGray, reset = "\x1b[90m", "\x1b[0m"
	ruleLen := width - 4
	if ruleLen < 10 {
		ruleLen = 10
	}
	bottom := darkGray + strings.Repeat("━", ruleLen) + reset

	var result []string
	inBlock := false
	closeBlock := func() {
		result = append(result, "", bottom, "")
		inBlock = false
	}

	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, codeGutter) {
			if !inBlock {
				inBlock = true
				label := "[code]"
				left := (ruleLen - len(label)) / 2
				right := ruleLen - len(label) - left
				result = append(result, "",
					darkGray+strings.Repeat("━", left)+reset+label+darkGray+strings.Repeat("━", right)+reset,
					"")
			}
			result = append(result, stripCodeGutter(line))
			continue
		}
		if inBlock {
			closeBlock()
		}
		result = append(result, line)
	}
	if inBlock {
		closeBlock()
	}

	return strings.Join(result, "\n")
}

func stripCodeGutter(line string) string {
	idx := strings.Index(line, codeGutter)
	if idx < 0 {
		return line
	}
	after := idx + len(codeGutter)
	if after < len(line) && line[after] == ' ' {
		after++
	}
	return line[after:]
}

// formatUserMessage draws user text behind a green bar.
func formatUserMessage(timestamp, content string, files []string) string {
	bar := "\x1b[32;1m" + codeGutter + "\x1b[0m"

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", bar, timestamp, UserStyle.Render("You"))
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(&b, "%s %s\n", bar, line)
	}
	if len(files) > 0 {
		fmt.Fprintf(&b, "%s %s\n", bar, DimStyle.Render("files: "+strings.Join(files, ", ")))
	}
	b.WriteString("\n")
	return b.String()
}

// assistantHeader is the line above an assistant reply.
func assistantHeader(timestamp string, msg model.ChatMessage) string {
	name := "Assistant"
	var details []string
	if meta := msg.Metadata; meta != nil {
		if meta.Provider == model.ErrorProviderID {
			return fmt.Sprintf("%s %s\n", timestamp, ErrorStyle.Render("Error"))
		}
		if meta.Model != "" {
			name = meta.Model
		} else if meta.Provider != "" {
			name = config.ProviderDisplayName(meta.Provider)
		}
		if len(meta.IntelligentContextFiles) > 0 {
			details = append(details, fmt.Sprintf("%d context files", len(meta.IntelligentContextFiles)))
		}
		if len(meta.ToolCalls) > 0 {
			details = append(details, fmt.Sprintf("%d tool calls", len(meta.ToolCalls)))
		}
		if meta.Duration > 0 {
			details = append(details, formatDuration(meta.Duration))
		}
	}

	line := fmt.Sprintf("%s %s", timestamp, AssistantStyle.Bold(true).Render(name))
	if len(details) > 0 {
		line += DimStyle.Render(" (" + strings.Join(details, ", ") + ")")
	}
	return line + "\n"
}

// formatToolMessage shows a tool result, trimmed to maxToolLines.
func formatToolMessage(timestamp string, msg model.ChatMessage, width int) string {
	var b strings.Builder
	header := "⚙ tool"
	failed := false
	if msg.Metadata != nil && len(msg.Metadata.ToolResults) > 0 {
		r := msg.Metadata.ToolResults[0]
		header = "⚙ " + r.ToolName
		failed = !r.Success
	}
	if failed {
		fmt.Fprintf(&b, "%s %s\n", timestamp, ErrorStyle.Render(header+" failed"))
	} else {
		fmt.Fprintf(&b, "%s %s\n", timestamp, ToolStyle.Render(header))
	}

	lines := strings.Split(strings.TrimSpace(msg.Content), "\n")
	hidden := 0
	if len(lines) > maxToolLines {
		hidden = len(lines) - maxToolLines
		lines = lines[:maxToolLines]
	}
	for _, line := range lines {
		b.WriteString(wordWrapWithIndent(line, "  ", width))
	}
	if hidden > 0 {
		b.WriteString(DimStyle.Render(fmt.Sprintf("  … %d more lines", hidden)) + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

func wordWrapWithIndent(text string, prefix string, maxWidth int) string {
	prefixLen := len(stripANSI(prefix))
	available := maxWidth - prefixLen
	if available <= 0 {
		return prefix + text + "\n"
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return prefix + "\n"
	}

	var result, line strings.Builder
	indent := strings.Repeat(" ", prefixLen)
	first := true
	flush := func() {
		if first {
			result.WriteString(prefix)
			first = false
		} else {
			result.WriteString(indent)
		}
		result.WriteString(line.String())
		result.WriteString("\n")
		line.Reset()
	}

	for _, word := range words {
		n := line.Len()
		if n > 0 {
			n++
		}
		if n+len(word) > available && line.Len() > 0 {
			flush()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		flush()
	}
	return result.String()
}

func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}

// formatTranscript renders the conversation as plain text for the
// clipboard.
func formatTranscript(messages []model.ChatMessage) string {
	var b strings.Builder
	for _, msg := range messages {
		role := msg.Role
		switch msg.Role {
		case model.RoleUser:
			role = "You"
		case model.RoleAssistant:
			role = "Assistant"
		case model.RoleTool:
			role = "Tool"
		}
		fmt.Fprintf(&b, "[%s] %s:\n%s\n\n", msg.Timestamp.Format("15:04"), role, msg.Content)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
