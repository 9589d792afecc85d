package chat

import (
	"fmt"
	"strings"

	"toolchat/model"
)

const (
	explicitFilesHeading    = "## Explicitly Referenced Files:"
	intelligentFilesHeading = "## Relevant Project Files (automatically selected):"
)

// Assemble builds the model-facing messages for a turn, in this order: the
// tool system message (tools enabled and catalog non-empty), the grounding
// system message (any files), then history without tool-role messages.
func Assemble(history []model.ChatMessage, files []model.ContextFile, catalog []model.ToolInfo, toolsEnabled bool) []model.Message {
	messages := make([]model.Message, 0, len(history)+2)

	if toolsEnabled && len(catalog) > 0 {
		messages = append(messages, model.Message{
			Role:    model.RoleSystem,
			Content: toolSystemPrompt(catalog),
		})
	}

	if len(files) > 0 {
		messages = append(messages, model.Message{
			Role:    model.RoleSystem,
			Content: groundingPrompt(files),
		})
	}

	for _, msg := range history {
		if msg.Role == model.RoleTool {
			continue
		}
		messages = append(messages, model.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return messages
}

func toolSystemPrompt(catalog []model.ToolInfo) string {
	var b strings.Builder
	b.WriteString("You can call the following tools when they help answer the user. ")
	b.WriteString("Use the exact tool name. Tools marked [dangerous] change state outside this conversation; only call them when the user asked for that.\n\n")

	for _, tool := range catalog {
		desc := tool.Description
		if desc == "" {
			desc = "No description available"
		}
		fmt.Fprintf(&b, "- %s: %s (server: %s)", tool.Name, desc, tool.ServerName)
		if tool.Dangerous {
			b.WriteString(" [dangerous]")
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func groundingPrompt(files []model.ContextFile) string {
	var explicit, intelligent []string
	for _, f := range files {
		if f.IsIntelligentContext {
			intelligent = append(intelligent, renderFile(f))
		} else {
			explicit = append(explicit, renderFile(f))
		}
	}

	var b strings.Builder
	if len(explicit) > 0 {
		b.WriteString(explicitFilesHeading + "\n\n")
		b.WriteString(strings.Join(explicit, "\n\n"))
		b.WriteString("\n\n")
	}
	if len(intelligent) > 0 {
		b.WriteString(intelligentFilesHeading + "\n\n")
		b.WriteString(strings.Join(intelligent, "\n\n"))
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderFile(f model.ContextFile) string {
	heading := "### " + f.Path
	if f.RelevanceScore != nil {
		heading += fmt.Sprintf(" (relevance: %.2f)", *f.RelevanceScore)
	}
	return fmt.Sprintf("%s\n```%s\n%s\n```", heading, f.Language, f.Content)
}
