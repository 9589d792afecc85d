package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ErrorProviderID marks assistant messages that report a failed turn.
const ErrorProviderID = "error"

// Message is one provider-facing message. ToolCallID, ToolName,
// ToolArguments and ToolError are only set on tool-result messages, so
// adapters can correlate the result with the call that produced it.
type Message struct {
	Role          string
	Content       string
	ToolCallID    string
	ToolName      string
	ToolArguments map[string]any
	ToolError     bool
}

// IsToolResult reports whether m carries the result of a tool call.
func (m Message) IsToolResult() bool {
	return m.ToolCallID != ""
}

// Metadata is attached to user and assistant chat messages.
type Metadata struct {
	Provider                string                `json:"provider,omitempty"`
	Model                   string                `json:"model,omitempty"`
	Files                   []string              `json:"files,omitempty"`
	IntelligentContextFiles []string              `json:"intelligentContextFiles,omitempty"`
	ContextCount            int                   `json:"contextCount,omitempty"`
	TokenCount              int                   `json:"tokenCount,omitempty"`
	Duration                time.Duration         `json:"duration,omitempty"`
	ToolCalls               []ToolCall            `json:"toolCalls,omitempty"`
	ToolResults             []ToolExecutionResult `json:"toolResults,omitempty"`
}

// ChatMessage is a persisted, user-visible conversation entry.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// NewChatMessage stamps a message with a fresh id and the current time.
func NewChatMessage(role, content string, meta *Metadata) ChatMessage {
	return ChatMessage{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  meta,
	}
}

// ChatSession is one conversation. Provider and Model record what the
// session last talked to.
type ChatSession struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Messages     []ChatMessage `json:"messages"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastUpdated  time.Time     `json:"lastUpdated"`
	ToolsEnabled bool          `json:"toolsEnabled"`
	Provider     string        `json:"provider,omitempty"`
	Model        string        `json:"model,omitempty"`
}

// DefaultSessionTitle is the title of a session nobody has written to yet.
const DefaultSessionTitle = "New Chat"

func NewChatSession(toolsEnabled bool) *ChatSession {
	now := time.Now()
	return &ChatSession{
		ID:           uuid.New().String(),
		Title:        DefaultSessionTitle,
		Messages:     []ChatMessage{},
		CreatedAt:    now,
		LastUpdated:  now,
		ToolsEnabled: toolsEnabled,
	}
}

// Clone returns a deep enough copy for handing a session across goroutines:
// the message slice is copied, message metadata is shared.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = append([]ChatMessage(nil), s.Messages...)
	return &c
}
