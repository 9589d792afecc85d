package chat

import (
	"sync/atomic"
	"time"

	"toolchat/config"
	"toolchat/model"
)

type EventKind string

const (
	EventLoading             EventKind = "loading"
	EventMessageAppended     EventKind = "message_appended"
	EventMessageUpdated      EventKind = "message_updated"
	EventToolExecutionPrompt EventKind = "tool_execution_prompt"
	EventStatus              EventKind = "status"
	EventSessionList         EventKind = "session_list"
	EventChatHistory         EventKind = "chat_history"
	EventStateChanged        EventKind = "state_changed"
	EventTogglesChanged      EventKind = "toggles_changed"
	EventWarning             EventKind = "warning"
)

// Event is one notification to the host. Only the fields for Kind are set.
type Event struct {
	Kind      EventKind
	SessionID string

	Loading  bool
	Message  *model.ChatMessage
	Prompt   *ToolExecutionPrompt
	Status   *StatusSnapshot
	Sessions []SessionSummary
	History  []model.ChatMessage
	State    TurnState
	Toggles  config.ToggleSnapshot
	Warning  string
}

// PromptCall is one gated tool call as shown to the user.
type PromptCall struct {
	ID          string
	Name        string
	Arguments   map[string]any
	Description string
	Dangerous   bool
}

// ToolExecutionPrompt asks the user to confirm a batch of tool calls.
type ToolExecutionPrompt struct {
	Calls []PromptCall
}

// SessionSummary is one row of the session list.
type SessionSummary struct {
	ID           string
	Title        string
	MessageCount int
	Current      bool
	LastUpdated  time.Time
}

// StatusSnapshot reports provider, tool and dispatch state.
type StatusSnapshot struct {
	Provider     string
	Model        string
	State        TurnState
	ToolsEnabled bool
	AutoExecute  bool
	ToolCount    int
	Servers      []model.ServerStatus
	Stats        DispatchStats
}

// EventSink receives notifications. Emit must not block the caller.
type EventSink interface {
	Emit(Event)
}

// FuncSink adapts a function to EventSink.
type FuncSink func(Event)

func (f FuncSink) Emit(e Event) { f(e) }

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// ChannelSink delivers events on a buffered channel. When the buffer is
// full the event is dropped and counted.
type ChannelSink struct {
	ch      chan Event
	dropped atomic.Int64
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(e Event) {
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] Event sink full, dropped %s event", e.Kind)
		}
	}
}

// Events is the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events were discarded.
func (s *ChannelSink) Dropped() int64 {
	return s.dropped.Load()
}
