package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"toolchat/config"
	"toolchat/model"
)

// ToolCallPlaceholder is the assistant content recorded when a model asks
// for tools without saying anything.
const ToolCallPlaceholder = "I need to use some tools to help you."

// TurnState is where the orchestrator is within a turn.
type TurnState string

const (
	StateIdle             TurnState = "idle"
	StateAssembling       TurnState = "assembling"
	StateAwaitingModel    TurnState = "awaiting_model"
	StateAnswering        TurnState = "answering"
	StateToolsPending     TurnState = "tools_pending"
	StateExecuting        TurnState = "executing"
	StateAwaitingFollowUp TurnState = "awaiting_follow_up"
)

// ModelClient sends requests to the active provider.
type ModelClient interface {
	Send(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
	Active() (providerID, modelName string)
	Use(providerID, modelName string) error
}

// ToolCatalog lists the tools currently offered to the model.
type ToolCatalog interface {
	ListTools() []model.ToolInfo
}

// statusReporter is implemented by catalogs that can describe their
// servers.
type statusReporter interface {
	Status() []model.ServerStatus
}

// catalogRefresher is implemented by catalogs that can restart their
// servers from a reloaded configuration.
type catalogRefresher interface {
	Refresh(ctx context.Context, servers []config.MCPServerConfig) error
}

// ToolResultFormatter builds the provider-specific message carrying one
// tool result. ok is false when the provider has no format.
type ToolResultFormatter interface {
	Format(providerID string, call model.ToolCall, payload any) (msg model.Message, ok bool)
}

// FormatterFunc adapts a function to ToolResultFormatter.
type FormatterFunc func(providerID string, call model.ToolCall, payload any) (model.Message, bool)

func (f FormatterFunc) Format(providerID string, call model.ToolCall, payload any) (model.Message, bool) {
	return f(providerID, call, payload)
}

// Options wires an Orchestrator. Store, Client and Dispatcher are required.
type Options struct {
	Store        *SessionStore
	Selector     *ContextSelector
	Dispatcher   *Dispatcher
	Client       ModelClient
	Catalog      ToolCatalog
	Formatter    ToolResultFormatter
	Toggles      *config.Toggles
	Sink         EventSink
	SystemPrompt string

	// Reload re-reads the configuration for Refresh.
	Reload func() (*config.Config, error)
}

// pendingBatch is a gated set of tool calls waiting for confirmation,
// together with what is needed to finish the turn later.
type pendingBatch struct {
	sessionID  string
	providerID string
	calls      []model.ToolCall
	assembled  []model.Message
	started    time.Time
}

// subset returns a copy of b holding only the calls named in ids, or nil
// when none match.
func (b *pendingBatch) subset(ids []string) *pendingBatch {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var calls []model.ToolCall
	for _, call := range b.calls {
		if wanted[call.ID] {
			calls = append(calls, call)
		}
	}
	if len(calls) == 0 {
		return nil
	}

	c := *b
	c.calls = calls
	return &c
}

// Orchestrator drives one turn at a time: context, model request, tool
// execution and follow-up.
type Orchestrator struct {
	store      *SessionStore
	selector   *ContextSelector
	dispatcher *Dispatcher
	client     ModelClient
	catalog    ToolCatalog
	formatter  ToolResultFormatter
	toggles    *config.Toggles
	sink       EventSink
	reload     func() (*config.Config, error)

	inFlight atomic.Bool

	mu           sync.Mutex
	state        TurnState
	pending      *pendingBatch
	systemPrompt string
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:        opts.Store,
		selector:     opts.Selector,
		dispatcher:   opts.Dispatcher,
		client:       opts.Client,
		catalog:      opts.Catalog,
		formatter:    opts.Formatter,
		toggles:      opts.Toggles,
		sink:         opts.Sink,
		systemPrompt: opts.SystemPrompt,
		reload:       opts.Reload,
		state:        StateIdle,
	}
	if o.sink == nil {
		o.sink = NopSink{}
	}
	if o.selector == nil {
		o.selector = NewContextSelector(nil, nil)
	}
	if o.dispatcher == nil {
		o.dispatcher = NewDispatcher(nil, 0, 0)
	}
	if o.toggles == nil {
		o.toggles = config.NewToggles(&config.Config{ToolsEnabled: true, AutoExecuteTools: true})
	}

	o.toggles.Subscribe(func(s config.ToggleSnapshot) {
		o.sink.Emit(Event{Kind: EventTogglesChanged, Toggles: s})
	})

	return o
}

// State returns the current turn state.
func (o *Orchestrator) State() TurnState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Busy reports whether a turn is in flight.
func (o *Orchestrator) Busy() bool {
	return o.inFlight.Load()
}

// HandleUserMessage runs one turn for text with explicit file references.
// While another turn is in flight it returns ErrTurnInFlight and does
// nothing else. A failed model request is recorded in the session as an
// error message and also returned as a *RequestError.
func (o *Orchestrator) HandleUserMessage(ctx context.Context, text string, fileRefs []string) (err error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] Rejected message while a turn is in flight")
		}
		return ErrTurnInFlight
	}
	defer o.finishTurn()

	started := time.Now()
	toggles := o.toggles.Snapshot()
	sessionID := o.store.CurrentID()
	o.dropPending()

	o.sink.Emit(Event{Kind: EventLoading, Loading: true, SessionID: sessionID})
	defer o.recoverTurn(ctx, sessionID, &err)

	o.setState(StateAssembling)

	if fileRefs == nil {
		fileRefs = []string{}
	}
	userMsg := model.NewChatMessage(model.RoleUser, text, &model.Metadata{
		Files:                   fileRefs,
		IntelligentContextFiles: []string{},
	})
	history, err := o.append(ctx, sessionID, userMsg)
	if err != nil {
		return o.fail(ctx, sessionID, err)
	}

	files := o.selector.Select(ctx, text, fileRefs)
	explicit, intelligent := model.SplitContextPaths(files)

	updated := userMsg
	updated.Metadata = &model.Metadata{
		Files:                   fileRefs,
		IntelligentContextFiles: nonNil(intelligent),
		ContextCount:            len(intelligent),
	}
	o.update(ctx, sessionID, updated)

	var catalog []model.ToolInfo
	if toggles.ToolsEnabled && o.catalog != nil {
		catalog = o.catalog.ListTools()
	}

	assembled := Assemble(history, files, catalog, toggles.ToolsEnabled)
	if prompt := o.SystemPrompt(); prompt != "" {
		assembled = append([]model.Message{{Role: model.RoleSystem, Content: prompt}}, assembled...)
	}

	req := model.ChatRequest{Messages: assembled}
	if len(catalog) > 0 {
		req.Tools = model.DefinitionsOf(catalog)
		req.EnableTools = true
		req.ToolChoice = model.ToolChoiceAuto
	}

	o.setState(StateAwaitingModel)
	resp, err := o.send(ctx, req)
	if err != nil {
		return o.fail(ctx, sessionID, &RequestError{Phase: "request", Err: err})
	}
	o.store.SetProvider(sessionID, resp.Provider, resp.Model)

	if len(resp.ToolCalls) == 0 {
		o.setState(StateAnswering)
		_, err := o.append(ctx, sessionID, model.NewChatMessage(model.RoleAssistant, resp.Content, &model.Metadata{
			Provider:                resp.Provider,
			Model:                   resp.Model,
			Files:                   explicit,
			IntelligentContextFiles: intelligent,
			ContextCount:            len(files),
			TokenCount:              resp.TokenCount,
			Duration:                time.Since(started),
		}))
		return err
	}

	o.setState(StateToolsPending)
	content := resp.Content
	if content == "" {
		content = ToolCallPlaceholder
	}
	if _, err := o.append(ctx, sessionID, model.NewChatMessage(model.RoleAssistant, content, &model.Metadata{
		Provider:   resp.Provider,
		Model:      resp.Model,
		ToolCalls:  resp.ToolCalls,
		TokenCount: resp.TokenCount,
	})); err != nil {
		return err
	}

	batch := &pendingBatch{
		sessionID:  sessionID,
		providerID: resp.Provider,
		calls:      resp.ToolCalls,
		assembled:  assembled,
		started:    started,
	}

	if !toggles.AutoExecute {
		o.mu.Lock()
		o.pending = batch
		o.mu.Unlock()
		o.sink.Emit(Event{Kind: EventToolExecutionPrompt, SessionID: sessionID, Prompt: o.prompt(resp.ToolCalls)})
		return nil
	}

	return o.execute(ctx, batch)
}

// ConfirmToolExecution runs the gated batch, or only the calls named in
// callIDs (original order kept). It is a turn of its own and shares the
// in-flight guard.
func (o *Orchestrator) ConfirmToolExecution(ctx context.Context, callIDs []string) (err error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return ErrTurnInFlight
	}
	defer o.finishTurn()

	o.mu.Lock()
	batch := o.pending
	if batch != nil && len(callIDs) > 0 {
		batch = batch.subset(callIDs)
	}
	if batch != nil {
		o.pending = nil
	}
	o.mu.Unlock()

	if batch == nil {
		return ErrNoPendingTools
	}

	o.sink.Emit(Event{Kind: EventLoading, Loading: true, SessionID: batch.sessionID})
	defer o.recoverTurn(ctx, batch.sessionID, &err)

	return o.execute(ctx, batch)
}

// DeclineToolExecution drops the gated batch. It reports whether there was
// one.
func (o *Orchestrator) DeclineToolExecution() bool {
	return o.dropPending()
}

// PendingToolCalls returns the gated calls, if any.
func (o *Orchestrator) PendingToolCalls() []model.ToolCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return nil
	}
	return append([]model.ToolCall(nil), o.pending.calls...)
}

// ExecuteSingleTool runs one call on request from the user and records the
// result. No follow-up request is made. A call without an ID gets one.
func (o *Orchestrator) ExecuteSingleTool(ctx context.Context, call model.ToolCall) (model.ToolExecutionResult, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return model.ToolExecutionResult{}, ErrTurnInFlight
	}
	defer o.finishTurn()

	if call.ID == "" {
		call.ID = "call_" + uuid.New().String()
	}

	sessionID := o.store.CurrentID()
	o.sink.Emit(Event{Kind: EventLoading, Loading: true, SessionID: sessionID})
	o.setState(StateExecuting)

	result := o.dispatcher.ExecuteOne(ctx, model.NewToolExecutionRequest(call, sessionID))

	content := fmt.Sprintf("Tool executed: %s", stringifyResult(result.Result))
	if !result.Success {
		content = fmt.Sprintf("Tool failed: %s", result.Error)
	}
	_, err := o.append(ctx, sessionID, model.NewChatMessage(model.RoleTool, content, &model.Metadata{
		ToolResults: []model.ToolExecutionResult{result},
	}))

	return result, err
}

// execute runs a batch, records one tool message per result and, when any
// result could be formatted for the provider, asks for a follow-up answer.
func (o *Orchestrator) execute(ctx context.Context, batch *pendingBatch) error {
	o.setState(StateExecuting)

	reqs := make([]model.ToolExecutionRequest, len(batch.calls))
	for i, call := range batch.calls {
		reqs[i] = model.NewToolExecutionRequest(call, batch.sessionID)
	}

	results := o.dispatcher.ExecuteMany(ctx, reqs)

	providerID := batch.providerID
	if providerID == "" && o.client != nil {
		providerID, _ = o.client.Active()
	}

	var formatted []model.Message
	for i, result := range results {
		if err := ResultError(result); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] %v", err)
		}
		if _, err := o.append(ctx, batch.sessionID, model.NewChatMessage(model.RoleTool, toolMessageContent(result), &model.Metadata{
			ToolResults: []model.ToolExecutionResult{result},
		})); err != nil {
			return err
		}

		if o.formatter == nil {
			continue
		}
		if msg, ok := o.formatter.Format(providerID, batch.calls[i], result.Payload()); ok {
			formatted = append(formatted, msg)
		}
	}

	if len(formatted) == 0 {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] No tool results could be formatted for provider %q, skipping follow-up", providerID)
		}
		return nil
	}

	o.setState(StateAwaitingFollowUp)
	messages := make([]model.Message, 0, len(batch.assembled)+len(formatted))
	messages = append(messages, batch.assembled...)
	messages = append(messages, formatted...)

	resp, err := o.send(ctx, model.ChatRequest{Messages: messages, EnableTools: false})
	if err != nil {
		return o.fail(ctx, batch.sessionID, &RequestError{Phase: "follow-up", Err: err})
	}

	_, err = o.append(ctx, batch.sessionID, model.NewChatMessage(model.RoleAssistant, resp.Content, &model.Metadata{
		Provider:    resp.Provider,
		Model:       resp.Model,
		ToolResults: results,
		TokenCount:  resp.TokenCount,
		Duration:    time.Since(batch.started),
	}))
	return err
}

func (o *Orchestrator) send(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	if o.client == nil {
		return nil, errors.New("no model client configured")
	}
	resp, err := o.client.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("empty response from model")
	}
	if resp.Provider == "" || resp.Model == "" {
		id, name := o.client.Active()
		if resp.Provider == "" {
			resp.Provider = id
		}
		if resp.Model == "" {
			resp.Model = name
		}
	}
	return resp, nil
}

// append stores msg, announces it and returns the session history
// including msg. A persistence failure is only a warning: the message is
// kept in memory.
func (o *Orchestrator) append(ctx context.Context, sessionID string, msg model.ChatMessage) ([]model.ChatMessage, error) {
	stored, err := o.store.Append(ctx, sessionID, msg)

	var perr *PersistenceError
	if errors.As(err, &perr) {
		o.warn(sessionID, perr)
		err = nil
	}
	if err != nil {
		return nil, err
	}

	o.sink.Emit(Event{Kind: EventMessageAppended, SessionID: sessionID, Message: &stored})

	session, _ := o.store.Session(sessionID)
	if session == nil {
		return nil, nil
	}
	return session.Messages, nil
}

func (o *Orchestrator) update(ctx context.Context, sessionID string, msg model.ChatMessage) {
	stored, err := o.store.Update(ctx, sessionID, msg)

	var perr *PersistenceError
	if errors.As(err, &perr) {
		o.warn(sessionID, perr)
	} else if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] Failed to update message %s: %v", msg.ID, err)
		}
		return
	}

	o.sink.Emit(Event{Kind: EventMessageUpdated, SessionID: sessionID, Message: &stored})
}

// fail records err as the turn's single error message.
func (o *Orchestrator) fail(ctx context.Context, sessionID string, err error) error {
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] Turn failed: %v", err)
	}

	desc := err.Error()
	if inner := errors.Unwrap(err); inner != nil {
		desc = inner.Error()
	}

	msg := model.NewChatMessage(model.RoleAssistant, "Error: "+desc, &model.Metadata{
		Provider: model.ErrorProviderID,
	})
	if _, appendErr := o.append(ctx, sessionID, msg); appendErr != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] Failed to record error message: %v", appendErr)
	}
	return err
}

func (o *Orchestrator) recoverTurn(ctx context.Context, sessionID string, errp *error) {
	if r := recover(); r != nil {
		*errp = o.fail(ctx, sessionID, fmt.Errorf("internal error: %v", r))
	}
}

func (o *Orchestrator) warn(sessionID string, err error) {
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] %v", err)
	}
	o.sink.Emit(Event{
		Kind:      EventWarning,
		SessionID: sessionID,
		Warning:   fmt.Sprintf("History may not survive a restart: %v", err),
	})
}

// finishTurn returns to Idle. A gated batch stays available through
// PendingToolCalls until it is confirmed or declined.
func (o *Orchestrator) finishTurn() {
	o.setState(StateIdle)
	o.sink.Emit(Event{Kind: EventLoading, Loading: false})
	o.inFlight.Store(false)
}

func (o *Orchestrator) setState(s TurnState) {
	o.mu.Lock()
	changed := o.state != s
	o.state = s
	o.mu.Unlock()

	if changed {
		o.sink.Emit(Event{Kind: EventStateChanged, State: s})
	}
}

// dropPending discards the gated batch.
func (o *Orchestrator) dropPending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	had := o.pending != nil
	o.pending = nil
	return had
}

func (o *Orchestrator) prompt(calls []model.ToolCall) *ToolExecutionPrompt {
	known := make(map[string]model.ToolInfo)
	if o.catalog != nil {
		for _, info := range o.catalog.ListTools() {
			known[info.Name] = info
		}
	}

	prompt := &ToolExecutionPrompt{Calls: make([]PromptCall, len(calls))}
	for i, call := range calls {
		pc := PromptCall{
			ID:          call.ID,
			Name:        call.Name,
			Arguments:   call.Arguments,
			Description: "No description available",
		}
		if info, ok := known[call.Name]; ok {
			if info.Description != "" {
				pc.Description = info.Description
			}
			pc.Dangerous = info.Dangerous
		}
		prompt.Calls[i] = pc
	}
	return prompt
}

func toolMessageContent(r model.ToolExecutionResult) string {
	if !r.Success {
		return fmt.Sprintf("Tool %q failed: %s", r.ToolName, r.Error)
	}
	return fmt.Sprintf("Tool %q executed successfully:\n```\n%s\n```", r.ToolName, stringifyResult(r.Result))
}

func stringifyResult(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
