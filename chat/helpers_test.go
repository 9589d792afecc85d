package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"toolchat/model"
)

type memPersistence struct {
	mu        sync.Mutex
	sessions  []*model.ChatSession
	currentID string
	saves     int
	loadErr   error
	saveErr   error
}

func (p *memPersistence) LoadSessions(ctx context.Context) ([]*model.ChatSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	out := make([]*model.ChatSession, len(p.sessions))
	for i, s := range p.sessions {
		out[i] = s.Clone()
	}
	return out, nil
}

func (p *memPersistence) SaveSessions(ctx context.Context, sessions []*model.ChatSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves++
	if p.saveErr != nil {
		return p.saveErr
	}
	p.sessions = sessions
	return nil
}

func (p *memPersistence) SaveCurrentSessionID(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentID = id
	return nil
}

func (p *memPersistence) LoadCurrentSessionID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentID, nil
}

func (p *memPersistence) saved() []*model.ChatSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions
}

// fakeFiles serves an in-memory file tree. Resolve accepts exact keys only.
type fakeFiles map[string]string

func (f fakeFiles) Resolve(ref string) (string, error) {
	if _, ok := f[ref]; !ok {
		return "", fmt.Errorf("%s: no such file", ref)
	}
	return ref, nil
}

func (f fakeFiles) ReadFile(path string) (string, error) {
	content, ok := f[path]
	if !ok {
		return "", fmt.Errorf("%s: no such file", path)
	}
	return content, nil
}

func (f fakeFiles) Language(path string) string {
	return "go"
}

type fakeRetriever struct {
	files []model.ContextFile
	err   error
	calls int
}

func (r *fakeRetriever) Retrieve(ctx context.Context, query string, opts model.RetrievalOptions) ([]model.ContextFile, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.files, nil
}

func score(v float64) *float64 { return &v }

// fakeExecutor answers by tool name. Unknown tools fail.
type fakeExecutor struct {
	mu      sync.Mutex
	results map[string]any
	errs    map[string]error
	run     func(ctx context.Context, req model.ToolExecutionRequest) (model.ToolExecutionResult, error)
	seen    []model.ToolExecutionRequest
}

func (e *fakeExecutor) Execute(ctx context.Context, req model.ToolExecutionRequest) (model.ToolExecutionResult, error) {
	e.mu.Lock()
	e.seen = append(e.seen, req)
	e.mu.Unlock()

	if e.run != nil {
		return e.run(ctx, req)
	}
	if err, ok := e.errs[req.ToolName]; ok {
		return model.ToolExecutionResult{}, err
	}
	if result, ok := e.results[req.ToolName]; ok {
		return model.ToolExecutionResult{ToolName: req.ToolName, Success: true, Result: result}, nil
	}
	return model.ToolExecutionResult{ToolName: req.ToolName, Success: false, Error: "unknown tool"}, nil
}

func (e *fakeExecutor) requests() []model.ToolExecutionRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.ToolExecutionRequest(nil), e.seen...)
}

type fakeCatalog struct {
	tools   []model.ToolInfo
	servers []model.ServerStatus
}

func (c *fakeCatalog) ListTools() []model.ToolInfo { return c.tools }
func (c *fakeCatalog) Status() []model.ServerStatus { return c.servers }

// recordingSink keeps every event.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) kinds(kind EventKind) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

var errBoom = errors.New("boom")
