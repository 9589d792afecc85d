package testutil

import (
	"context"
	"sync"

	"toolchat/model"
)

// MockProvider implements model.Provider for testing
type MockProvider struct {
	// Configurable responses
	SendFunc       func(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
	ListModelsFunc func(ctx context.Context) ([]model.ModelInfo, error)
	PingFunc       func(ctx context.Context) error

	// State
	id           string
	currentModel string

	mu       sync.Mutex
	requests []model.ChatRequest
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(id, modelName string) *MockProvider {
	mock := &MockProvider{
		id:           id,
		currentModel: modelName,
	}
	mock.SendFunc = mock.defaultSend
	mock.ListModelsFunc = mock.defaultListModels
	mock.PingFunc = mock.defaultPing
	return mock
}

// Respond makes the mock answer successive Send calls with resps, in order.
// Calls past the end repeat the last response.
func (m *MockProvider) Respond(resps ...*model.ChatResponse) {
	var n int
	var mu sync.Mutex
	m.SendFunc = func(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		resp := *resps[min(n, len(resps)-1)]
		n++
		if resp.Provider == "" {
			resp.Provider = m.id
		}
		if resp.Model == "" {
			resp.Model = m.currentModel
		}
		resp.RequiresToolExecution = len(resp.ToolCalls) > 0
		return &resp, nil
	}
}

// Requests returns every request Send has received.
func (m *MockProvider) Requests() []model.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ChatRequest(nil), m.requests...)
}

func (m *MockProvider) defaultSend(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	return &model.ChatResponse{
		Content:  "Mock response",
		Provider: m.id,
		Model:    m.currentModel,
	}, nil
}

func (m *MockProvider) defaultListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return []model.ModelInfo{
		{Name: "mock-model-1", Size: 1000, Provider: m.id, InternalName: "mock-model-1"},
		{Name: "mock-model-2", Size: 2000, Provider: m.id, InternalName: "mock-model-2"},
	}, nil
}

func (m *MockProvider) defaultPing(ctx context.Context) error {
	return nil
}

func (m *MockProvider) ID() string {
	return m.id
}

func (m *MockProvider) Send(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.SendFunc(ctx, req)
}

func (m *MockProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) GetModel() string {
	return m.currentModel
}

func (m *MockProvider) GetDisplayName() string {
	return m.currentModel
}

func (m *MockProvider) SetModel(model string) {
	m.currentModel = model
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}
