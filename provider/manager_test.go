package provider_test

import (
	"context"
	"errors"
	"testing"

	"toolchat/model"
	"toolchat/provider"
	"toolchat/provider/testutil"
)

func TestManagerSelection(t *testing.T) {
	ollama := testutil.NewMockProvider("ollama", "llama3.1")
	openai := testutil.NewMockProvider("openai", "gpt-4o-mini")

	tests := []struct {
		name      string
		defaultID string
		wantID    string
	}{
		{"configured default", "openai", "openai"},
		{"missing default falls back to first id", "anthropic", "ollama"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := provider.NewManager(map[string]model.Provider{
				"ollama": ollama,
				"openai": openai,
			}, tt.defaultID)

			id, _ := m.Active()
			if id != tt.wantID {
				t.Errorf("Active() = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func TestManagerUse(t *testing.T) {
	ollama := testutil.NewMockProvider("ollama", "llama3.1")
	openai := testutil.NewMockProvider("openai", "gpt-4o-mini")
	m := provider.NewManager(map[string]model.Provider{"ollama": ollama, "openai": openai}, "ollama")

	if err := m.Use("openai", "gpt-4.1"); err != nil {
		t.Fatal(err)
	}
	id, modelName := m.Active()
	if id != "openai" || modelName != "gpt-4.1" {
		t.Errorf("Active() = (%q, %q)", id, modelName)
	}

	if _, err := m.Send(context.Background(), model.ChatRequest{}); err != nil {
		t.Fatal(err)
	}
	if len(openai.Requests()) != 1 || len(ollama.Requests()) != 0 {
		t.Error("request was not routed to the active provider")
	}

	if err := m.Use("anthropic", ""); err == nil {
		t.Error("expected error for a provider that is not enabled")
	}
	if id, _ := m.Active(); id != "openai" {
		t.Errorf("failed Use changed the active provider to %q", id)
	}
}

func TestManagerWithoutProviders(t *testing.T) {
	m := provider.NewManager(nil, "ollama")

	if _, err := m.Send(context.Background(), model.ChatRequest{}); !errors.Is(err, provider.ErrNoProvider) {
		t.Errorf("Send() error = %v, want ErrNoProvider", err)
	}
	if id, _ := m.Active(); id != "" {
		t.Errorf("Active() = %q, want empty", id)
	}
}

func TestManagerListModels(t *testing.T) {
	ok := testutil.NewMockProvider("ollama", "llama3.1")
	broken := testutil.NewMockProvider("openai", "gpt-4o-mini")
	broken.ListModelsFunc = func(ctx context.Context) ([]model.ModelInfo, error) {
		return nil, errors.New("unauthorized")
	}

	m := provider.NewManager(map[string]model.Provider{"ollama": ok, "openai": broken}, "ollama")
	models, err := m.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 {
		t.Errorf("expected models of the healthy provider only, got %d", len(models))
	}

	m = provider.NewManager(map[string]model.Provider{"openai": broken}, "openai")
	if _, err := m.ListModels(context.Background()); err == nil {
		t.Error("expected error when every provider fails")
	}
}
