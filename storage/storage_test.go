package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"toolchat/model"
)

func testSessions() []*model.ChatSession {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	older := &model.ChatSession{
		ID:           "s-old",
		Title:        "Older",
		CreatedAt:    base,
		LastUpdated:  base,
		ToolsEnabled: true,
		Messages: []model.ChatMessage{
			{ID: "m1", Role: model.RoleUser, Content: "how do I parse TOML", Timestamp: base},
		},
	}
	newer := &model.ChatSession{
		ID:           "s-new",
		Title:        "Newer",
		CreatedAt:    base,
		LastUpdated:  base.Add(time.Hour),
		ToolsEnabled: false,
		Provider:     "anthropic",
		Model:        "claude-sonnet-4-5-20250929",
		Messages: []model.ChatMessage{
			{ID: "m2", Role: model.RoleUser, Content: "read main.go", Timestamp: base,
				Metadata: &model.Metadata{Files: []string{"main.go"}, ContextCount: 1}},
			{ID: "m3", Role: model.RoleAssistant, Content: "It starts the program.", Timestamp: base,
				Metadata: &model.Metadata{Provider: "anthropic", Model: "claude-sonnet-4-5-20250929",
					ToolResults: []model.ToolExecutionResult{{ToolName: "fs.read", Success: true, Result: "ok", RequestID: "c1"}}}},
		},
	}
	return []*model.ChatSession{older, newer}
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	sqliteStore, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Backend{"json": fileStore, "sqlite": sqliteStore}
}

func TestBackendRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := backend.SaveSessions(ctx, testSessions()); err != nil {
				t.Fatalf("SaveSessions() error: %v", err)
			}

			loaded, err := backend.LoadSessions(ctx)
			if err != nil {
				t.Fatalf("LoadSessions() error: %v", err)
			}
			if len(loaded) != 2 {
				t.Fatalf("expected 2 sessions, got %d", len(loaded))
			}
			if loaded[0].ID != "s-new" {
				t.Errorf("expected newest session first, got %s", loaded[0].ID)
			}

			s := loaded[0]
			if s.Provider != "anthropic" || s.ToolsEnabled {
				t.Errorf("session fields not preserved: %+v", s)
			}
			if len(s.Messages) != 2 || s.Messages[0].ID != "m2" || s.Messages[1].ID != "m3" {
				t.Fatalf("message order not preserved: %+v", s.Messages)
			}
			if s.Messages[0].Metadata == nil || s.Messages[0].Metadata.Files[0] != "main.go" {
				t.Errorf("user metadata lost: %+v", s.Messages[0].Metadata)
			}
			results := s.Messages[1].Metadata.ToolResults
			if len(results) != 1 || results[0].RequestID != "c1" || !results[0].Success {
				t.Errorf("tool results lost: %+v", results)
			}
			if s.LastUpdated.Unix() != testSessions()[1].LastUpdated.Unix() {
				t.Errorf("LastUpdated not preserved: %v", s.LastUpdated)
			}
		})
	}
}

func TestSaveSessionsIsFullOverwrite(t *testing.T) {
	ctx := context.Background()

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			sessions := testSessions()
			if err := backend.SaveSessions(ctx, sessions); err != nil {
				t.Fatal(err)
			}
			// Saving twice must not duplicate anything
			if err := backend.SaveSessions(ctx, sessions); err != nil {
				t.Fatal(err)
			}
			if err := backend.SaveSessions(ctx, sessions[1:]); err != nil {
				t.Fatal(err)
			}

			loaded, err := backend.LoadSessions(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(loaded) != 1 || loaded[0].ID != "s-new" {
				t.Fatalf("expected only s-new to remain, got %d sessions", len(loaded))
			}
			if len(loaded[0].Messages) != 2 {
				t.Errorf("expected 2 messages, got %d", len(loaded[0].Messages))
			}
		})
	}
}

func TestCurrentSessionID(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			id, err := backend.LoadCurrentSessionID()
			if err != nil || id != "" {
				t.Fatalf("expected empty id, got %q (%v)", id, err)
			}
			if err := backend.SaveCurrentSessionID("s-new"); err != nil {
				t.Fatal(err)
			}
			id, err = backend.LoadCurrentSessionID()
			if err != nil || id != "s-new" {
				t.Errorf("expected s-new, got %q (%v)", id, err)
			}
		})
	}
}

func TestFileStoreSkipsCorruptFiles(t *testing.T) {
	dataDir := t.TempDir()
	store, err := NewFileStore(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSessions(context.Background(), testSessions()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "sessions", "broken.json"), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadSessions(context.Background())
	if err != nil {
		t.Fatalf("LoadSessions() error: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(loaded))
	}

	info, err := os.Stat(filepath.Join(dataDir, "sessions", "s-new.json"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600, got %v", info.Mode().Perm())
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		backend   string
		expectErr bool
	}{
		{backend: "json"},
		{backend: ""},
		{backend: "sqlite"},
		{backend: "postgres", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			b, err := Open(tt.backend, t.TempDir())
			if tt.expectErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			b.Close()
		})
	}
}

func TestGenerateSessionName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "short", input: "Fix the build", want: "Fix the build"},
		{name: "newlines collapsed", input: "line one\nline two", want: "line one line two"},
		{name: "long truncated", input: strings.Repeat("a", 40), want: strings.Repeat("a", 30) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GenerateSessionName(tt.input); got != tt.want {
				t.Errorf("GenerateSessionName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	if got := GenerateSessionName("   "); !strings.HasPrefix(got, "Session ") {
		t.Errorf("expected fallback name, got %q", got)
	}
}

func TestSearchSessions(t *testing.T) {
	matches := SearchSessions(testSessions(), "MAIN.GO")
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].SessionID != "s-new" || matches[0].MessageID != "m2" {
		t.Errorf("unexpected match %+v", matches[0])
	}

	if got := SearchSessions(testSessions(), " "); len(got) != 0 {
		t.Errorf("expected no matches for blank query, got %d", len(got))
	}
}

func TestExportSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "session.json")
	session := testSessions()[1]

	if err := ExportSession(session, path); err != nil {
		t.Fatalf("ExportSession() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded model.ChatSession
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if decoded.ID != session.ID || len(decoded.Messages) != 2 {
		t.Errorf("unexpected export %+v", decoded)
	}
}
