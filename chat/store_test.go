package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"toolchat/config"
	"toolchat/model"
	"toolchat/storage"
)

func TestStoreLoadCreatesSessionWhenEmpty(t *testing.T) {
	p := &memPersistence{}
	store := NewSessionStore(p, config.NewToggles(&config.Config{ToolsEnabled: true}))

	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	current := store.Current()
	if current == nil {
		t.Fatal("expected a current session")
	}
	if current.Title != model.DefaultSessionTitle {
		t.Errorf("Title = %q, want %q", current.Title, model.DefaultSessionTitle)
	}
	if !current.ToolsEnabled {
		t.Error("new session should inherit tools toggle")
	}
	if len(p.saved()) != 1 {
		t.Errorf("saved %d sessions, want 1", len(p.saved()))
	}
}

func TestStoreLoadSelectsRememberedOrMostRecent(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions := []*model.ChatSession{
		{ID: "a", Title: "A", LastUpdated: base},
		{ID: "b", Title: "B", LastUpdated: base.Add(time.Hour)},
	}

	tests := []struct {
		name       string
		remembered string
		want       string
	}{
		{"remembered", "a", "a"},
		{"most recent", "", "b"},
		{"stale remembered id", "gone", "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &memPersistence{sessions: sessions, currentID: tt.remembered}
			store := NewSessionStore(p, nil)
			if err := store.Load(context.Background()); err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if got := store.CurrentID(); got != tt.want {
				t.Errorf("CurrentID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStoreLoadFailureKeepsFreshSession(t *testing.T) {
	p := &memPersistence{loadErr: errBoom}
	store := NewSessionStore(p, nil)

	err := store.Load(context.Background())

	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "load" {
		t.Fatalf("Load() error = %v, want load PersistenceError", err)
	}
	if store.Current() == nil {
		t.Error("expected a usable session after load failure")
	}
}

func TestStoreAppend(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(&memPersistence{}, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	first := model.NewChatMessage(model.RoleUser, "  explain   the config loader ", nil)
	if _, err := store.Append(ctx, "", first); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	// An earlier timestamp is clamped to the previous message
	second := model.NewChatMessage(model.RoleAssistant, "sure", nil)
	second.Timestamp = first.Timestamp.Add(-time.Minute)
	stored, err := store.Append(ctx, "", second)
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if stored.Timestamp.Before(first.Timestamp) {
		t.Errorf("timestamp went backwards: %v < %v", stored.Timestamp, first.Timestamp)
	}

	current := store.Current()
	if current.Title != "explain the config loader" {
		t.Errorf("Title = %q", current.Title)
	}
	if len(current.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(current.Messages))
	}
	if !current.LastUpdated.Equal(stored.Timestamp) {
		t.Errorf("LastUpdated = %v, want %v", current.LastUpdated, stored.Timestamp)
	}

	// A later user message leaves the title alone
	if _, err := store.Append(ctx, "", model.NewChatMessage(model.RoleUser, "something else", nil)); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if got := store.Current().Title; got != "explain the config loader" {
		t.Errorf("Title changed to %q", got)
	}
}

func TestStoreAppendTargetsSession(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(&memPersistence{}, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	first := store.CurrentID()

	if _, err := store.Create(ctx); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if _, err := store.Append(ctx, first, model.NewChatMessage(model.RoleUser, "late", nil)); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	if n := len(store.History()); n != 0 {
		t.Errorf("current session has %d messages, want 0", n)
	}
	session, _ := store.Session(first)
	if len(session.Messages) != 1 {
		t.Errorf("first session has %d messages, want 1", len(session.Messages))
	}

	_, err := store.Append(ctx, "missing", model.NewChatMessage(model.RoleUser, "x", nil))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Append() to unknown session error = %v", err)
	}
}

func TestStoreUpdateReplacesMetadataOnly(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(&memPersistence{}, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	msg := model.NewChatMessage(model.RoleUser, "hello", &model.Metadata{Files: []string{"a.go"}})
	if _, err := store.Append(ctx, "", msg); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	changed := msg
	changed.Content = "rewritten"
	changed.Metadata = &model.Metadata{Files: []string{"a.go"}, IntelligentContextFiles: []string{"b.go"}, ContextCount: 1}
	updated, err := store.Update(ctx, "", changed)
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	if updated.Content != "hello" {
		t.Errorf("Content = %q, want unchanged", updated.Content)
	}
	if updated.Metadata.ContextCount != 1 || updated.Metadata.IntelligentContextFiles[0] != "b.go" {
		t.Errorf("Metadata = %+v", updated.Metadata)
	}

	changed.ID = "nope"
	if _, err := store.Update(ctx, "", changed); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("Update() unknown message error = %v", err)
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &memPersistence{sessions: []*model.ChatSession{
		{ID: "a", LastUpdated: base},
		{ID: "b", LastUpdated: base.Add(time.Hour)},
		{ID: "c", LastUpdated: base.Add(2 * time.Hour)},
	}}
	store := NewSessionStore(p, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if err := store.Delete(ctx, "c"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if got := store.CurrentID(); got != "b" {
		t.Errorf("CurrentID() = %q, want b", got)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if got := store.CurrentID(); got != "b" {
		t.Errorf("deleting another session changed current to %q", got)
	}

	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if got := store.CurrentID(); got == "" || got == "b" {
		t.Errorf("expected a fresh session, got %q", got)
	}
	if n := len(store.List()); n != 1 {
		t.Errorf("List() has %d sessions, want 1", n)
	}

	if err := store.Delete(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Delete() unknown error = %v", err)
	}
}

func TestStoreSaveFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	p := &memPersistence{}
	store := NewSessionStore(p, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	p.saveErr = errBoom
	_, err := store.Append(ctx, "", model.NewChatMessage(model.RoleUser, "kept", nil))

	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "save" {
		t.Fatalf("Append() error = %v, want save PersistenceError", err)
	}
	if !errors.Is(err, errBoom) {
		t.Error("PersistenceError should wrap the backend error")
	}
	if n := len(store.History()); n != 1 {
		t.Errorf("History() has %d messages, want 1", n)
	}
}

func TestStoreSummaries(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &memPersistence{sessions: []*model.ChatSession{
		{ID: "a", Title: "A", LastUpdated: base, Messages: []model.ChatMessage{{ID: "1"}}},
		{ID: "b", Title: "B", LastUpdated: base.Add(time.Hour)},
	}, currentID: "a"}
	store := NewSessionStore(p, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	summaries := store.Summaries()
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	if summaries[0].ID != "b" || summaries[1].ID != "a" {
		t.Errorf("order = %s, %s; want b, a", summaries[0].ID, summaries[1].ID)
	}
	if !summaries[1].Current || summaries[0].Current {
		t.Error("only session a should be current")
	}
	if summaries[1].MessageCount != 1 {
		t.Errorf("MessageCount = %d, want 1", summaries[1].MessageCount)
	}
}

func TestStoreRenameAndClear(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(&memPersistence{}, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	id := store.CurrentID()

	if _, err := store.Append(ctx, "", model.NewChatMessage(model.RoleUser, "hi", nil)); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := store.Rename(ctx, id, "Renamed"); err != nil {
		t.Fatalf("Rename() error: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	current := store.Current()
	if current.Title != "Renamed" {
		t.Errorf("Title = %q, want Renamed", current.Title)
	}
	if len(current.Messages) != 0 {
		t.Errorf("got %d messages after Clear", len(current.Messages))
	}
}

func TestStoreConcurrentSavesOnFileStore(t *testing.T) {
	ctx := context.Background()
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	store := NewSessionStore(files, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	id := store.CurrentID()

	const writers = 40
	errs := make(chan error, 2*writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := store.Append(ctx, id, model.NewChatMessage(model.RoleAssistant, fmt.Sprintf("reply %d", i), nil))
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			errs <- store.Rename(ctx, id, fmt.Sprintf("title %d", i))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent save failed: %v", err)
		}
	}

	onDisk, err := files.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions() error: %v", err)
	}
	if len(onDisk) != 1 {
		t.Fatalf("got %d sessions on disk, want 1", len(onDisk))
	}
	inMemory := store.Current()
	if len(onDisk[0].Messages) != writers || len(inMemory.Messages) != writers {
		t.Errorf("messages on disk %d, in memory %d, want %d", len(onDisk[0].Messages), len(inMemory.Messages), writers)
	}
	if onDisk[0].Title != inMemory.Title {
		t.Errorf("title on disk %q, in memory %q", onDisk[0].Title, inMemory.Title)
	}
}

func TestStoreSetToolsEnabled(t *testing.T) {
	ctx := context.Background()
	p := &memPersistence{}
	store := NewSessionStore(p, config.NewToggles(&config.Config{ToolsEnabled: true}))
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if err := store.SetToolsEnabled(ctx, false); err != nil {
		t.Fatalf("SetToolsEnabled() error: %v", err)
	}
	if store.Current().ToolsEnabled {
		t.Error("current session still has tools enabled")
	}
	saved := p.saved()
	if len(saved) != 1 || saved[0].ToolsEnabled {
		t.Errorf("saved sessions = %+v, want tools disabled", saved)
	}
}
