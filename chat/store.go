package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"toolchat/config"
	"toolchat/model"
	"toolchat/storage"
)

// Persistence loads and stores the full session collection. SaveSessions
// is an idempotent overwrite.
type Persistence interface {
	LoadSessions(ctx context.Context) ([]*model.ChatSession, error)
	SaveSessions(ctx context.Context, sessions []*model.ChatSession) error
}

// currentRecorder is implemented by backends that remember the selected
// session across restarts.
type currentRecorder interface {
	SaveCurrentSessionID(id string) error
	LoadCurrentSessionID() (string, error)
}

// SessionStore owns the sessions and which one is current. Every change to
// the current session is followed by a save; a failed save is returned as a
// *PersistenceError and the in-memory state is kept.
type SessionStore struct {
	mu          sync.RWMutex
	persistence Persistence
	toggles     *config.Toggles
	sessions    map[string]*model.ChatSession
	current     *model.ChatSession

	// saveMu orders whole saves so an older snapshot never lands after a
	// newer one.
	saveMu sync.Mutex
}

func NewSessionStore(persistence Persistence, toggles *config.Toggles) *SessionStore {
	return &SessionStore{
		persistence: persistence,
		toggles:     toggles,
		sessions:    make(map[string]*model.ChatSession),
	}
}

// Load reads every session and selects the remembered one, or the most
// recently updated. With nothing stored a fresh session is created. A load
// failure still leaves a usable fresh session.
func (s *SessionStore) Load(ctx context.Context) error {
	var loadErr error
	var loaded []*model.ChatSession
	if s.persistence != nil {
		var err error
		loaded, err = s.persistence.LoadSessions(ctx)
		if err != nil {
			loadErr = &PersistenceError{Op: "load", Err: err}
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Chat] Load sessions failed: %v", err)
			}
		}
	}

	var rememberedID string
	if rec, ok := s.persistence.(currentRecorder); ok {
		rememberedID, _ = rec.LoadCurrentSessionID()
	}

	s.mu.Lock()
	s.sessions = make(map[string]*model.ChatSession, len(loaded))
	for _, session := range loaded {
		if session == nil || session.ID == "" {
			continue
		}
		if session.Messages == nil {
			session.Messages = []model.ChatMessage{}
		}
		s.sessions[session.ID] = session
	}

	s.current = s.sessions[rememberedID]
	if s.current == nil {
		s.current = s.mostRecentLocked()
	}
	empty := s.current == nil
	s.mu.Unlock()

	if empty {
		if _, err := s.Create(ctx); err != nil && loadErr == nil {
			return err
		}
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] Loaded %d sessions, current %s", len(loaded), s.CurrentID())
	}
	return loadErr
}

// Save writes every session.
func (s *SessionStore) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	snapshot := make([]*model.ChatSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		snapshot = append(snapshot, session.Clone())
	}
	currentID := ""
	if s.current != nil {
		currentID = s.current.ID
	}
	s.mu.RUnlock()

	if s.persistence == nil {
		return nil
	}

	storage.SortByLastUpdated(snapshot)
	if err := s.persistence.SaveSessions(ctx, snapshot); err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] Save sessions failed: %v", err)
		}
		return &PersistenceError{Op: "save", Err: err}
	}

	if rec, ok := s.persistence.(currentRecorder); ok && currentID != "" {
		if err := rec.SaveCurrentSessionID(currentID); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] Failed to remember current session: %v", err)
		}
	}
	return nil
}

// Create starts a fresh session and makes it current. ToolsEnabled follows
// the global toggle.
func (s *SessionStore) Create(ctx context.Context) (*model.ChatSession, error) {
	toolsEnabled := true
	if s.toggles != nil {
		toolsEnabled = s.toggles.ToolsEnabled()
	}
	session := model.NewChatSession(toolsEnabled)

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.current = session
	clone := session.Clone()
	s.mu.Unlock()

	return clone, s.Save(ctx)
}

// Select makes id the current session.
func (s *SessionStore) Select(ctx context.Context, id string) (*model.ChatSession, error) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	s.current = session
	clone := session.Clone()
	s.mu.Unlock()

	return clone, s.Save(ctx)
}

// Delete removes a session. Deleting the current session selects the most
// recently updated remaining one, or a fresh session when none remain.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	delete(s.sessions, id)

	wasCurrent := s.current != nil && s.current.ID == id
	if wasCurrent {
		s.current = s.mostRecentLocked()
	}
	needFresh := s.current == nil
	s.mu.Unlock()

	if needFresh {
		_, err := s.Create(ctx)
		return err
	}
	return s.Save(ctx)
}

// Current returns a copy of the current session.
func (s *SessionStore) Current() *model.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

func (s *SessionStore) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// Session returns a copy of session id.
func (s *SessionStore) Session(id string) (*model.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session.Clone(), ok
}

// History returns a copy of the current session's messages.
func (s *SessionStore) History() []model.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	return append([]model.ChatMessage(nil), s.current.Messages...)
}

// List returns copies of every session, most recently updated first.
func (s *SessionStore) List() []*model.ChatSession {
	s.mu.RLock()
	list := make([]*model.ChatSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		list = append(list, session.Clone())
	}
	s.mu.RUnlock()

	storage.SortByLastUpdated(list)
	return list
}

// Summaries returns the session list as shown to the user.
func (s *SessionStore) Summaries() []SessionSummary {
	currentID := s.CurrentID()
	list := s.List()
	summaries := make([]SessionSummary, len(list))
	for i, session := range list {
		summaries[i] = SessionSummary{
			ID:           session.ID,
			Title:        session.Title,
			MessageCount: len(session.Messages),
			Current:      session.ID == currentID,
			LastUpdated:  session.LastUpdated,
		}
	}
	return summaries
}

// Append adds msg to session sessionID, or the current session when
// sessionID is empty. Timestamps never go backwards within a session. The
// first user message titles an untitled session.
func (s *SessionStore) Append(ctx context.Context, sessionID string, msg model.ChatMessage) (model.ChatMessage, error) {
	s.mu.Lock()
	session := s.lookupLocked(sessionID)
	if session == nil {
		s.mu.Unlock()
		return msg, fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}

	if n := len(session.Messages); n > 0 {
		if last := session.Messages[n-1].Timestamp; msg.Timestamp.Before(last) {
			msg.Timestamp = last
		}
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	session.Messages = append(session.Messages, msg)
	session.LastUpdated = msg.Timestamp
	if msg.Role == model.RoleUser && session.Title == model.DefaultSessionTitle {
		session.Title = storage.GenerateSessionName(msg.Content)
	}
	s.mu.Unlock()

	return msg, s.Save(ctx)
}

// Update replaces the metadata of the message with msg.ID in session
// sessionID (empty for current). ID, role and content never change.
func (s *SessionStore) Update(ctx context.Context, sessionID string, msg model.ChatMessage) (model.ChatMessage, error) {
	s.mu.Lock()
	session := s.lookupLocked(sessionID)
	if session == nil {
		s.mu.Unlock()
		return msg, fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}

	idx := -1
	for i := range session.Messages {
		if session.Messages[i].ID == msg.ID {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return msg, fmt.Errorf("%s: %w", msg.ID, ErrMessageNotFound)
	}

	session.Messages[idx].Metadata = msg.Metadata
	updated := session.Messages[idx]
	s.mu.Unlock()

	return updated, s.Save(ctx)
}

// Rename sets a session's title.
func (s *SessionStore) Rename(ctx context.Context, id, title string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	session.Title = title
	s.mu.Unlock()

	return s.Save(ctx)
}

// Clear drops every message of the current session.
func (s *SessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	s.current.Messages = []model.ChatMessage{}
	s.current.LastUpdated = time.Now()
	s.mu.Unlock()

	return s.Save(ctx)
}

// SetToolsEnabled records the tools flag on the current session.
func (s *SessionStore) SetToolsEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.current.ToolsEnabled == enabled {
		s.mu.Unlock()
		return nil
	}
	s.current.ToolsEnabled = enabled
	s.mu.Unlock()

	return s.Save(ctx)
}

// SetProvider records the provider and model a session talks to. It is
// saved with the next mutation.
func (s *SessionStore) SetProvider(sessionID, providerID, modelName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.lookupLocked(sessionID)
	if session == nil {
		return
	}
	session.Provider = providerID
	session.Model = modelName
}

func (s *SessionStore) lookupLocked(id string) *model.ChatSession {
	if id == "" {
		return s.current
	}
	return s.sessions[id]
}

func (s *SessionStore) mostRecentLocked() *model.ChatSession {
	var best *model.ChatSession
	for _, session := range s.sessions {
		if best == nil || session.LastUpdated.After(best.LastUpdated) ||
			(session.LastUpdated.Equal(best.LastUpdated) && session.ID < best.ID) {
			best = session
		}
	}
	return best
}
