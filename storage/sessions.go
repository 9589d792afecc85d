package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"toolchat/config"
	"toolchat/model"
)

// FileStore keeps one JSON file per session under <dataDir>/sessions.
type FileStore struct {
	sessionsDir string
}

// NewFileStore creates the sessions directory if needed.
func NewFileStore(dataDir string) (*FileStore, error) {
	sessionsDir := filepath.Join(dataDir, "sessions")

	// 0700: session files hold conversation history
	if err := os.MkdirAll(sessionsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &FileStore{sessionsDir: sessionsDir}, nil
}

func (s *FileStore) sessionPath(id string) string {
	return filepath.Join(s.sessionsDir, fmt.Sprintf("%s.json", id))
}

// LoadSessions reads every session file, skipping corrupt ones, newest
// first.
func (s *FileStore) LoadSessions(ctx context.Context) ([]*model.ChatSession, error) {
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessions []*model.ChatSession
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.sessionsDir, entry.Name()))
		if err != nil {
			continue
		}

		var session model.ChatSession
		if err := json.Unmarshal(data, &session); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Storage] Skipping corrupt session file %s: %v", entry.Name(), err)
			}
			continue
		}
		if session.ID == "" {
			continue
		}
		sessions = append(sessions, &session)
	}

	SortByLastUpdated(sessions)
	return sessions, nil
}

// SaveSessions overwrites the stored collection with sessions: every session
// is written and files of sessions no longer present are removed.
func (s *FileStore) SaveSessions(ctx context.Context, sessions []*model.ChatSession) error {
	keep := make(map[string]bool, len(sessions))
	for _, session := range sessions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.writeSession(session); err != nil {
			return err
		}
		keep[session.ID+".json"] = true
	}

	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return fmt.Errorf("failed to read sessions directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || keep[name] {
			continue
		}
		if err := os.Remove(filepath.Join(s.sessionsDir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete session file: %w", err)
		}
	}

	return nil
}

// writeSession writes through a temp file so a crash never leaves a
// half-written session behind.
func (s *FileStore) writeSession(session *model.ChatSession) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	path := s.sessionPath(session.ID)
	tmp, err := os.CreateTemp(s.sessionsDir, session.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return nil
}

func (s *FileStore) currentSessionPath() string {
	return filepath.Join(filepath.Dir(s.sessionsDir), "current_session.id")
}

// SaveCurrentSessionID saves the ID of the current session
func (s *FileStore) SaveCurrentSessionID(id string) error {
	return os.WriteFile(s.currentSessionPath(), []byte(id), 0600)
}

// LoadCurrentSessionID loads the ID of the last active session. A missing
// file yields an empty id.
func (s *FileStore) LoadCurrentSessionID() (string, error) {
	data, err := os.ReadFile(s.currentSessionPath())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileStore) Close() error {
	return nil
}

// SortByLastUpdated orders sessions newest first.
func SortByLastUpdated(sessions []*model.ChatSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastUpdated.After(sessions[j].LastUpdated)
	})
}

// SanitizeFilename removes or replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-", "\"", "-",
		"<", "-", ">", "-", "|", "-", " ", "-", "\n", "-", "\r", "-",
	)
	name = strings.Trim(replacer.Replace(name), "-.")

	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		name = "session"
	}

	return name
}

// GenerateExportPath generates a default export path for a session
func GenerateExportPath(sessionTitle string) string {
	downloadsDir := filepath.Join(config.GetHomeDir(), "Downloads")
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("toolchat-session-%s-%s.json", SanitizeFilename(sessionTitle), timestamp)
	return filepath.Join(downloadsDir, filename)
}

// ExportSession writes a session as indented JSON to exportPath.
func ExportSession(session *model.ChatSession, exportPath string) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// 0600 - session exports contain conversation history
	if err := os.WriteFile(exportPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// GenerateSessionName generates a session title from the first user message
func GenerateSessionName(firstMessage string) string {
	name := strings.Join(strings.Fields(firstMessage), " ")
	if name == "" {
		return fmt.Sprintf("Session %s", time.Now().Format("Jan 2, 3:04 PM"))
	}
	return runewidth.Truncate(name, 33, "...")
}
