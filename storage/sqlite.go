package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"toolchat/config"
	"toolchat/model"
)

// SQLiteStore keeps sessions and messages in <dataDir>/sessions.db.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	dbPath := filepath.Join(dataDir, "sessions.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; SaveSessions runs inside a single transaction.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		tools_enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		last_updated DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, position);
	CREATE TABLE IF NOT EXISTS app_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if err := s.migrateSchema(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// migrateSchema adds columns introduced after the first release.
func (s *SQLiteStore) migrateSchema() error {
	for _, column := range []string{"provider", "model"} {
		exists, err := s.columnExists("sessions", column)
		if err != nil {
			return fmt.Errorf("failed to check for %s column: %w", column, err)
		}
		if exists {
			continue
		}
		if _, err := s.db.Exec(fmt.Sprintf(`ALTER TABLE sessions ADD COLUMN %s TEXT DEFAULT ''`, column)); err != nil {
			return fmt.Errorf("failed to add %s column: %w", column, err)
		}
	}
	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info
func (s *SQLiteStore) columnExists(tableName, columnName string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue any

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}

	return false, rows.Err()
}

func (s *SQLiteStore) LoadSessions(ctx context.Context) ([]*model.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, title, tools_enabled, provider, model, created_at, last_updated
	FROM sessions
	ORDER BY last_updated DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	var sessions []*model.ChatSession
	byID := make(map[string]*model.ChatSession)
	for rows.Next() {
		session := &model.ChatSession{Messages: []model.ChatMessage{}}
		var provider, modelName sql.NullString
		if err := rows.Scan(
			&session.ID,
			&session.Title,
			&session.ToolsEnabled,
			&provider,
			&modelName,
			&session.CreatedAt,
			&session.LastUpdated,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		session.Provider = provider.String
		session.Model = modelName.String
		sessions = append(sessions, session)
		byID[session.ID] = session
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	msgRows, err := s.db.QueryContext(ctx, `
	SELECT id, session_id, role, content, timestamp, metadata
	FROM messages
	ORDER BY session_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var msg model.ChatMessage
		var sessionID string
		var metadata sql.NullString
		if err := msgRows.Scan(&msg.ID, &sessionID, &msg.Role, &msg.Content, &msg.Timestamp, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			var meta model.Metadata
			if err := json.Unmarshal([]byte(metadata.String), &meta); err != nil {
				if config.DebugLog != nil {
					config.DebugLog.Printf("[Storage] Dropping unreadable metadata of message %s: %v", msg.ID, err)
				}
			} else {
				msg.Metadata = &meta
			}
		}
		if session, ok := byID[sessionID]; ok {
			session.Messages = append(session.Messages, msg)
		}
	}

	return sessions, msgRows.Err()
}

// SaveSessions replaces every stored session and message in one transaction.
func (s *SQLiteStore) SaveSessions(ctx context.Context, sessions []*model.ChatSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}

	sessionStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO sessions (id, title, tools_enabled, provider, model, created_at, last_updated)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare session insert: %w", err)
	}
	defer sessionStmt.Close()

	messageStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO messages (id, session_id, position, role, content, timestamp, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer messageStmt.Close()

	for _, session := range sessions {
		if _, err := sessionStmt.ExecContext(ctx,
			session.ID,
			session.Title,
			session.ToolsEnabled,
			session.Provider,
			session.Model,
			session.CreatedAt,
			session.LastUpdated,
		); err != nil {
			return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
		}

		for i, msg := range session.Messages {
			var metadata any
			if msg.Metadata != nil {
				data, err := json.Marshal(msg.Metadata)
				if err != nil {
					return fmt.Errorf("failed to marshal metadata: %w", err)
				}
				metadata = string(data)
			}
			if _, err := messageStmt.ExecContext(ctx,
				msg.ID,
				session.ID,
				i,
				msg.Role,
				msg.Content,
				msg.Timestamp,
				metadata,
			); err != nil {
				return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sessions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveCurrentSessionID(id string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO app_state (key, value) VALUES ('current_session', ?)`, id)
	return err
}

func (s *SQLiteStore) LoadCurrentSessionID() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT value FROM app_state WHERE key = 'current_session'`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
