package storage

import (
	"context"
	"fmt"

	"toolchat/config"
	"toolchat/model"
)

// Backend is a session persistence backend. SaveSessions is a full,
// idempotent overwrite of the stored collection.
type Backend interface {
	LoadSessions(ctx context.Context) ([]*model.ChatSession, error)
	SaveSessions(ctx context.Context, sessions []*model.ChatSession) error
	SaveCurrentSessionID(id string) error
	LoadCurrentSessionID() (string, error)
	Close() error
}

var (
	_ Backend = (*FileStore)(nil)
	_ Backend = (*SQLiteStore)(nil)
)

// Open returns the backend named by the storage_backend setting.
func Open(backend, dataDir string) (Backend, error) {
	switch backend {
	case config.StorageJSON, "":
		return NewFileStore(dataDir)
	case config.StorageSQLite:
		return NewSQLiteStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}
