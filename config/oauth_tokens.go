package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	transport "github.com/mark3labs/mcp-go/client/transport"
)

// FileTokenStore persists the OAuth token of one remote MCP server, encrypted
// when the credential store uses an SSH key.
type FileTokenStore struct {
	serverName string
	dataDir    string
	encMgr     *EncryptionManager
	mu         sync.RWMutex
}

// NewFileTokenStore creates a persistent token store. A nil encMgr stores
// the token as plain JSON.
func NewFileTokenStore(serverName, dataDir string, encMgr *EncryptionManager) *FileTokenStore {
	return &FileTokenStore{
		serverName: serverName,
		dataDir:    dataDir,
		encMgr:     encMgr,
	}
}

func (s *FileTokenStore) GetToken(ctx context.Context) (*transport.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.tokenPath())
	if os.IsNotExist(err) {
		return nil, transport.ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	if s.encMgr != nil {
		data, err = s.encMgr.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt token: %w", err)
		}
	}

	var token transport.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

func (s *FileTokenStore) SaveToken(ctx context.Context, token *transport.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if s.encMgr != nil {
		data, err = s.encMgr.Encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt token: %w", err)
		}
	}

	path := s.tokenPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

func (s *FileTokenStore) tokenPath() string {
	ext := "json"
	if s.encMgr != nil {
		ext = "enc"
	}
	return filepath.Join(s.dataDir, "oauth", fmt.Sprintf("%s.%s", s.serverName, ext))
}
