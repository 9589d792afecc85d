package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// SecurityMethod defines the credential storage method
type SecurityMethod string

const (
	SecurityPlainText SecurityMethod = "plaintext"
	SecuritySSHKey    SecurityMethod = "ssh_key"
)

// CredentialStore keeps provider API keys and MCP server secrets, either in
// credentials.toml or AES-GCM encrypted in credentials.enc.
type CredentialStore struct {
	mu          sync.RWMutex
	method      SecurityMethod
	credentials map[string]string
	sshKeyPath  string
	passphrase  string
	encManager  *EncryptionManager
}

func NewCredentialStore(method SecurityMethod, sshKeyPath string) *CredentialStore {
	return &CredentialStore{
		method:      method,
		credentials: make(map[string]string),
		sshKeyPath:  sshKeyPath,
	}
}

// SetPassphrase sets the passphrase for decrypting the SSH key
func (c *CredentialStore) SetPassphrase(passphrase string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passphrase = passphrase
	c.encManager = nil
}

func (c *CredentialStore) Load(dataDir string) error {
	var creds map[string]string
	var err error

	switch c.method {
	case SecurityPlainText:
		creds, err = loadPlainText(dataDir)
	case SecuritySSHKey:
		creds, err = c.loadSSHEncrypted(dataDir)
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.credentials = creds
	c.mu.Unlock()
	return nil
}

func (c *CredentialStore) Save(dataDir string) error {
	switch c.method {
	case SecurityPlainText:
		return savePlainText(dataDir, c.snapshot())
	case SecuritySSHKey:
		return c.saveSSHEncrypted(dataDir)
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
}

func (c *CredentialStore) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credentials[key]
}

func (c *CredentialStore) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credentials[key] = value
}

func (c *CredentialStore) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.credentials, key)
}

// ServerSecrets returns the secrets stored for an MCP server as env
// entries. Keys are stored as server_<name>_<ENV_NAME>.
func (c *CredentialStore) ServerSecrets(serverName string) map[string]string {
	prefix := fmt.Sprintf("server_%s_", serverName)
	secrets := make(map[string]string)

	c.mu.RLock()
	defer c.mu.RUnlock()
	for key, value := range c.credentials {
		if strings.HasPrefix(key, prefix) {
			secrets[strings.TrimPrefix(key, prefix)] = value
		}
	}
	return secrets
}

// EncryptionManager returns the initialized encryption manager, or nil for
// plaintext storage.
func (c *CredentialStore) EncryptionManager() (*EncryptionManager, error) {
	if c.method != SecuritySSHKey {
		return nil, nil
	}
	return c.ensureEncryption()
}

func (c *CredentialStore) Method() SecurityMethod {
	return c.method
}

func (c *CredentialStore) snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.credentials))
	for k, v := range c.credentials {
		out[k] = v
	}
	return out
}

func (c *CredentialStore) ensureEncryption() (*EncryptionManager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.encManager != nil {
		return c.encManager, nil
	}
	mgr := NewEncryptionManager(EncryptionSSHKey, c.sshKeyPath)
	mgr.SetPassphrase(c.passphrase)
	if err := mgr.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	c.encManager = mgr
	return mgr, nil
}

func credentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.toml")
}

func encryptedCredentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.enc")
}

type credentialsFile struct {
	Credentials map[string]string `toml:"credentials"`
}

func loadPlainText(dataDir string) (map[string]string, error) {
	path := credentialsPath(dataDir)
	if !FileExists(path) {
		return make(map[string]string), nil
	}

	var cf credentialsFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if cf.Credentials == nil {
		cf.Credentials = make(map[string]string)
	}

	return cf.Credentials, nil
}

func savePlainText(dataDir string, creds map[string]string) error {
	f, err := os.OpenFile(credentialsPath(dataDir), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create credentials file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(credentialsFile{Credentials: creds}); err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	return nil
}

func (c *CredentialStore) loadSSHEncrypted(dataDir string) (map[string]string, error) {
	path := encryptedCredentialsPath(dataDir)
	if !FileExists(path) {
		return make(map[string]string), nil
	}

	mgr, err := c.ensureEncryption()
	if err != nil {
		return nil, err
	}

	encryptedData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted credentials: %w", err)
	}

	decryptedData, err := mgr.Decrypt(encryptedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var creds map[string]string
	if err := json.Unmarshal(decryptedData, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse decrypted credentials: %w", err)
	}

	return creds, nil
}

func (c *CredentialStore) saveSSHEncrypted(dataDir string) error {
	mgr, err := c.ensureEncryption()
	if err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(c.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}

	encryptedData, err := mgr.Encrypt(jsonData)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	if err := os.WriteFile(encryptedCredentialsPath(dataDir), encryptedData, 0600); err != nil {
		return fmt.Errorf("failed to write encrypted credentials: %w", err)
	}

	return nil
}
