package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// keyNames are the private keys FindSSHKeys looks for, in order of
// preference.
var keyNames = []string{
	"toolchat_ed25519",
	"id_ed25519",
	"id_rsa",
	"id_ecdsa",
}

// FindSSHKeys scans ~/.ssh for SSH private keys and returns their paths.
func FindSSHKeys() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	sshDir := filepath.Join(homeDir, ".ssh")
	if _, err := os.Stat(sshDir); os.IsNotExist(err) {
		return []string{}, nil
	}

	var foundKeys []string
	for _, name := range keyNames {
		keyPath := filepath.Join(sshDir, name)
		if isPrivateKey(keyPath) {
			foundKeys = append(foundKeys, keyPath)
		}
	}

	return foundKeys, nil
}

// isPrivateKey checks if a file is likely an SSH private key
func isPrivateKey(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	content := string(data)
	return strings.Contains(content, "BEGIN") &&
		strings.Contains(content, "PRIVATE KEY")
}

// IsSSHKeyEncrypted checks if an SSH private key needs a passphrase without
// attempting to decrypt it
func IsSSHKeyEncrypted(keyPath string) (bool, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return false, fmt.Errorf("failed to read SSH key: %w", err)
	}

	_, err = ssh.ParsePrivateKey(keyData)
	if err == nil {
		return false, nil
	}

	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return true, nil
	}

	return false, fmt.Errorf("invalid SSH key: %w", err)
}

// resolveSSHKeyPath picks the first discovered key when ssh_key storage is
// selected without an explicit key path.
func resolveSSHKeyPath(sec *SecurityConfig) {
	if sec.CredentialStorage != SecuritySSHKey || sec.SSHKeyPath != "" {
		return
	}

	keys, err := FindSSHKeys()
	if err != nil || len(keys) == 0 {
		if DebugLog != nil {
			DebugLog.Printf("[SSH] No SSH key found for credential encryption: %v", err)
		}
		return
	}

	sec.SSHKeyPath = keys[0]
	if DebugLog != nil {
		DebugLog.Printf("[SSH] Using %s for credential encryption", keys[0])
	}
}
