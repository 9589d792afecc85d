package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appDirName = "toolchat"

// GetConfigDir is where settings.toml lives: ~/.config/toolchat on every
// platform, with the home directory resolved by GetHomeDir.
func GetConfigDir() string {
	return filepath.Join(GetHomeDir(), ".config", appDirName)
}

// GetSettingsFilePath returns the path to settings.toml
func GetSettingsFilePath() string {
	return filepath.Join(GetConfigDir(), "settings.toml")
}

// GetHomeDir returns the user's home directory. On Windows it falls back
// from USERPROFILE to HOMEDRIVE+HOMEPATH, then to the drive root.
func GetHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	if runtime.GOOS == "windows" {
		if home := os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH"); home != "" {
			return home
		}
		return "C:\\"
	}
	return "/"
}

// ExpandPath resolves a leading ~ and $VARS. Empty stays empty.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return ""
	case path == "~":
		path = GetHomeDir()
	case strings.HasPrefix(path, "~/"), strings.HasPrefix(path, `~\`):
		path = filepath.Join(GetHomeDir(), path[2:])
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// EnsureDir creates path with user-only access.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDataDirPermissions creates the data directory or tightens an
// existing one to 0700. Sessions and credentials live there.
func EnsureDataDirPermissions(dataDir string) error {
	info, err := os.Stat(dataDir)
	switch {
	case os.IsNotExist(err):
		return EnsureDir(dataDir)
	case err != nil:
		return err
	case info.Mode().Perm() != 0700:
		return os.Chmod(dataDir, 0700)
	}
	return nil
}
