package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("file not found in workspace")

// Workspace resolves file references against one or more root directories.
// Paths handed out are relative to the root that contains them, with
// forward slashes; files outside every root keep their absolute path.
type Workspace struct {
	roots []string
}

func New(roots []string) *Workspace {
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if root == "" {
			continue
		}
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		cleaned = append(cleaned, filepath.Clean(root))
	}
	return &Workspace{roots: cleaned}
}

func (w *Workspace) Roots() []string {
	return append([]string(nil), w.roots...)
}

// Root returns the first root, used for ${workspaceFolder}.
func (w *Workspace) Root() string {
	if len(w.roots) == 0 {
		return ""
	}
	return w.roots[0]
}

// Resolve turns a user reference ("main.go", "./cmd/x.go", "/abs/path")
// into the canonical path of an existing file.
func (w *Workspace) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty file reference: %w", ErrNotFound)
	}

	if filepath.IsAbs(ref) {
		if !isFile(ref) {
			return "", fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return w.canonical(ref), nil
	}

	for _, root := range w.roots {
		candidate := filepath.Join(root, filepath.FromSlash(ref))
		if isFile(candidate) {
			return w.canonical(candidate), nil
		}
	}

	return "", fmt.Errorf("%s: %w", ref, ErrNotFound)
}

// ReadFile returns the content of a canonical path.
func (w *Workspace) ReadFile(path string) (string, error) {
	abs, err := w.absolute(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func (w *Workspace) absolute(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	for _, root := range w.roots {
		candidate := filepath.Join(root, filepath.FromSlash(path))
		if isFile(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: %w", path, ErrNotFound)
}

func (w *Workspace) canonical(abs string) string {
	abs = filepath.Clean(abs)
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return filepath.ToSlash(rel)
	}
	return abs
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Language returns the fence tag for path.
func (w *Workspace) Language(path string) string {
	return DetectLanguage(path)
}
