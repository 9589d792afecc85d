package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"toolchat/model"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestWorkspace(t *testing.T) (*Workspace, string) {
	t.Helper()
	root := t.TempDir()

	writeFile(t, root, "main.go", "package main\n\n// starts the orchestrator\nfunc main() {}\n")
	writeFile(t, root, "docs/orchestrator.md", "# Orchestrator\n\nThe orchestrator runs one turn at a time.\n")
	writeFile(t, root, "node_modules/lib/orchestrator.js", "orchestrator orchestrator orchestrator")
	writeFile(t, root, "build/orchestrator.go", "package build // orchestrator")
	writeFile(t, root, "notes.txt", "orchestrator notes")
	writeFile(t, root, "big.go", "// orchestrator\n"+strings.Repeat("x", 100001))
	writeFile(t, root, "util/strings.go", "package util\n")

	return New([]string{root}), root
}

func TestResolve(t *testing.T) {
	ws, root := newTestWorkspace(t)

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{name: "relative", ref: "main.go", want: "main.go"},
		{name: "dot relative", ref: "./docs/orchestrator.md", want: "docs/orchestrator.md"},
		{name: "absolute inside root", ref: filepath.Join(root, "util", "strings.go"), want: "util/strings.go"},
		{name: "missing", ref: "nope.go", wantErr: true},
		{name: "directory", ref: "docs", wantErr: true},
		{name: "empty", ref: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ws.Resolve(tt.ref)
			if tt.wantErr {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("expected ErrNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	ws, _ := newTestWorkspace(t)

	content, err := ws.ReadFile("util/strings.go")
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if content != "package util\n" {
		t.Errorf("unexpected content %q", content)
	}

	if _, err := ws.ReadFile("missing.go"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := map[string]string{
		"a.ts":        "typescript",
		"a.js":        "javascript",
		"a.tsx":       "tsx",
		"a.py":        "python",
		"a.rs":        "rust",
		"a.rb":        "ruby",
		"run.sh":      "bash",
		"README.md":   "markdown",
		"ci.yml":      "yaml",
		"ci.YAML":     "yaml",
		"main.go":     "go",
		"Makefile":    "text",
		"archive.tar": "text",
	}

	for path, want := range tests {
		if got := DetectLanguage(path); got != want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestRetrieve(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	r := NewRetriever(ws)

	files, err := r.Retrieve(context.Background(), "How does the orchestrator work?", model.DefaultRetrievalOptions())
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}

	if len(files) != 2 {
		var paths []string
		for _, f := range files {
			paths = append(paths, f.Path)
		}
		t.Fatalf("expected 2 files, got %v", paths)
	}
	if files[0].Path != "docs/orchestrator.md" {
		t.Errorf("expected docs/orchestrator.md first, got %s", files[0].Path)
	}
	if files[1].Path != "main.go" {
		t.Errorf("expected main.go second, got %s", files[1].Path)
	}

	for _, f := range files {
		if !f.IsIntelligentContext {
			t.Errorf("%s: expected intelligent context flag", f.Path)
		}
		if f.RelevanceScore == nil || *f.RelevanceScore <= 0 || *f.RelevanceScore > 1 {
			t.Errorf("%s: relevance out of range: %v", f.Path, f.RelevanceScore)
		}
		if f.Content == "" {
			t.Errorf("%s: expected content", f.Path)
		}
	}
	if *files[0].RelevanceScore != 1 {
		t.Errorf("expected best file normalized to 1, got %v", *files[0].RelevanceScore)
	}
	if files[0].Language != "markdown" {
		t.Errorf("expected markdown, got %s", files[0].Language)
	}
}

func TestRetrieveRespectsMaxFiles(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	opts := model.DefaultRetrievalOptions()
	opts.MaxFiles = 1

	files, err := NewRetriever(ws).Retrieve(context.Background(), "orchestrator", opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("expected 1 file, got %d", len(files))
	}
}

func TestRetrieveNoTerms(t *testing.T) {
	ws, _ := newTestWorkspace(t)

	files, err := NewRetriever(ws).Retrieve(context.Background(), "how do I", model.DefaultRetrievalOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files for a query without terms, got %d", len(files))
	}
}

func TestRetrieveCancelled(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewRetriever(ws).Retrieve(ctx, "orchestrator", model.DefaultRetrievalOptions()); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestListFiles(t *testing.T) {
	ws, _ := newTestWorkspace(t)

	files, err := NewRetriever(ws).ListFiles(context.Background(), "strings", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 || files[0] != "util/strings.go" {
		t.Errorf("expected util/strings.go first, got %v", files)
	}
	for _, f := range files {
		if strings.HasPrefix(f, "node_modules/") || strings.HasPrefix(f, "build/") {
			t.Errorf("excluded path listed: %s", f)
		}
	}
}

func TestExcluded(t *testing.T) {
	patterns := model.DefaultRetrievalOptions().ExcludePatterns

	tests := []struct {
		rel  string
		want bool
	}{
		{"node_modules/", true},
		{"a/node_modules/b.js", true},
		{"dist/app.js", true},
		{"src/build/x.go", true},
		{"src/builder.go", false},
		{"build.go", false},
		{"main.go", false},
	}

	for _, tt := range tests {
		if got := excluded(tt.rel, patterns); got != tt.want {
			t.Errorf("excluded(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}
