package chat

import (
	"context"
	"path/filepath"

	"toolchat/config"
	"toolchat/model"
)

// FileAccessor resolves user file references and reads them.
type FileAccessor interface {
	Resolve(ref string) (string, error)
	ReadFile(path string) (string, error)
	Language(path string) string
}

// Retriever suggests files relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts model.RetrievalOptions) ([]model.ContextFile, error)
}

// ContextSelector merges explicit file references with retrieval
// suggestions into one grounding set.
type ContextSelector struct {
	files     FileAccessor
	retriever Retriever
	options   model.RetrievalOptions
}

// NewContextSelector uses the fixed retrieval policy. Either collaborator
// may be nil.
func NewContextSelector(files FileAccessor, retriever Retriever) *ContextSelector {
	return &ContextSelector{
		files:     files,
		retriever: retriever,
		options:   model.DefaultRetrievalOptions(),
	}
}

// Select returns explicit files first, then retrieved files in ranking
// order. A path appears at most once and an explicit reference wins. It
// never fails: unreadable references are skipped and a retrieval failure
// leaves explicit files only.
func (s *ContextSelector) Select(ctx context.Context, userText string, explicitPaths []string) []model.ContextFile {
	var files []model.ContextFile
	seen := make(map[string]bool)

	for _, ref := range explicitPaths {
		if s.files == nil {
			break
		}
		if seen[pathKey(ref)] {
			continue
		}

		path, err := s.files.Resolve(ref)
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Chat] Skipping file reference %q: %v", ref, err)
			}
			continue
		}
		if seen[pathKey(path)] {
			seen[pathKey(ref)] = true
			continue
		}

		content, err := s.files.ReadFile(path)
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Chat] Skipping unreadable file %q: %v", path, err)
			}
			continue
		}

		seen[pathKey(ref)] = true
		seen[pathKey(path)] = true
		files = append(files, model.ContextFile{
			Path:     path,
			Content:  content,
			Language: s.files.Language(path),
		})
	}

	if s.retriever == nil {
		return files
	}

	retrieved, err := s.retriever.Retrieve(ctx, userText, s.options)
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] %v", &RetrievalError{Query: userText, Err: err})
		}
		return files
	}

	for _, f := range retrieved {
		if seen[pathKey(f.Path)] {
			continue
		}
		seen[pathKey(f.Path)] = true
		f.IsIntelligentContext = true
		files = append(files, f)
	}

	return files
}

func pathKey(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}
