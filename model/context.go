package model

// ContextFile is a file whose content grounds the model's answer.
// RelevanceScore is nil for explicitly referenced files.
type ContextFile struct {
	Path                 string   `json:"path"`
	Content              string   `json:"content"`
	Language             string   `json:"language"`
	IsIntelligentContext bool     `json:"isIntelligentContext"`
	RelevanceScore       *float64 `json:"relevanceScore,omitempty"`
}

// RetrievalOptions bounds automatic context selection.
type RetrievalOptions struct {
	MaxFiles        int
	MaxFileSize     int64
	Languages       []string
	ExcludePatterns []string
}

// DefaultRetrievalOptions is the fixed policy used for every turn.
func DefaultRetrievalOptions() RetrievalOptions {
	return RetrievalOptions{
		MaxFiles:    10,
		MaxFileSize: 100000,
		Languages: []string{
			"typescript", "javascript", "json", "markdown",
			"python", "java", "cpp", "go",
		},
		ExcludePatterns: []string{
			"**/node_modules/**",
			"**/dist/**",
			"**/build/**",
			"**/vendor/**",
			"**/.git/**",
		},
	}
}

// SplitContextPaths returns the explicit and intelligent paths, in order.
func SplitContextPaths(files []ContextFile) (explicit, intelligent []string) {
	for _, f := range files {
		if f.IsIntelligentContext {
			intelligent = append(intelligent, f.Path)
		} else {
			explicit = append(explicit, f.Path)
		}
	}
	return explicit, intelligent
}
