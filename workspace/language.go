package workspace

import (
	"path/filepath"
	"strings"
)

var extensionLanguages = map[string]string{
	"ts":   "typescript",
	"js":   "javascript",
	"jsx":  "jsx",
	"tsx":  "tsx",
	"py":   "python",
	"java": "java",
	"cpp":  "cpp",
	"c":    "c",
	"go":   "go",
	"rs":   "rust",
	"php":  "php",
	"rb":   "ruby",
	"sh":   "bash",
	"json": "json",
	"xml":  "xml",
	"html": "html",
	"css":  "css",
	"sql":  "sql",
	"md":   "markdown",
	"yml":  "yaml",
	"yaml": "yaml",
}

// DetectLanguage maps a file extension to the fence tag used when the file
// is shown to the model. Unknown extensions are "text".
func DetectLanguage(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	return "text"
}
