package workspace

import (
	"context"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"

	"toolchat/config"
	"toolchat/model"
)

// maxScannedFiles bounds one retrieval walk over a large tree.
const maxScannedFiles = 5000

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true,
	"that": true, "what": true, "how": true, "does": true, "are": true,
	"can": true, "you": true, "from": true, "into": true, "why": true,
	"where": true, "when": true, "file": true, "code": true, "please": true,
}

// Retriever picks files related to a query. A file scores for fuzzy
// matches of query terms against its path and for occurrences of the terms
// in its content; scores are normalized to [0,1] against the best file.
type Retriever struct {
	ws *Workspace
}

func NewRetriever(ws *Workspace) *Retriever {
	return &Retriever{ws: ws}
}

type candidate struct {
	abs      string
	rel      string
	language string
	content  string
	score    float64
}

func (r *Retriever) Retrieve(ctx context.Context, query string, opts model.RetrievalOptions) ([]model.ContextFile, error) {
	terms := queryTerms(query)
	if len(terms) == 0 || opts.MaxFiles <= 0 {
		return nil, nil
	}

	candidates, err := r.scan(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = strings.ToLower(c.rel)
	}
	for _, term := range terms {
		for _, match := range fuzzy.Find(term, paths) {
			// Contiguous matches score far higher than scattered ones
			if strings.Contains(match.Str, term) {
				candidates[match.Index].score += 5
			} else if match.Score > 0 {
				candidates[match.Index].score += 1
			}
		}
	}

	for i := range candidates {
		content := strings.ToLower(candidates[i].content)
		for _, term := range terms {
			if n := strings.Count(content, term); n > 0 {
				candidates[i].score += 1 + math.Log2(float64(n))
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rel < candidates[j].rel
	})

	best := candidates[0].score
	if best <= 0 {
		return nil, nil
	}

	var files []model.ContextFile
	for _, c := range candidates {
		if c.score <= 0 || len(files) >= opts.MaxFiles {
			break
		}
		relevance := c.score / best
		files = append(files, model.ContextFile{
			Path:                 c.rel,
			Content:              c.content,
			Language:             c.language,
			IsIntelligentContext: true,
			RelevanceScore:       &relevance,
		})
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Workspace] Retrieved %d of %d candidate files for terms %v", len(files), len(candidates), terms)
	}

	return files, nil
}

// ListFiles returns workspace paths matching query for the file picker,
// best fuzzy match first. An empty query lists files in walk order.
func (r *Retriever) ListFiles(ctx context.Context, query string, limit int) ([]string, error) {
	candidates, err := r.scan(ctx, model.RetrievalOptions{
		ExcludePatterns: model.DefaultRetrievalOptions().ExcludePatterns,
	})
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.rel
	}

	if query != "" {
		matches := fuzzy.Find(query, paths)
		paths = paths[:0:0]
		for _, m := range matches {
			paths = append(paths, m.Str)
		}
	}

	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}

// scan walks every root and collects files allowed by opts. Content is only
// loaded when a language allow-list is given, i.e. for retrieval.
func (r *Retriever) scan(ctx context.Context, opts model.RetrievalOptions) ([]candidate, error) {
	allowed := make(map[string]bool, len(opts.Languages))
	for _, lang := range opts.Languages {
		allowed[lang] = true
	}

	var out []candidate
	seen := make(map[string]bool)

	for _, root := range r.ws.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if path != root && (excluded(rel+"/", opts.ExcludePatterns) || strings.HasPrefix(d.Name(), ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || excluded(rel, opts.ExcludePatterns) {
				return nil
			}
			if len(out) >= maxScannedFiles {
				return filepath.SkipAll
			}

			canonical := r.ws.canonical(path)
			if seen[canonical] {
				return nil
			}

			c := candidate{abs: path, rel: canonical, language: DetectLanguage(path)}
			if len(allowed) > 0 {
				if !allowed[c.language] {
					return nil
				}
				info, infoErr := d.Info()
				if infoErr != nil || (opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize) {
					return nil
				}
				data, readErr := os.ReadFile(path)
				if readErr != nil || !isText(data) {
					return nil
				}
				c.content = string(data)
			}

			seen[canonical] = true
			out = append(out, c)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// excluded matches rel against glob patterns. "**/name/**" matches any
// path with a directory called name; other patterns use filepath.Match on
// the whole path and on the base name.
func excluded(rel string, patterns []string) bool {
	segments := strings.Split(strings.Trim(rel, "/"), "/")
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "**/") && strings.HasSuffix(pattern, "/**") {
			dir := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
			limit := len(segments)
			if !strings.HasSuffix(rel, "/") {
				limit-- // the last segment is the file itself
			}
			for _, seg := range segments[:max(limit, 0)] {
				if seg == dir {
					return true
				}
			}
			continue
		}
		glob := strings.TrimPrefix(pattern, "**/")
		if ok, _ := filepath.Match(glob, strings.Trim(rel, "/")); ok {
			return true
		}
		if ok, _ := filepath.Match(glob, segments[len(segments)-1]); ok {
			return true
		}
	}
	return false
}

func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' && r != '-'
	})

	var terms []string
	seen := make(map[string]bool)
	for _, f := range fields {
		f = strings.Trim(f, ".-")
		if len(f) < 3 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// isText rejects files with NUL bytes in their first 8KB.
func isText(data []byte) bool {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	for _, b := range data[:n] {
		if b == 0 {
			return false
		}
	}
	return true
}
