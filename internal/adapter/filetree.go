package adapter

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

// fileTreeMatchScore is the constant confidence assigned to file hits:
// matching is binary, so every hit carries the same high confidence and the
// matched-token ratio becomes the distinct relevance signal instead.
const fileTreeMatchScore = 0.9

// fileTreeMaxFileSize caps how much of a file is scanned per query.
const fileTreeMaxFileSize = 1 << 20 // 1MB

// fileTree scans a local directory per query. No index is kept; scanning
// fresh keeps results consistent with the tree and honors the per-request
// deadline.
type fileTree struct {
	src  domain.Source
	root string
	exts map[string]bool // nil = all files
}

func newFileTree(src domain.Source) (Adapter, error) {
	root := src.Config["root"]
	if root == "" {
		return nil, fmt.Errorf("%w: file_tree source %s has no root", domain.ErrValidation, src.ID)
	}

	var exts map[string]bool
	if raw := src.Config["extensions"]; raw != "" {
		exts = make(map[string]bool)
		for _, e := range strings.Split(raw, ",") {
			e = strings.TrimSpace(strings.ToLower(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			exts[e] = true
		}
	}

	return &fileTree{src: src, root: root, exts: exts}, nil
}

func (a *fileTree) Kind() domain.SourceKind { return domain.KindFileTree }

// EmptyProbeOK is true: an empty tree is healthy, not broken.
func (a *fileTree) EmptyProbeOK() bool { return true }

func (a *fileTree) Query(ctx context.Context, query string, opts QueryOpts) ([]domain.RawResult, error) {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	var results []domain.RawResult
	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		if a.exts != nil && !a.exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > fileTreeMaxFileSize {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil // unreadable files are skipped, not fatal
		}
		content := strings.ToLower(string(data))

		matched := 0
		firstIdx := -1
		for _, tok := range tokens {
			if idx := strings.Index(content, tok); idx >= 0 {
				matched++
				if firstIdx < 0 || idx < firstIdx {
					firstIdx = idx
				}
			}
		}
		if matched == 0 {
			return nil
		}

		rel, relErr := filepath.Rel(a.root, path)
		if relErr != nil {
			rel = path
		}

		results = append(results, domain.RawResult{
			SourceID:  a.src.ID,
			Kind:      domain.ResultKnowledge,
			Content:   snippet(string(data), firstIdx),
			RawScore:  fileTreeMatchScore,
			Relevance: float64(matched) / float64(len(tokens)),
			Timestamp: info.ModTime(),
			Metadata:  map[string]string{"path": rel},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("file tree %s: %w", a.src.ID, err)
	}

	// Best token coverage first, then path for determinism.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].Metadata["path"] < results[j].Metadata["path"]
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (a *fileTree) TestConnection(ctx context.Context) (Probe, error) {
	info, err := os.Stat(a.root)
	if err != nil {
		return Probe{Connected: false, Message: fmt.Sprintf("root not accessible: %v", err)}, nil
	}
	if !info.IsDir() {
		return Probe{Connected: false, Message: "root is not a directory"}, nil
	}

	sample, err := a.Query(ctx, probeQuery, QueryOpts{Limit: 1})
	if err != nil {
		return Probe{Connected: false, Message: err.Error()}, nil
	}
	// Zero hits is success here: the tree exists, it just has no matching
	// content yet.
	return Probe{Connected: true, Message: "root accessible", Sample: sample}, nil
}

func queryTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// snippet extracts a window around the first match for result content.
func snippet(content string, idx int) string {
	if idx < 0 {
		idx = 0
	}
	start := idx - 80
	if start < 0 {
		start = 0
	}
	end := idx + 160
	if end > len(content) {
		end = len(content)
	}
	return strings.TrimSpace(content[start:end])
}
