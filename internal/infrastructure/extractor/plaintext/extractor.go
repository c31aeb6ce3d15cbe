package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

var supportedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".rst":      true,
}

type Extractor struct {
	storage ports.ArtifactStore
}

func NewExtractor(storage ports.ArtifactStore) *Extractor {
	return &Extractor{storage: storage}
}

// Extract returns the document body without any front matter block.
func (e *Extractor) Extract(ctx context.Context, doc domain.SourceDocument) (string, error) {
	raw, err := e.read(ctx, doc.Path)
	if err != nil {
		return "", err
	}
	_, body := splitFrontMatter(raw)
	return strings.TrimSpace(string(body)), nil
}

func (e *Extractor) read(ctx context.Context, key string) ([]byte, error) {
	reader, err := e.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}
	if !utf8.Valid(raw) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read source document", fmt.Errorf("not utf-8 text: %s", key))
	}
	return raw, nil
}

type frontMatter struct {
	Title string `yaml:"title"`
}

// splitFrontMatter separates a leading "---" YAML block from the body.
func splitFrontMatter(raw []byte) (frontMatter, []byte) {
	var meta frontMatter
	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return meta, raw
	}
	rest := normalized[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return meta, raw
	}
	if err := yaml.Unmarshal(rest[:end], &meta); err != nil {
		return frontMatter{}, raw
	}
	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return meta, body
}

// Discover lists the text documents below root, in path order. Keys are
// slash-separated and relative to root so they can be opened through a store
// rooted at the same directory. Titles come from front matter when present.
func (e *Extractor) Discover(ctx context.Context, root string) ([]domain.SourceDocument, error) {
	var keys []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source dir: %w", err)
	}
	sort.Strings(keys)

	docs := make([]domain.SourceDocument, 0, len(keys))
	for _, key := range keys {
		title := domain.TitleFromPath(key)
		if raw, err := e.read(ctx, key); err == nil {
			if meta, _ := splitFrontMatter(raw); strings.TrimSpace(meta.Title) != "" {
				title = strings.TrimSpace(meta.Title)
			}
		}
		docs = append(docs, domain.SourceDocument{
			ID:    strings.TrimSuffix(key, filepath.Ext(key)),
			Title: title,
			Path:  key,
		})
	}
	return docs, nil
}
