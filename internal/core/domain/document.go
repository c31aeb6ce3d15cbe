package domain

import (
	"path"
	"strings"
)

// SourceDocument is one input file of the offline indexer. Path is the key the
// extractor reads it by.
type SourceDocument struct {
	ID    string
	Title string
	Path  string
}

// TitleFromPath derives a readable title from a file name:
// "guides/proxy_setup.md" becomes "Proxy Setup".
func TitleFromPath(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
