package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// wordTokens splits s into lower-cased runs of letters, digits and underscores.
func wordTokens(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if isWordRune(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordTokens(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// lexicalTokens drops single-rune tokens, matching how lexical models are fitted.
func lexicalTokens(s string) []string {
	tokens := wordTokens(s)
	out := tokens[:0]
	for _, token := range tokens {
		if utf8.RuneCountInString(token) >= 2 {
			out = append(out, token)
		}
	}
	return out
}
