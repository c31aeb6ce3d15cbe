package extractive

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

const (
	header   = "### Extractive Answer (No LLM Mode)\n\n"
	notFound = "No relevant information found."
	intro    = "I found the following relevant information:\n\n"
	footer   = "\n*Note: This response was generated without an LLM by extracting top matching chunks.*"
)

// Generator renders retrieved chunks verbatim. It makes no external calls and
// only fails when the caller stops accepting fragments.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Generate(_ context.Context, req ports.GenerationRequest, onFragment func(string) error) error {
	if len(req.Chunks) == 0 {
		return onFragment(header + notFound)
	}

	if err := onFragment(header + intro); err != nil {
		return err
	}
	for i, chunk := range req.Chunks {
		var b strings.Builder
		fmt.Fprintf(&b, "**Source %d: %s** (Score: %.4f)\n", i+1, chunk.Meta.DocTitle, chunk.Score)
		b.WriteString("> ")
		b.WriteString(strings.ReplaceAll(strings.TrimSpace(chunk.Text), "\n", "\n> "))
		b.WriteString("\n\n")
		if err := onFragment(b.String()); err != nil {
			return err
		}
	}
	return onFragment(footer)
}
