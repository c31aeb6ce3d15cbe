package vertex

import (
	"fmt"
	"strings"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

func buildAnswerPrompt(question string, chunks []domain.Chunk) string {
	blocks := make([]string, 0, len(chunks))
	for idx, chunk := range chunks {
		blocks = append(blocks, fmt.Sprintf("--- SOURCE %d (%s) ---\n%s", idx+1, chunk.Meta.DocTitle, chunk.Text))
	}

	return fmt.Sprintf("Context:\n%s\n\nUser Question: %s\n\nAnswer:", strings.Join(blocks, "\n\n"), question)
}
