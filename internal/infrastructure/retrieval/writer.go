package retrieval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

// ArtifactWriter persists the registry, lexical model and optional vector index
// of a corpus in the formats the Selector reads.
type ArtifactWriter struct {
	store   ports.ArtifactStore
	corpora map[string]Corpus
}

func NewArtifactWriter(store ports.ArtifactStore, corpora []Corpus) (*ArtifactWriter, error) {
	if store == nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "new artifact writer", errors.New("artifact store is required"))
	}
	byName := make(map[string]Corpus, len(corpora))
	for _, c := range corpora {
		byName[c.Name] = c
	}
	return &ArtifactWriter{store: store, corpora: byName}, nil
}

// WriteCorpus writes all artifacts of one corpus. A nil vectors slice skips
// the vector index.
func (w *ArtifactWriter) WriteCorpus(ctx context.Context, corpus string, chunks []domain.Chunk, vectors [][]float32) error {
	c, ok := w.corpora[corpus]
	if !ok {
		return domain.WrapError(domain.ErrCorpusNotFound, "write corpus", fmt.Errorf("unknown corpus %q", corpus))
	}
	if vectors != nil && len(vectors) != len(chunks) {
		return domain.WrapError(domain.ErrInvalidInput, "write corpus",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)))
	}

	var buf bytes.Buffer
	if err := WriteRegistry(&buf, chunks); err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := w.store.Save(ctx, c.RegistryKey, &buf); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	buf.Reset()
	if err := WriteLexicalModel(&buf, FitLexicalModel(texts)); err != nil {
		return fmt.Errorf("encode lexical model: %w", err)
	}
	if err := w.store.Save(ctx, c.LexicalKey, &buf); err != nil {
		return fmt.Errorf("save lexical model: %w", err)
	}

	if vectors != nil {
		buf.Reset()
		if err := WriteFlatIndex(&buf, vectors); err != nil {
			return fmt.Errorf("encode vector index: %w", err)
		}
		if err := w.store.Save(ctx, c.IndexKey, &buf); err != nil {
			return fmt.Errorf("save vector index: %w", err)
		}
	}

	slog.Info("corpus_artifacts_written",
		"corpus", corpus,
		"chunks", len(chunks),
		"vector_index", vectors != nil,
	)
	return nil
}
