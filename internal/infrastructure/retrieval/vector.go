package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

// VectorRetriever answers from a flat inner-product index and its parallel registry.
type VectorRetriever struct {
	index    *FlatIndex
	registry []domain.Chunk
	embedder ports.Embedder
}

func NewVectorRetriever(index *FlatIndex, registry []domain.Chunk, embedder ports.Embedder) (*VectorRetriever, error) {
	if index == nil {
		return nil, errors.New("vector retriever: index is nil")
	}
	if embedder == nil {
		return nil, errors.New("vector retriever: no embedder configured")
	}
	if index.Count() != len(registry) {
		slog.Warn("vector_index_registry_mismatch",
			"index_count", index.Count(),
			"registry_count", len(registry),
		)
	}
	return &VectorRetriever{index: index, registry: registry, embedder: embedder}, nil
}

func (r *VectorRetriever) Mode() string { return domain.RetrievalModeVector }

func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	vectors, err := r.embedder.Embed(ctx, []string{query}, domain.TaskRetrievalQuery)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalQuery, "vector retrieve", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, domain.WrapError(domain.ErrRetrievalQuery, "vector retrieve", errors.New("empty query embedding"))
	}
	if i := nonFiniteAt(vectors[0]); i >= 0 {
		return nil, domain.WrapError(domain.ErrRetrievalQuery, "vector retrieve", fmt.Errorf("non-finite query embedding value at %d", i))
	}

	hits, err := r.index.Search(l2Normalize(vectors[0]), topK)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalQuery, "vector retrieve", err)
	}

	out := make([]domain.Chunk, 0, len(hits))
	for _, hit := range hits {
		if hit.Index < 0 || hit.Index >= len(r.registry) {
			continue
		}
		out = append(out, annotate(r.registry, hit.Index, hit.Score))
	}
	return out, nil
}

func buildVector(ctx context.Context, store ports.ArtifactStore, embedder ports.Embedder, corpus Corpus, registry []domain.Chunk) (ports.Retriever, error) {
	if embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	rc, err := store.Open(ctx, corpus.IndexKey)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	defer rc.Close()

	index, err := ReadFlatIndex(rc)
	if err != nil {
		return nil, err
	}
	return NewVectorRetriever(index, registry, embedder)
}
