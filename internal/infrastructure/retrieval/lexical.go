package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

// LexicalRetriever ranks registry chunks by TF-IDF cosine similarity.
type LexicalRetriever struct {
	model    *LexicalModel
	norms    []float64
	registry []domain.Chunk
}

func NewLexicalRetriever(model *LexicalModel, registry []domain.Chunk) (*LexicalRetriever, error) {
	if err := model.validate(); err != nil {
		return nil, err
	}
	if len(model.Rows) != len(registry) {
		return nil, fmt.Errorf("lexical model has %d rows for %d registry chunks", len(model.Rows), len(registry))
	}
	norms := make([]float64, len(model.Rows))
	for i, row := range model.Rows {
		norms[i] = sparseNorm(row)
	}
	return &LexicalRetriever{model: model, norms: norms, registry: registry}, nil
}

func (r *LexicalRetriever) Mode() string { return domain.RetrievalModeLexical }

func (r *LexicalRetriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	q := r.model.Transform(query)
	if len(q.Indices) == 0 {
		return nil, nil
	}
	weights := make(map[int]float64, len(q.Indices))
	for i, col := range q.Indices {
		weights[col] = q.Values[i]
	}

	hits := make([]indexHit, 0, 16)
	for i, row := range r.model.Rows {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, domain.WrapError(domain.ErrRetrievalQuery, "lexical retrieve", err)
			}
		}
		if r.norms[i] == 0 {
			continue
		}
		sim := sparseDot(weights, row) / r.norms[i]
		if sim > 0 {
			hits = append(hits, indexHit{Index: i, Score: sim})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]domain.Chunk, 0, len(hits))
	for _, hit := range hits {
		out = append(out, annotate(r.registry, hit.Index, hit.Score))
	}
	return out, nil
}

func buildLexical(ctx context.Context, store ports.ArtifactStore, corpus Corpus, registry []domain.Chunk) (ports.Retriever, error) {
	rc, err := store.Open(ctx, corpus.LexicalKey)
	if err != nil {
		return nil, fmt.Errorf("open lexical model: %w", err)
	}
	defer rc.Close()

	model, err := ReadLexicalModel(rc)
	if err != nil {
		return nil, err
	}
	return NewLexicalRetriever(model, registry)
}
