package retrieval

import (
	"context"
	"sort"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

// BruteForceRetriever scores every chunk by directional token overlap:
// |query ∩ chunk| / |query|. It needs nothing but the registry.
type BruteForceRetriever struct {
	registry []domain.Chunk
	tokens   []map[string]struct{}
}

func NewBruteForceRetriever(registry []domain.Chunk) *BruteForceRetriever {
	tokens := make([]map[string]struct{}, len(registry))
	for i, chunk := range registry {
		tokens[i] = tokenSet(chunk.Text)
	}
	return &BruteForceRetriever{registry: registry, tokens: tokens}
}

func (r *BruteForceRetriever) Mode() string { return domain.RetrievalModeBruteForce }

func (r *BruteForceRetriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryTokens := tokenSet(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	hits := make([]indexHit, 0, 16)
	for i, chunkTokens := range r.tokens {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, domain.WrapError(domain.ErrRetrievalQuery, "bruteforce retrieve", err)
			}
		}
		score := tokenOverlap(queryTokens, chunkTokens)
		if score > 0 {
			hits = append(hits, indexHit{Index: i, Score: score})
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

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}
