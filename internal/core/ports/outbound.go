package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

// Retriever returns chunks ordered by descending relevance, never more than topK.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.Chunk, error)
	Mode() string
}

// RetrieverProvider yields the cached retriever for a corpus.
type RetrieverProvider interface {
	Retriever(ctx context.Context, corpus string) (Retriever, error)
	HasCorpus(corpus string) bool
}

// Embedder builds vectors for document and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error)
}

type GenerationRequest struct {
	Query   string
	Chunks  []domain.Chunk
	Persona string
}

// Generator streams answer fragments to onFragment in production order. An
// error returned by onFragment stops generation and is returned unchanged.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest, onFragment func(string) error) error
}

type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// TextCompleter runs a single bounded, non-streaming model call.
type TextCompleter interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// IntentClassifier never fails; uncertain queries resolve to RAG_QUERY.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) domain.Intent
}

// CredentialInvalidator forces the next session acquisition to refresh.
type CredentialInvalidator interface {
	// InvalidateGeneration drops the credential only while it is still the
	// given generation, so a stale rejection cannot discard a newer token.
	// Generation 0 drops whatever is current.
	InvalidateGeneration(generation uint64)
}

// InteractionRecorder persists or publishes the outcome of a chat request.
type InteractionRecorder interface {
	Record(ctx context.Context, interaction domain.Interaction) error
}

// ArtifactStore reads and writes retrieval artifacts.
type ArtifactStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Chunker splits text into retrievable chunks.
type Chunker interface {
	Split(text string) []string
}

// ChatMetrics observes finished chat requests.
type ChatMetrics interface {
	RecordChat(intent domain.Intent, outcome domain.Outcome, retrievalMode string, chunks, fragments int, duration time.Duration)
}

// TextExtractor extracts plain text from a source document.
type TextExtractor interface {
	Extract(ctx context.Context, doc domain.SourceDocument) (string, error)
}

// CorpusWriter persists the retrieval artifacts of one corpus. A nil vectors
// slice means no vector index is written.
type CorpusWriter interface {
	WriteCorpus(ctx context.Context, corpus string, chunks []domain.Chunk, vectors [][]float32) error
}
