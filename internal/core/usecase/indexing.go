package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

// IndexCorpusUseCase builds the retrieval artifacts of one corpus from its
// source documents.
type IndexCorpusUseCase struct {
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	writer    ports.CorpusWriter
}

// NewIndexCorpusUseCase wires the pipeline. A nil embedder skips the vector
// index; lexical and brute-force retrieval still work from the output.
func NewIndexCorpusUseCase(
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	writer ports.CorpusWriter,
) *IndexCorpusUseCase {
	return &IndexCorpusUseCase{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		writer:    writer,
	}
}

type IndexReport struct {
	Documents int
	Skipped   int
	Chunks    int
	Vectors   bool
}

func (uc *IndexCorpusUseCase) IndexCorpus(ctx context.Context, corpus string, docs []domain.SourceDocument) (IndexReport, error) {
	report := IndexReport{}
	chunks := make([]domain.Chunk, 0, len(docs))
	for _, doc := range docs {
		docChunks, err := uc.processDocument(ctx, doc)
		if err != nil {
			if domain.IsKind(err, domain.ErrInvalidInput) {
				report.Skipped++
				slog.Warn("document_skipped", "corpus", corpus, "path", doc.Path, "error", err)
				continue
			}
			return report, err
		}
		report.Documents++
		chunks = append(chunks, docChunks...)
	}
	if len(chunks) == 0 {
		return report, domain.WrapError(domain.ErrInvalidInput, "index corpus", errors.New("no chunks produced"))
	}
	report.Chunks = len(chunks)

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return report, err
	}
	report.Vectors = vectors != nil

	if err := uc.writer.WriteCorpus(ctx, corpus, chunks, vectors); err != nil {
		return report, fmt.Errorf("write corpus artifacts: %w", err)
	}
	return report, nil
}

func (uc *IndexCorpusUseCase) processDocument(ctx context.Context, doc domain.SourceDocument) ([]domain.Chunk, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}

	parts := uc.chunker.Split(text)
	if len(parts) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	meta := domain.DocumentMeta{DocID: doc.ID, DocTitle: doc.Title, SourcePath: doc.Path}
	out := make([]domain.Chunk, len(parts))
	for i, part := range parts {
		out[i] = domain.Chunk{
			ChunkID: fmt.Sprintf("%s#%d", doc.ID, i),
			Text:    part,
			Meta:    meta,
		}
	}
	return out, nil
}

func (uc *IndexCorpusUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	if uc.embedder == nil {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts, domain.TaskRetrievalDocument)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(texts)),
		)
	}
	return vectors, nil
}
