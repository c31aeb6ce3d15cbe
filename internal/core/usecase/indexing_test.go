package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

func indexDocs() []domain.SourceDocument {
	return []domain.SourceDocument{
		{ID: "setup", Title: "Setup Guide", Path: "setup.md"},
		{ID: "empty", Title: "Empty", Path: "empty.md"},
		{ID: "notes", Title: "Release Notes", Path: "notes.md"},
	}
}

func TestIndexCorpusBuildsChunksAndVectors(t *testing.T) {
	extractor := &extractorFake{texts: map[string]string{
		"setup.md": "Install the agent.\n\nConfigure the proxy.",
		"notes.md": "Version two adds proxy timeouts.",
	}}
	embedder := &embedderFake{}
	writer := &corpusWriterFake{}
	uc := NewIndexCorpusUseCase(extractor, paragraphChunker{}, embedder, writer)

	report, err := uc.IndexCorpus(context.Background(), "developer", indexDocs())
	if err != nil {
		t.Fatalf("IndexCorpus() error = %v", err)
	}

	if report.Documents != 2 || report.Skipped != 1 || report.Chunks != 3 || !report.Vectors {
		t.Fatalf("unexpected report: %+v", report)
	}
	if embedder.task != domain.TaskRetrievalDocument {
		t.Fatalf("documents must be embedded as %s, got %s", domain.TaskRetrievalDocument, embedder.task)
	}
	if writer.corpus != "developer" || len(writer.chunks) != 3 || len(writer.vectors) != 3 {
		t.Fatalf("unexpected write: corpus=%s chunks=%d vectors=%d", writer.corpus, len(writer.chunks), len(writer.vectors))
	}
	first := writer.chunks[0]
	if first.ChunkID != "setup#0" || first.Meta.DocTitle != "Setup Guide" || first.Meta.SourcePath != "setup.md" {
		t.Fatalf("unexpected chunk: %+v", first)
	}
}

func TestIndexCorpusWithoutEmbedderSkipsVectors(t *testing.T) {
	extractor := &extractorFake{texts: map[string]string{"setup.md": "Install the agent."}}
	writer := &corpusWriterFake{}
	uc := NewIndexCorpusUseCase(extractor, paragraphChunker{}, nil, writer)

	report, err := uc.IndexCorpus(context.Background(), "user", indexDocs()[:1])
	if err != nil {
		t.Fatalf("IndexCorpus() error = %v", err)
	}
	if report.Vectors || writer.vectors != nil || writer.calls != 1 {
		t.Fatalf("expected registry-only write, got report=%+v vectors=%v", report, writer.vectors)
	}
}

func TestIndexCorpusFailures(t *testing.T) {
	writer := &corpusWriterFake{}

	uc := NewIndexCorpusUseCase(&extractorFake{texts: map[string]string{}}, paragraphChunker{}, nil, writer)
	if _, err := uc.IndexCorpus(context.Background(), "user", indexDocs()); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty corpus, got %v", err)
	}

	extractor := &extractorFake{texts: map[string]string{"setup.md": "Install the agent."}}
	uc = NewIndexCorpusUseCase(extractor, paragraphChunker{}, &embedderFake{short: true}, writer)
	if _, err := uc.IndexCorpus(context.Background(), "user", indexDocs()[:1]); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected vectors/chunks mismatch, got %v", err)
	}

	uc = NewIndexCorpusUseCase(&extractorFake{err: errUpstream}, paragraphChunker{}, nil, writer)
	if _, err := uc.IndexCorpus(context.Background(), "user", indexDocs()); err == nil || domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("extractor failures must abort indexing, got %v", err)
	}
	if writer.calls != 0 {
		t.Fatalf("nothing may be written on failure, got %d writes", writer.calls)
	}
}
