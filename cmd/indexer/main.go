package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kirillkom/docs-assistant/internal/bootstrap"
	"github.com/kirillkom/docs-assistant/internal/config"
	"github.com/kirillkom/docs-assistant/internal/core/usecase"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/retrieval"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docs-assistant/internal/observability/logging"
)

func main() {
	only := flag.String("corpus", "", "index only this corpus (default: all declared corpora)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(cfg.ServiceName+"-indexer", cfg.LogLevel))

	os.Exit(run(cfg, *only))
}

// run returns the process exit code so deferred cleanup completes first.
func run(cfg config.Config, only string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewIndexing(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		return 1
	}
	defer app.Close()

	writer, err := retrieval.NewArtifactWriter(app.Store, app.RetrievalCorpora())
	if err != nil {
		slog.Error("artifact_writer_init_failed", "error", err)
		return 1
	}
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	exitCode := 0
	for _, corpus := range app.Corpora {
		if only != "" && corpus.Name != only {
			continue
		}
		if err := indexCorpus(ctx, app, corpus, chunker, writer); err != nil {
			slog.Error("corpus_index_failed", "corpus", corpus.Name, "source_dir", corpus.SourceDir, "error", err)
			exitCode = 1
		}
	}
	return exitCode
}

func indexCorpus(
	ctx context.Context,
	app *bootstrap.App,
	corpus config.CorpusConfig,
	chunker *chunking.Splitter,
	writer *retrieval.ArtifactWriter,
) error {
	sources, err := localfs.New(corpus.SourceDir)
	if err != nil {
		return err
	}
	extractor := plaintext.NewExtractor(sources)
	docs, err := extractor.Discover(ctx, corpus.SourceDir)
	if err != nil {
		return err
	}

	uc := usecase.NewIndexCorpusUseCase(extractor, chunker, app.Embedder, writer)
	report, err := uc.IndexCorpus(ctx, corpus.Name, docs)
	if err != nil {
		return err
	}
	slog.Info("corpus_indexed",
		"corpus", corpus.Name,
		"documents", report.Documents,
		"skipped", report.Skipped,
		"chunks", report.Chunks,
		"vectors", report.Vectors,
	)
	return nil
}
