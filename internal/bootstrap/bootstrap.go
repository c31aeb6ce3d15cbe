package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docs-assistant/internal/config"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
	"github.com/kirillkom/docs-assistant/internal/core/usecase"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/auth"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/llm/extractive"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/llm/vertex"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/recorder"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/retrieval"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/storage/s3"
	"github.com/kirillkom/docs-assistant/internal/observability/logging"
	"github.com/kirillkom/docs-assistant/internal/observability/metrics"
)

const credentialDisabled = "DISABLED"

type App struct {
	Config  config.Config
	Metrics *metrics.ServerMetrics

	Store    ports.ArtifactStore
	Corpora  []config.CorpusConfig
	Embedder ports.Embedder
	Selector *retrieval.Selector
	Chat     *usecase.ChatUseCase

	credentials *auth.Manager
	closeFns    []func()
}

// Health summarizes the serving configuration and credential state.
type Health struct {
	Mode       string
	Retrieval  string
	Credential string
}

// New wires the query-serving pipeline. Optional sinks (postgres, nats) are
// only connected when configured.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	app, err := newBase(ctx, cfg, metrics.NewServerMetrics(cfg.ServiceName))
	if err != nil {
		return nil, err
	}

	generator, classifier, err := app.generationStack(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	selector, err := retrieval.NewSelector(retrieval.SelectorOptions{
		Mode:          cfg.RetrievalMode,
		Corpora:       retrievalCorpora(app.Corpora),
		Store:         app.Store,
		Embedder:      app.Embedder,
		OnTierFailure: app.Metrics.RecordTierFailure,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init retrieval: %w", err)
	}
	app.Selector = selector

	interactions, err := app.interactionRecorder(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	opts := usecase.ChatOptions{
		Classifier:    classifier,
		Retrievers:    selector,
		Generator:     generator,
		ModelBacked:   cfg.ModelBacked(),
		Recorder:      interactions,
		Metrics:       app.Metrics,
		RetrievalMode: selector.Mode(),
		DefaultCorpus: cfg.DefaultCorpus,
		DefaultTopK:   cfg.RAGTopK,
		MaxTopK:       cfg.RAGMaxTopK,
		Redact:        logging.Redact,
	}
	if app.credentials != nil {
		opts.Credentials = app.credentials
	}
	chat, err := usecase.NewChatUseCase(opts)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init chat: %w", err)
	}
	app.Chat = chat
	return app, nil
}

// NewIndexing wires only what the indexer needs: the artifact store and, in
// model mode, the embedder.
func NewIndexing(ctx context.Context, cfg config.Config) (*App, error) {
	app, err := newBase(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	if cfg.ModelBacked() {
		if _, _, err := app.generationStack(cfg); err != nil {
			app.Close()
			return nil, err
		}
	}
	return app, nil
}

func newBase(ctx context.Context, cfg config.Config, serverMetrics *metrics.ServerMetrics) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	corpora, err := cfg.ResolveCorpora()
	if err != nil {
		return nil, err
	}
	store, err := openArtifactStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &App{
		Config:  cfg,
		Metrics: serverMetrics,
		Store:   store,
		Corpora: corpora,
	}, nil
}

func openArtifactStore(ctx context.Context, cfg config.Config) (ports.ArtifactStore, error) {
	switch cfg.ArtifactStore {
	case config.ArtifactStoreS3:
		store, err := s3.New(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			return nil, fmt.Errorf("init s3 artifact store: %w", err)
		}
		return store, nil
	default:
		store, err := localfs.New(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("init local artifact store: %w", err)
		}
		return store, nil
	}
}

// generationStack returns the answer backend and intent classifier for the
// configured mode and sets the embedder when a model is available.
func (a *App) generationStack(cfg config.Config) (ports.Generator, ports.IntentClassifier, error) {
	if !cfg.ModelBacked() {
		return extractive.NewGenerator(), usecase.NewIntentClassifier(nil, cfg.IntentMaxTokens), nil
	}

	onRefresh := func(string) {}
	if a.Metrics != nil {
		onRefresh = a.Metrics.RecordCredentialRefresh
	}
	manager, err := auth.NewManager(auth.Options{
		Command:        cfg.TokenCommand,
		TTL:            cfg.TokenTTL,
		CommandTimeout: cfg.TokenCommandTimeout,
		OnRefresh:      onRefresh,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init credential manager: %w", err)
	}
	a.credentials = manager

	client := vertex.New(vertex.Options{
		BaseURL:         cfg.VertexBaseURL,
		Project:         cfg.VertexProject,
		Location:        cfg.VertexLocation,
		GenerationModel: cfg.VertexGenerationModel,
		EmbeddingModel:  cfg.VertexEmbeddingModel,
		UserHeader:      cfg.GatewayUserHeader,
		UserID:          cfg.GatewayUserID,
		Temperature:     cfg.GenerationTemperature,
		MaxTokens:       cfg.GenerationMaxTokens,
	}, manager)

	embedPolicy := resilienceConfig(cfg)
	embedPolicy.RetryMaxAttempts = cfg.EmbedRetry
	a.Embedder = vertex.NewEmbedder(client, resilience.NewExecutor(embedPolicy), cfg.EmbedBatchSize)

	return vertex.NewGenerator(client), usecase.NewIntentClassifier(vertex.NewCompleter(client), cfg.IntentMaxTokens), nil
}

func (a *App) interactionRecorder(ctx context.Context, cfg config.Config) (ports.InteractionRecorder, error) {
	var sinks []ports.InteractionRecorder

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.onClose(func() { closeDB(db) })
		repo := postgres.NewInteractionRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		sinks = append(sinks, repo)
	}

	if cfg.NATSURL != "" {
		publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilienceConfig(cfg)),
		})
		if err != nil {
			return nil, fmt.Errorf("init interaction publisher: %w", err)
		}
		a.onClose(publisher.Close)
		sinks = append(sinks, publisher)
	}

	if len(sinks) == 0 {
		slog.Info("interaction_recording_disabled")
	}
	return recorder.NewFanOut(sinks...), nil
}

func (a *App) Health() Health {
	credential := credentialDisabled
	if a.credentials != nil {
		credential = string(a.credentials.State())
	}
	retrievalMode := a.Config.RetrievalMode
	if a.Selector != nil {
		retrievalMode = a.Selector.Mode()
	}
	return Health{
		Mode:       a.Config.GenerationMode,
		Retrieval:  retrievalMode,
		Credential: credential,
	}
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	policy := resilience.DefaultConfig()
	policy.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	policy.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	policy.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	policy.BreakerEnabled = cfg.ResilienceBreakerEnabled
	policy.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	policy.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	return policy
}

func retrievalCorpora(corpora []config.CorpusConfig) []retrieval.Corpus {
	out := make([]retrieval.Corpus, 0, len(corpora))
	for _, c := range corpora {
		out = append(out, retrieval.Corpus{
			Name:        c.Name,
			IndexKey:    c.Index,
			RegistryKey: c.Registry,
			LexicalKey:  c.Lexical,
		})
	}
	return out
}

// RetrievalCorpora exposes the artifact layout for writers.
func (a *App) RetrievalCorpora() []retrieval.Corpus {
	return retrievalCorpora(a.Corpora)
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("postgres_close_failed", "error", err)
	}
}
