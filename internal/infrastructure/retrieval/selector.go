package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

// Corpus names the artifact keys of one independently indexed collection.
type Corpus struct {
	Name        string
	IndexKey    string
	RegistryKey string
	LexicalKey  string
}

type tierBuilder func(ctx context.Context, corpus Corpus, registry []domain.Chunk) (ports.Retriever, error)

type tier struct {
	mode  string
	build tierBuilder
}

type SelectorOptions struct {
	Mode     string
	Corpora  []Corpus
	Store    ports.ArtifactStore
	Embedder ports.Embedder
	// OnTierFailure observes every tier that failed to construct.
	OnTierFailure func(corpus, mode string)
}

// Selector builds one retriever per corpus on first use and caches it for the
// process lifetime. Construction walks the tiers from the configured mode down
// to brute force; only brute force is guaranteed to succeed.
type Selector struct {
	mode          string
	store         ports.ArtifactStore
	corpora       map[string]Corpus
	tiers         []tier
	onTierFailure func(corpus, mode string)

	mu      sync.Mutex
	entries map[string]*selectorEntry
}

type selectorEntry struct {
	once      sync.Once
	retriever ports.Retriever
}

func NewSelector(opts SelectorOptions) (*Selector, error) {
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	if mode == "" {
		mode = domain.RetrievalModeVector
	}
	if opts.Store == nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "retriever selector", errors.New("artifact store is nil"))
	}

	all := []tier{
		{mode: domain.RetrievalModeVector, build: func(ctx context.Context, c Corpus, registry []domain.Chunk) (ports.Retriever, error) {
			return buildVector(ctx, opts.Store, opts.Embedder, c, registry)
		}},
		{mode: domain.RetrievalModeLexical, build: func(ctx context.Context, c Corpus, registry []domain.Chunk) (ports.Retriever, error) {
			return buildLexical(ctx, opts.Store, c, registry)
		}},
	}
	var tiers []tier
	switch mode {
	case domain.RetrievalModeVector:
		tiers = all
	case domain.RetrievalModeLexical:
		tiers = all[1:]
	case domain.RetrievalModeBruteForce:
	default:
		return nil, domain.WrapError(domain.ErrConfiguration, "retriever selector", fmt.Errorf("unknown retrieval mode %q", opts.Mode))
	}

	corpora := make(map[string]Corpus, len(opts.Corpora))
	for _, c := range opts.Corpora {
		corpora[c.Name] = c
	}

	return &Selector{
		mode:          mode,
		store:         opts.Store,
		corpora:       corpora,
		tiers:         tiers,
		onTierFailure: opts.OnTierFailure,
		entries:       make(map[string]*selectorEntry),
	}, nil
}

func (s *Selector) Mode() string { return s.mode }

func (s *Selector) HasCorpus(corpus string) bool {
	_, ok := s.corpora[corpus]
	return ok
}

func (s *Selector) Corpora() []string {
	names := make([]string, 0, len(s.corpora))
	for name := range s.corpora {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Retriever returns the cached retriever for corpus, building it on first call.
func (s *Selector) Retriever(ctx context.Context, corpus string) (ports.Retriever, error) {
	c, ok := s.corpora[corpus]
	if !ok {
		return nil, domain.WrapError(domain.ErrCorpusNotFound, "get retriever", fmt.Errorf("corpus=%s", corpus))
	}

	s.mu.Lock()
	entry, ok := s.entries[corpus]
	if !ok {
		entry = &selectorEntry{}
		s.entries[corpus] = entry
	}
	s.mu.Unlock()

	entry.once.Do(func() {
		// Cached for the process lifetime; one caller's cancellation must not
		// pin a degraded tier.
		entry.retriever = s.build(context.WithoutCancel(ctx), c)
	})
	return entry.retriever, nil
}

func (s *Selector) build(ctx context.Context, c Corpus) ports.Retriever {
	registry, regErr := loadRegistry(ctx, s.store, c.RegistryKey)
	if regErr != nil {
		if errors.Is(regErr, domain.ErrArtifactNotFound) {
			slog.Warn("chunk_registry_missing", "corpus", c.Name, "key", c.RegistryKey)
		} else {
			slog.Error("chunk_registry_unreadable", "corpus", c.Name, "key", c.RegistryKey, "error", regErr)
		}
		registry = nil
	}

	for _, t := range s.tiers {
		var (
			r   ports.Retriever
			err error
		)
		if regErr != nil {
			err = fmt.Errorf("chunk registry unavailable: %w", regErr)
		} else {
			r, err = t.build(ctx, c, registry)
		}
		if err == nil {
			slog.Info("retriever_ready", "corpus", c.Name, "mode", t.mode, "chunks", len(registry))
			return r
		}
		err = domain.WrapError(domain.ErrRetrievalInit, t.mode, err)
		slog.Warn("retriever_tier_failed", "corpus", c.Name, "mode", t.mode, "error", err)
		if s.onTierFailure != nil {
			s.onTierFailure(c.Name, t.mode)
		}
	}

	slog.Info("retriever_ready", "corpus", c.Name, "mode", domain.RetrievalModeBruteForce, "chunks", len(registry))
	return NewBruteForceRetriever(registry)
}
