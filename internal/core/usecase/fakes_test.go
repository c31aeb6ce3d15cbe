package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

type completerFake struct {
	label string
	err   error
	calls int
	req   ports.CompletionRequest
}

func (f *completerFake) Complete(_ context.Context, req ports.CompletionRequest) (string, error) {
	f.calls++
	f.req = req
	if f.err != nil {
		return "", f.err
	}
	return f.label, nil
}

type retrieverFake struct {
	mode   string
	chunks []domain.Chunk
	err    error
	calls  int
	topK   int
}

func (f *retrieverFake) Retrieve(_ context.Context, _ string, topK int) ([]domain.Chunk, error) {
	f.calls++
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

func (f *retrieverFake) Mode() string { return f.mode }

type providerFake struct {
	retriever *retrieverFake
	corpora   map[string]bool
}

func (f *providerFake) Retriever(_ context.Context, corpus string) (ports.Retriever, error) {
	if !f.corpora[corpus] {
		return nil, domain.ErrCorpusNotFound
	}
	return f.retriever, nil
}

func (f *providerFake) HasCorpus(corpus string) bool { return f.corpora[corpus] }

type generatorFake struct {
	fragments []string
	err       error
	panicMsg  string
	afterFn   func()
	calls     int
	req       ports.GenerationRequest
	stopped   error
}

func (f *generatorFake) Generate(_ context.Context, req ports.GenerationRequest, onFragment func(string) error) error {
	f.calls++
	f.req = req
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	for _, fragment := range f.fragments {
		if err := onFragment(fragment); err != nil {
			f.stopped = err
			return err
		}
	}
	if f.afterFn != nil {
		f.afterFn()
	}
	return f.err
}

type invalidatorFake struct {
	calls       int
	generations []uint64
}

func (f *invalidatorFake) InvalidateGeneration(generation uint64) {
	f.calls++
	f.generations = append(f.generations, generation)
}

type recorderFake struct {
	mu           sync.Mutex
	interactions []domain.Interaction
	ctxErr       error
	err          error
}

func (f *recorderFake) Record(ctx context.Context, interaction domain.Interaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	f.interactions = append(f.interactions, interaction)
	return f.err
}

type metricsFake struct {
	intent  domain.Intent
	outcome domain.Outcome
	mode    string
	chunks  int
	calls   int
}

func (f *metricsFake) RecordChat(intent domain.Intent, outcome domain.Outcome, mode string, chunks, _ int, _ time.Duration) {
	f.calls++
	f.intent = intent
	f.outcome = outcome
	f.mode = mode
	f.chunks = chunks
}

type extractorFake struct {
	texts map[string]string
	err   error
}

func (f *extractorFake) Extract(_ context.Context, doc domain.SourceDocument) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.texts[doc.Path], nil
}

type paragraphChunker struct{}

func (paragraphChunker) Split(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type embedderFake struct {
	err   error
	task  string
	short bool
}

func (f *embedderFake) Embed(_ context.Context, texts []string, taskType string) ([][]float32, error) {
	f.task = taskType
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

type corpusWriterFake struct {
	corpus  string
	chunks  []domain.Chunk
	vectors [][]float32
	calls   int
}

func (f *corpusWriterFake) WriteCorpus(_ context.Context, corpus string, chunks []domain.Chunk, vectors [][]float32) error {
	f.calls++
	f.corpus = corpus
	f.chunks = chunks
	f.vectors = vectors
	return nil
}

var errUpstream = errors.New("upstream exploded")
