package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

type stage string

const (
	stageInit         stage = "INIT"
	stageRetrieving   stage = "RETRIEVING"
	stageGenerating   stage = "GENERATING"
	stageStreaming    stage = "STREAMING"
	stageAuthRecovery stage = "AUTH_RECOVERY"
	stageFailed       stage = "FAILED"
	stageDone         stage = "DONE"
)

const (
	defaultTopK         = 3
	defaultMaxTopK      = 20
	recordTimeout       = 5 * time.Second
	errorFragmentFormat = "[Error: %s]"
)

var errSinkClosed = errors.New("event sink closed")

type ChatOptions struct {
	Classifier ports.IntentClassifier
	Retrievers ports.RetrieverProvider
	// Generator is the model-backed backend when ModelBacked is set, the
	// extractive one otherwise.
	Generator   ports.Generator
	ModelBacked bool
	Credentials ports.CredentialInvalidator
	Recorder    ports.InteractionRecorder
	Metrics     ports.ChatMetrics

	RetrievalMode string
	DefaultCorpus string
	DefaultTopK   int
	MaxTopK       int

	Redact func(string) string
	Now    func() time.Time
	NewID  func() string
}

// ChatUseCase answers one query per call and guarantees the stream shape:
// at most one meta first, tokens in production order, exactly one done last.
type ChatUseCase struct {
	classifier    ports.IntentClassifier
	retrievers    ports.RetrieverProvider
	generator     ports.Generator
	modelBacked   bool
	credentials   ports.CredentialInvalidator
	recorder      ports.InteractionRecorder
	metrics       ports.ChatMetrics
	retrievalMode string
	defaultCorpus string
	defaultTopK   int
	maxTopK       int
	redact        func(string) string
	now           func() time.Time
	newID         func() string
}

func NewChatUseCase(opts ChatOptions) (*ChatUseCase, error) {
	if opts.Classifier == nil || opts.Retrievers == nil || opts.Generator == nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "new chat usecase", errors.New("classifier, retrievers and generator are required"))
	}
	uc := &ChatUseCase{
		classifier:    opts.Classifier,
		retrievers:    opts.Retrievers,
		generator:     opts.Generator,
		modelBacked:   opts.ModelBacked,
		credentials:   opts.Credentials,
		recorder:      opts.Recorder,
		metrics:       opts.Metrics,
		retrievalMode: opts.RetrievalMode,
		defaultCorpus: opts.DefaultCorpus,
		defaultTopK:   opts.DefaultTopK,
		maxTopK:       opts.MaxTopK,
		redact:        opts.Redact,
		now:           opts.Now,
		newID:         opts.NewID,
	}
	if uc.maxTopK <= 0 {
		uc.maxTopK = defaultMaxTopK
	}
	if uc.defaultTopK <= 0 {
		uc.defaultTopK = defaultTopK
	}
	if uc.defaultTopK > uc.maxTopK {
		uc.defaultTopK = uc.maxTopK
	}
	if uc.redact == nil {
		uc.redact = func(s string) string { return s }
	}
	if uc.now == nil {
		uc.now = time.Now
	}
	if uc.newID == nil {
		uc.newID = uuid.NewString
	}
	return uc, nil
}

// Stream validates the query and then runs the pipeline, emitting events through
// emit. Validation errors are returned before anything is emitted; once the
// pipeline starts, failures are reported in-stream and Stream returns nil.
func (uc *ChatUseCase) Stream(ctx context.Context, query domain.Query, emit ports.EventSink) error {
	q, err := uc.normalize(query)
	if err != nil {
		return err
	}
	run := &streamRun{
		uc:      uc,
		ctx:     ctx,
		query:   q,
		emit:    emit,
		started: uc.now(),
		stage:   stageInit,
		mode:    uc.retrievalMode,
	}
	run.execute()
	return nil
}

// Answer drains the streaming pipeline into a single response.
func (uc *ChatUseCase) Answer(ctx context.Context, query domain.Query) (*domain.Answer, error) {
	var (
		text strings.Builder
		meta *domain.MetaPayload
		done *domain.DonePayload
	)
	err := uc.Stream(ctx, query, func(event domain.StreamEvent) error {
		switch event.Kind {
		case domain.EventMeta:
			meta = event.Meta
		case domain.EventToken:
			text.WriteString(event.Token)
		case domain.EventDone:
			done = event.Done
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	answer := &domain.Answer{
		Text:      text.String(),
		Intent:    domain.IntentRAGQuery,
		Citations: []domain.Citation{},
	}
	if meta != nil {
		answer.Intent = meta.Intent
		if meta.Citations != nil {
			answer.Citations = meta.Citations
		}
	}
	if done != nil {
		answer.Latency = done.Latency
	}
	return answer, nil
}

func (uc *ChatUseCase) normalize(q domain.Query) (domain.Query, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return q, domain.WrapError(domain.ErrInvalidInput, "chat", errors.New("query text is required"))
	}
	q.Corpus = strings.TrimSpace(q.Corpus)
	if q.Corpus == "" {
		q.Corpus = uc.defaultCorpus
	}
	if !uc.retrievers.HasCorpus(q.Corpus) {
		return q, domain.WrapError(domain.ErrCorpusNotFound, "chat", fmt.Errorf("unknown corpus %q", q.Corpus))
	}
	switch {
	case q.TopK <= 0:
		q.TopK = uc.defaultTopK
	case q.TopK > uc.maxTopK:
		q.TopK = uc.maxTopK
	}
	return q, nil
}

// streamRun holds the state of one request. It is confined to the calling
// goroutine.
type streamRun struct {
	uc      *ChatUseCase
	ctx     context.Context
	query   domain.Query
	emit    ports.EventSink
	started time.Time

	stage     stage
	intent    domain.Intent
	mode      string
	chunks    []domain.Chunk
	answer    strings.Builder
	fragments int
	outcome   domain.Outcome
	broken    bool
}

func (r *streamRun) execute() {
	defer r.finish()

	r.intent = r.uc.classifier.Classify(r.ctx, r.query.Text)
	if r.intent.NeedsRetrieval() {
		r.retrieve()
	}

	if err := r.send(domain.MetaEvent(domain.MetaPayload{
		Citations:     domain.Citations(r.chunks),
		RetrievalMode: r.mode,
		Intent:        r.intent,
		Corpus:        r.query.Corpus,
	})); err != nil {
		return
	}
	r.generate()
}

func (r *streamRun) transition(next stage) {
	slog.Debug("stream_state",
		"request_id", r.query.RequestID,
		"from", r.stage,
		"to", next,
	)
	r.stage = next
}

func (r *streamRun) retrieve() {
	r.transition(stageRetrieving)
	retriever, err := r.uc.retrievers.Retriever(r.ctx, r.query.Corpus)
	if err != nil {
		slog.Warn("retriever_unavailable", "corpus", r.query.Corpus, "error", err)
		return
	}
	r.mode = retriever.Mode()

	chunks, err := retriever.Retrieve(r.ctx, r.query.Text, r.query.TopK)
	if err != nil {
		slog.Warn("retrieval_query_failed",
			"request_id", r.query.RequestID,
			"corpus", r.query.Corpus,
			"retrieval_mode", r.mode,
			"error", err,
		)
		return
	}
	if len(chunks) > r.query.TopK {
		chunks = chunks[:r.query.TopK]
	}
	r.chunks = chunks
}

func (r *streamRun) generate() {
	if !r.uc.modelBacked {
		if reply, ok := staticReplies[r.intent]; ok {
			r.transition(stageStreaming)
			_ = r.onFragment(reply)
			return
		}
		if len(r.chunks) == 0 {
			r.transition(stageStreaming)
			_ = r.onFragment(noContextReply)
			return
		}
	}

	r.transition(stageGenerating)
	err := r.uc.generator.Generate(r.ctx, ports.GenerationRequest{
		Query:   r.query.Text,
		Chunks:  r.chunks,
		Persona: personaFor(r.intent),
	}, r.onFragment)
	if err == nil {
		return
	}
	if r.broken || r.ctx.Err() != nil {
		r.broken = true
		r.outcome = domain.OutcomeCancelled
		return
	}

	if domain.IsKind(err, domain.ErrAuthorization) {
		r.transition(stageAuthRecovery)
		r.outcome = domain.OutcomeAuthRecovery
		if r.uc.credentials != nil {
			r.uc.credentials.InvalidateGeneration(domain.RejectedGeneration(err))
		}
		slog.Warn("generation_auth_failed", "request_id", r.query.RequestID, "error", err)
		_ = r.send(domain.TokenEvent(authRecoveryNote))
		return
	}

	r.transition(stageFailed)
	r.outcome = domain.OutcomeFailed
	slog.Error("generation_failed",
		"request_id", r.query.RequestID,
		"intent", r.intent,
		"fragments", r.fragments,
		"error", err,
	)
	if reply, ok := staticReplies[r.intent]; ok && r.fragments == 0 {
		_ = r.onFragment(reply)
		return
	}
	_ = r.send(domain.TokenEvent(fmt.Sprintf(errorFragmentFormat, err.Error())))
}

func (r *streamRun) onFragment(text string) error {
	if text == "" {
		return nil
	}
	if r.stage != stageStreaming && r.stage != stageFailed {
		r.transition(stageStreaming)
	}
	r.answer.WriteString(text)
	r.fragments++
	return r.send(domain.TokenEvent(text))
}

// send writes one event unless the caller is gone. After the first failed
// write no further events are attempted.
func (r *streamRun) send(event domain.StreamEvent) error {
	if r.broken {
		return errSinkClosed
	}
	if err := r.ctx.Err(); err != nil {
		r.broken = true
		return err
	}
	if err := r.emit(event); err != nil {
		r.broken = true
		slog.Info("stream_client_gone", "request_id", r.query.RequestID, "event", event.Kind, "error", err)
		return errSinkClosed
	}
	return nil
}

func (r *streamRun) finish() {
	if recovered := recover(); recovered != nil {
		r.outcome = domain.OutcomeCrashed
		slog.Error("stream_crashed",
			"request_id", r.query.RequestID,
			"stage", r.stage,
			"panic", fmt.Sprint(recovered),
		)
	}
	if r.broken && r.outcome == "" {
		r.outcome = domain.OutcomeCancelled
	}
	if r.outcome == "" {
		r.outcome = domain.OutcomeCompleted
	}
	elapsed := r.uc.now().Sub(r.started)

	done := domain.DonePayload{Latency: elapsed.Seconds()}
	if r.outcome != domain.OutcomeCrashed {
		done.Stats = &domain.StreamStats{
			Fragments:   r.fragments,
			AnswerChars: r.answer.Len(),
			Chunks:      len(r.chunks),
			Outcome:     r.outcome,
		}
	}
	r.sendDone(done)
	r.stage = stageDone

	if r.uc.metrics != nil {
		r.uc.metrics.RecordChat(r.intent, r.outcome, r.mode, len(r.chunks), r.fragments, elapsed)
	}
	r.record(elapsed)
}

// sendDone must not let a panicking sink escape; the done event is the one
// write every path attempts.
func (r *streamRun) sendDone(done domain.DonePayload) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.broken = true
			slog.Error("stream_done_failed", "request_id", r.query.RequestID, "panic", fmt.Sprint(recovered))
		}
	}()
	_ = r.send(domain.DoneEvent(done))
}

func (r *streamRun) record(elapsed time.Duration) {
	if r.uc.recorder == nil {
		return
	}
	chunkIDs := make([]string, 0, len(r.chunks))
	for _, chunk := range r.chunks {
		chunkIDs = append(chunkIDs, chunk.ChunkID)
	}
	intent := r.intent
	if intent == "" {
		intent = domain.IntentRAGQuery
	}
	interaction := domain.Interaction{
		ID:            r.uc.newID(),
		RequestID:     r.query.RequestID,
		SessionID:     r.query.SessionID,
		Corpus:        r.query.Corpus,
		Intent:        intent,
		RetrievalMode: r.mode,
		Query:         r.uc.redact(r.query.Text),
		ChunkIDs:      chunkIDs,
		Answer:        r.answer.String(),
		Outcome:       r.outcome,
		Fragments:     r.fragments,
		Latency:       elapsed.Seconds(),
		CreatedAt:     r.started.UTC(),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), recordTimeout)
	defer cancel()
	if err := r.uc.recorder.Record(ctx, interaction); err != nil {
		slog.Warn("interaction_record_failed",
			"request_id", r.query.RequestID,
			"interaction_id", interaction.ID,
			"error", err,
		)
	}
}
