package vertex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/auth"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/resilience"
)

type sessionFake struct {
	acquisitions atomic.Int32
	invalidated  atomic.Int32
	lastRejected atomic.Uint64
}

// AcquireSession hands out a new generation per call.
func (f *sessionFake) AcquireSession(context.Context) (*auth.Session, error) {
	n := f.acquisitions.Add(1)
	return &auth.Session{Token: "t", IssuedAt: time.Now(), Client: &http.Client{}, Generation: uint64(n)}, nil
}

func (f *sessionFake) InvalidateGeneration(generation uint64) {
	f.invalidated.Add(1)
	f.lastRejected.Store(generation)
}

func newTestClient(baseURL string, sessions SessionSource) *Client {
	return New(Options{
		BaseURL:         baseURL,
		Project:         "proj",
		GenerationModel: "gen-model",
		EmbeddingModel:  "embed-model",
		UserHeader:      "x-user-id",
		UserID:          "u123",
		Temperature:     0.7,
		MaxTokens:       256,
	}, sessions)
}

func noRetryExecutor(attempts int) *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
}

func TestGeneratorStreamsFragmentsInOrder(t *testing.T) {
	var captured generateRequest
	var userHeader, path, alt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		alt = r.URL.Query().Get("alt")
		userHeader = r.Header.Get("x-user-id")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, text := range []string{"Hel", "", "lo"} {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":%q}]}}]}\n\n", text)
		}
	}))
	defer server.Close()

	gen := NewGenerator(newTestClient(server.URL, &sessionFake{}))
	var fragments []string
	err := gen.Generate(context.Background(), ports.GenerationRequest{
		Query:   "How do I configure X?",
		Persona: "be helpful",
		Chunks:  []domain.Chunk{{ChunkID: "c1", Text: "Set X=1", Meta: domain.DocumentMeta{DocTitle: "Guide"}}},
	}, func(s string) error {
		fragments = append(fragments, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Join(fragments, "|") != "Hel|lo" {
		t.Fatalf("unexpected fragments %q", fragments)
	}
	if !strings.HasSuffix(path, "/models/gen-model:streamGenerateContent") || alt != "sse" {
		t.Fatalf("unexpected endpoint %s alt=%s", path, alt)
	}
	if userHeader != "u123" {
		t.Fatalf("expected identity header, got %q", userHeader)
	}
	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "be helpful" {
		t.Fatalf("expected persona as system instruction, got %+v", captured.SystemInstruction)
	}
	prompt := captured.Contents[0].Parts[0].Text
	if !strings.Contains(prompt, "--- SOURCE 1 (Guide) ---\nSet X=1") || !strings.Contains(prompt, "User Question: How do I configure X?") {
		t.Fatalf("unexpected prompt %q", prompt)
	}
	if captured.GenerationConfig.Temperature != 0.7 || captured.GenerationConfig.MaxOutputTokens != 256 {
		t.Fatalf("unexpected generation config %+v", captured.GenerationConfig)
	}
}

func TestGeneratorTypesUpstreamFailures(t *testing.T) {
	cases := []struct {
		status   int
		wantAuth bool
		wantTemp bool
	}{
		{status: http.StatusUnauthorized, wantAuth: true},
		{status: http.StatusForbidden, wantAuth: true},
		{status: http.StatusServiceUnavailable, wantTemp: true},
		{status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream says no", tc.status)
			}))
			defer server.Close()

			gen := NewGenerator(newTestClient(server.URL, &sessionFake{}))
			err := gen.Generate(context.Background(), ports.GenerationRequest{Query: "q"}, func(string) error { return nil })
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := domain.IsKind(err, domain.ErrAuthorization); got != tc.wantAuth {
				t.Fatalf("ErrAuthorization = %v, want %v (err=%v)", got, tc.wantAuth, err)
			}
			if got := domain.IsKind(err, domain.ErrTemporary); got != tc.wantTemp {
				t.Fatalf("ErrTemporary = %v, want %v (err=%v)", got, tc.wantTemp, err)
			}
			if !strings.Contains(err.Error(), "upstream says no") {
				t.Fatalf("expected upstream body in error, got %v", err)
			}
			if tc.wantAuth && domain.RejectedGeneration(err) != 1 {
				t.Fatalf("expected rejected generation 1, got %d", domain.RejectedGeneration(err))
			}
		})
	}
}

func TestGeneratorStopsWhenSinkFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 5; i++ {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"t%d\"}]}}]}\n\n", i)
		}
	}))
	defer server.Close()

	errGone := errors.New("client gone")
	calls := 0
	err := NewGenerator(newTestClient(server.URL, &sessionFake{})).Generate(context.Background(), ports.GenerationRequest{Query: "q"}, func(string) error {
		calls++
		return errGone
	})
	if !errors.Is(err, errGone) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected generation to stop after first fragment, got %d calls", calls)
	}
}

func TestGeneratorSurfacesInStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"partial\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"error\":{\"code\":403,\"message\":\"token expired\",\"status\":\"PERMISSION_DENIED\"}}\n\n")
	}))
	defer server.Close()

	var got []string
	err := NewGenerator(newTestClient(server.URL, &sessionFake{})).Generate(context.Background(), ports.GenerationRequest{Query: "q"}, func(s string) error {
		got = append(got, s)
		return nil
	})
	if !domain.IsKind(err, domain.ErrAuthorization) {
		t.Fatalf("expected ErrAuthorization, got %v", err)
	}
	if domain.RejectedGeneration(err) != 1 {
		t.Fatalf("expected in-stream rejection tagged with generation 1, got %d", domain.RejectedGeneration(err))
	}
	if len(got) != 1 || got[0] != "partial" {
		t.Fatalf("expected fragment before failure, got %v", got)
	}
}

func TestCompleterReturnsTrimmedText(t *testing.T) {
	var captured generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":" greeting \n"}]}}]}`))
	}))
	defer server.Close()

	out, err := NewCompleter(newTestClient(server.URL, &sessionFake{})).Complete(context.Background(), ports.CompletionRequest{
		Prompt:      "classify",
		Temperature: 0,
		MaxTokens:   10,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "greeting" {
		t.Fatalf("unexpected completion %q", out)
	}
	if captured.GenerationConfig.Temperature != 0 || captured.GenerationConfig.MaxOutputTokens != 10 {
		t.Fatalf("unexpected generation config %+v", captured.GenerationConfig)
	}
	if captured.SystemInstruction != nil {
		t.Fatalf("expected no system instruction")
	}
}

func embedHandler(t *testing.T, fail func(n int32, req embedRequest) int) (http.HandlerFunc, *atomic.Int32) {
	var calls atomic.Int32
	return func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode embed request: %v", err)
		}
		if status := fail(n, req); status != 0 {
			http.Error(w, "embed failure", status)
			return
		}
		var resp embedResponse
		resp.Predictions = make([]struct {
			Embeddings struct {
				Values []float32 `json:"values"`
			} `json:"embeddings"`
		}, len(req.Instances))
		for i, inst := range req.Instances {
			resp.Predictions[i].Embeddings.Values = []float32{float32(len(inst.Content)), 1}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}, &calls
}

func TestEmbedderBatchesAndFallsBackToSingleTexts(t *testing.T) {
	handler, calls := embedHandler(t, func(_ int32, req embedRequest) int {
		if len(req.Instances) > 1 && req.Instances[0].Content == "a" {
			return http.StatusBadGateway
		}
		return 0
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	embedder := NewEmbedder(newTestClient(server.URL, &sessionFake{}), noRetryExecutor(1), 2)
	vectors, err := embedder.Embed(context.Background(), []string{"a", "bb", "ccc"}, domain.TaskRetrievalDocument)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i, want := range []float32{1, 2, 3} {
		if vectors[i][0] != want {
			t.Fatalf("vector %d out of order: %v", i, vectors[i])
		}
	}
	// failed batch [a bb], then a, bb, then batch [ccc]
	if got := calls.Load(); got != 4 {
		t.Fatalf("expected 4 upstream calls, got %d", got)
	}
}

func TestEmbedderInvalidatesCredentialOnAuthFailure(t *testing.T) {
	handler, calls := embedHandler(t, func(n int32, _ embedRequest) int {
		if n == 1 {
			return http.StatusUnauthorized
		}
		return 0
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	sessions := &sessionFake{}
	embedder := NewEmbedder(newTestClient(server.URL, sessions), noRetryExecutor(1), 16)
	vectors, err := embedder.Embed(context.Background(), []string{"query"}, domain.TaskRetrievalQuery)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 1 || calls.Load() != 2 {
		t.Fatalf("expected retry with a fresh session, got %d vectors after %d calls", len(vectors), calls.Load())
	}
	if sessions.invalidated.Load() != 1 || sessions.acquisitions.Load() != 2 {
		t.Fatalf("expected one invalidation and two acquisitions, got %d and %d", sessions.invalidated.Load(), sessions.acquisitions.Load())
	}
	if got := sessions.lastRejected.Load(); got != 1 {
		t.Fatalf("expected the rejected generation 1 to be invalidated, got %d", got)
	}
}

func TestEmbedderRetriesRateLimitWithinBound(t *testing.T) {
	handler, calls := embedHandler(t, func(n int32, _ embedRequest) int {
		if n < 3 {
			return http.StatusTooManyRequests
		}
		return 0
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	embedder := NewEmbedder(newTestClient(server.URL, &sessionFake{}), noRetryExecutor(3), 16)
	if _, err := embedder.Embed(context.Background(), []string{"q"}, domain.TaskRetrievalQuery); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}

	alwaysLimited, limitedCalls := embedHandler(t, func(int32, embedRequest) int { return http.StatusTooManyRequests })
	limited := httptest.NewServer(alwaysLimited)
	defer limited.Close()

	embedder = NewEmbedder(newTestClient(limited.URL, &sessionFake{}), noRetryExecutor(3), 16)
	_, err := embedder.Embed(context.Background(), []string{"q"}, domain.TaskRetrievalQuery)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary after exhausting retries, got %v", err)
	}
	if limitedCalls.Load() != 3 {
		t.Fatalf("expected retries bounded at 3, got %d", limitedCalls.Load())
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("2"); got != 2*time.Second {
		t.Fatalf("parseRetryAfter(2) = %s", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Fatalf("parseRetryAfter(soon) = %s", got)
	}
}
