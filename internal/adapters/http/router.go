package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/cors"

	"github.com/kirillkom/docs-assistant/internal/config"
	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
	"github.com/kirillkom/docs-assistant/internal/observability/metrics"
)

const maxRequestBodyBytes = 64 << 10

type HealthReport struct {
	Status     string `json:"status"`
	Mode       string `json:"mode"`
	Retrieval  string `json:"retrieval"`
	Credential string `json:"credential"`
}

type HealthFunc func(ctx context.Context) HealthReport

type Router struct {
	cfg     config.Config
	chat    ports.ChatService
	health  HealthFunc
	metrics *metrics.ServerMetrics
	spec    *openapi3.T
}

func NewRouter(cfg config.Config, chat ports.ChatService, health HealthFunc, serverMetrics *metrics.ServerMetrics) (*Router, error) {
	if chat == nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "new router", errors.New("chat service is required"))
	}
	spec, err := LoadAPISpec()
	if err != nil {
		return nil, err
	}
	if health == nil {
		health = func(context.Context) HealthReport { return HealthReport{Status: "ok"} }
	}
	return &Router{
		cfg:     cfg,
		chat:    chat,
		health:  health,
		metrics: serverMetrics,
		spec:    spec,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/health", rt.healthStatus)
	mux.HandleFunc("/openapi.json", openAPIHandler(rt.spec))
	mux.HandleFunc("/api/chat/stream", rt.streamChat)
	mux.HandleFunc("/api/chat", rt.postChat)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = openAPIValidationMiddleware(rt.spec, handler)
	handler = apiKeyMiddleware(handler, rt.cfg.APIKey)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = corsMiddleware(handler, rt.cfg.CORSAllowedOrigins)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func corsMiddleware(next http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader},
	}).Handler(next)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) healthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.health(r.Context()))
}

func (rt *Router) streamChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported"})
		return
	}

	params := r.URL.Query()
	topK, err := parseTopK(params.Get("topK"))
	if err != nil {
		writeError(w, err)
		return
	}
	query := domain.Query{
		Text:      params.Get("q"),
		Corpus:    params.Get("corpus"),
		TopK:      topK,
		SessionID: params.Get("sessionId"),
		RequestID: requestIDFromContext(r.Context()),
	}

	sse := newSSEWriter(w, flusher)
	if err := rt.chat.Stream(r.Context(), query, sse.Send); err != nil && !sse.started {
		writeError(w, err)
	}
}

type chatRequest struct {
	Q         string `json:"q"`
	SessionID string `json:"sessionId"`
	TopK      int    `json:"topK"`
	Corpus    string `json:"corpus"`
}

func (rt *Router) postChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	answer, err := rt.chat.Answer(r.Context(), domain.Query{
		Text:      req.Q,
		Corpus:    req.Corpus,
		TopK:      req.TopK,
		SessionID: req.SessionID,
		RequestID: requestIDFromContext(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func parseTopK(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse topK", fmt.Errorf("topK must be an integer: %q", raw))
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
