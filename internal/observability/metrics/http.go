package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

const namespace = "docs"

// ServerMetrics owns a private registry with the HTTP, chat, retrieval and
// credential collectors of one process.
type ServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	chatRequestsTotal   *prometheus.CounterVec
	chatModeTotal       *prometheus.CounterVec
	chatRetrievedChunks *prometheus.HistogramVec
	chatDuration        *prometheus.HistogramVec
	tierFailuresTotal   *prometheus.CounterVec
	credentialRefreshes *prometheus.CounterVec
	streamFragments     *prometheus.CounterVec
}

func NewServerMetrics(service string) *ServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chatRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total chat requests by intent and outcome.",
		},
		[]string{"service", "intent", "outcome"},
	)
	chatModeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "retrieval_mode_total",
			Help:      "Total chat requests by the retrieval tier that served them.",
		},
		[]string{"service", "mode"},
	)
	chatRetrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved chunks per chat request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	chatDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "End-to-end chat duration in seconds, including streaming.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service"},
	)
	tierFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "tier_failures_total",
			Help:      "Retriever tiers that failed to construct.",
		},
		[]string{"service", "corpus", "tier"},
	)
	credentialRefreshes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "refresh_total",
			Help:      "Credential refresh attempts by status.",
		},
		[]string{"service", "status"},
	)
	streamFragments := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "fragments_total",
			Help:      "Answer fragments forwarded to callers.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		chatRequestsTotal,
		chatModeTotal,
		chatRetrievedChunks,
		chatDuration,
		tierFailuresTotal,
		credentialRefreshes,
		streamFragments,
	)

	return &ServerMetrics{
		registry:            registry,
		service:             service,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		chatRequestsTotal:   chatRequestsTotal,
		chatModeTotal:       chatModeTotal,
		chatRetrievedChunks: chatRetrievedChunks,
		chatDuration:        chatDuration,
		tierFailuresTotal:   tierFailuresTotal,
		credentialRefreshes: credentialRefreshes,
		streamFragments:     streamFragments,
	}
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := normalizePath(r.URL.Path)
		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps label cardinality bounded.
func normalizePath(path string) string {
	switch path {
	case "/api/chat", "/api/chat/stream", "/health", "/healthz", "/metrics", "/openapi.json":
		return path
	default:
		return "other"
	}
}

func (m *ServerMetrics) RecordChat(intent domain.Intent, outcome domain.Outcome, retrievalMode string, chunks, fragments int, duration time.Duration) {
	if retrievalMode == "" {
		retrievalMode = "unknown"
	}
	m.chatRequestsTotal.WithLabelValues(m.service, string(intent), string(outcome)).Inc()
	m.chatModeTotal.WithLabelValues(m.service, retrievalMode).Inc()
	m.chatRetrievedChunks.WithLabelValues(m.service).Observe(float64(chunks))
	m.chatDuration.WithLabelValues(m.service).Observe(duration.Seconds())
	if fragments > 0 {
		m.streamFragments.WithLabelValues(m.service).Add(float64(fragments))
	}
}

func (m *ServerMetrics) RecordTierFailure(corpus, tier string) {
	m.tierFailuresTotal.WithLabelValues(m.service, corpus, tier).Inc()
}

func (m *ServerMetrics) RecordCredentialRefresh(status string) {
	if status == "" {
		status = "unknown"
	}
	m.credentialRefreshes.WithLabelValues(m.service, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
