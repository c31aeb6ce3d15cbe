package domain

import (
	"strings"
	"time"
)

type Intent string

const (
	IntentGreeting Intent = "GREETING"
	IntentClosure  Intent = "CLOSURE"
	IntentOffTopic Intent = "OFF_TOPIC"
	IntentRAGQuery Intent = "RAG_QUERY"
)

// ParseIntent maps a label to an Intent. Anything unrecognized is a RAG query.
func ParseIntent(label string) Intent {
	switch Intent(strings.ToUpper(strings.TrimSpace(label))) {
	case IntentGreeting:
		return IntentGreeting
	case IntentClosure:
		return IntentClosure
	case IntentOffTopic:
		return IntentOffTopic
	default:
		return IntentRAGQuery
	}
}

// NeedsRetrieval reports whether the intent is answered from the corpus.
func (i Intent) NeedsRetrieval() bool {
	return i == IntentRAGQuery
}

// Query is immutable once received.
type Query struct {
	Text      string
	Corpus    string
	TopK      int
	SessionID string
	RequestID string
}

// Answer is the drained form of a streamed response.
type Answer struct {
	Text      string     `json:"answer"`
	Intent    Intent     `json:"intent"`
	Citations []Citation `json:"citations"`
	Latency   float64    `json:"latency"`
}

// Outcome of a single chat request, as recorded in metrics and the interaction log.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeAuthRecovery Outcome = "auth_recovery"
	OutcomeFailed       Outcome = "failed"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeCrashed      Outcome = "crashed"
)

// Interaction is the log entry written after every chat request, including
// partial answers that never reached the caller.
type Interaction struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"requestId,omitempty"`
	SessionID     string    `json:"sessionId,omitempty"`
	Corpus        string    `json:"corpus"`
	Intent        Intent    `json:"intent"`
	RetrievalMode string    `json:"retrievalMode"`
	Query         string    `json:"query"`
	ChunkIDs      []string  `json:"chunkIds"`
	Answer        string    `json:"answer"`
	Outcome       Outcome   `json:"outcome"`
	Fragments     int       `json:"fragments"`
	Latency       float64   `json:"latency"`
	CreatedAt     time.Time `json:"createdAt"`
}
