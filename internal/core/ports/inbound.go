package ports

import (
	"context"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

// EventSink receives stream events in emission order. A non-nil error means the
// caller is gone and nothing more should be written.
type EventSink func(event domain.StreamEvent) error

// ChatService is the inbound contract for answering questions over a corpus.
type ChatService interface {
	// Stream validates the query, then emits meta, tokens and a terminal done
	// event through emit. A returned error means nothing was emitted.
	Stream(ctx context.Context, query domain.Query, emit EventSink) error
	// Answer drains the same pipeline server-side.
	Answer(ctx context.Context, query domain.Query) (*domain.Answer, error)
}
