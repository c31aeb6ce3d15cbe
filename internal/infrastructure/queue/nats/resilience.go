package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/resilience"
)

// A closed connection never reopens, and subject or payload errors repeat on
// every attempt, so none of these are worth a retry or a breaker failure.
var permanentPublishErrors = []error{
	nats.ErrConnectionClosed,
	nats.ErrBadSubject,
	nats.ErrMaxPayload,
}

// Publish fails with these while the client is reconnecting in the background.
var transientPublishErrors = []error{
	nats.ErrTimeout,
	nats.ErrDisconnected,
	nats.ErrNoServers,
	nats.ErrConnectionReconnecting,
}

func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		// Recording happens after the response; waiting out an open breaker
		// would only hold the handler.
		return resilience.ErrorClassification{}
	case matchesAny(err, permanentPublishErrors):
		return resilience.ErrorClassification{}
	case matchesAny(err, transientPublishErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// wrapPublishError marks failures that may succeed later (transient publish
// errors, open breaker) as ErrTemporary.
func wrapPublishError(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if resilience.IsCircuitOpen(err) || matchesAny(err, transientPublishErrors) {
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	}
	return err
}
