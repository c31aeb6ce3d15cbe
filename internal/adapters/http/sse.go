package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

// sseWriter writes stream events as server-sent events. Headers are committed
// with the first event so that validation errors can still be sent as JSON.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter, flusher http.Flusher) *sseWriter {
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) start() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

func (s *sseWriter) Send(event domain.StreamEvent) error {
	if !s.started {
		s.start()
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Kind, encodeEventData(event)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// encodeEventData always yields valid JSON; a done payload that cannot be
// encoded degrades to an empty object.
func encodeEventData(event domain.StreamEvent) []byte {
	var (
		payload []byte
		err     error
	)
	switch event.Kind {
	case domain.EventMeta:
		payload, err = json.Marshal(event.Meta)
	case domain.EventToken:
		payload, err = json.Marshal(event.Token)
	case domain.EventDone:
		payload, err = json.Marshal(event.Done)
	default:
		err = fmt.Errorf("unknown event kind %q", event.Kind)
	}
	if err != nil || string(payload) == "null" {
		return []byte("{}")
	}
	return payload
}
