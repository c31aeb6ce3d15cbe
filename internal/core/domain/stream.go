package domain

type EventKind string

const (
	EventMeta  EventKind = "meta"
	EventToken EventKind = "token"
	EventDone  EventKind = "done"
)

type MetaPayload struct {
	Citations     []Citation `json:"citations"`
	RetrievalMode string     `json:"retrievalMode"`
	Intent        Intent     `json:"intent"`
	Corpus        string     `json:"corpus"`
}

type StreamStats struct {
	Fragments   int     `json:"fragments"`
	AnswerChars int     `json:"answerChars"`
	Chunks      int     `json:"chunks"`
	Outcome     Outcome `json:"outcome"`
}

type DonePayload struct {
	Latency float64      `json:"latency"`
	Stats   *StreamStats `json:"stats,omitempty"`
}

// StreamEvent is a tagged union; exactly one of Meta, Token or Done is meaningful
// depending on Kind.
type StreamEvent struct {
	Kind  EventKind
	Meta  *MetaPayload
	Token string
	Done  *DonePayload
}

func MetaEvent(meta MetaPayload) StreamEvent {
	return StreamEvent{Kind: EventMeta, Meta: &meta}
}

func TokenEvent(text string) StreamEvent {
	return StreamEvent{Kind: EventToken, Token: text}
}

func DoneEvent(done DonePayload) StreamEvent {
	return StreamEvent{Kind: EventDone, Done: &done}
}
