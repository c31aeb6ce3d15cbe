package recorder

import (
	"context"
	"errors"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

// Nop discards interactions.
type Nop struct{}

func (Nop) Record(context.Context, domain.Interaction) error { return nil }

// FanOut delivers each interaction to every sink, even when an earlier one
// fails, and joins the failures.
type FanOut struct {
	sinks []ports.InteractionRecorder
}

func NewFanOut(sinks ...ports.InteractionRecorder) ports.InteractionRecorder {
	kept := make([]ports.InteractionRecorder, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	switch len(kept) {
	case 0:
		return Nop{}
	case 1:
		return kept[0]
	default:
		return &FanOut{sinks: kept}
	}
}

func (f *FanOut) Record(ctx context.Context, interaction domain.Interaction) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Record(ctx, interaction); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
