package recorder

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

type sinkFake struct {
	err   error
	calls int
}

func (s *sinkFake) Record(context.Context, domain.Interaction) error {
	s.calls++
	return s.err
}

func TestFanOutDeliversToAllSinksAndJoinsErrors(t *testing.T) {
	failing := &sinkFake{err: errors.New("db down")}
	ok := &sinkFake{}
	r := NewFanOut(failing, nil, ok)

	err := r.Record(context.Background(), domain.Interaction{ID: "i-1"})
	if err == nil || !errors.Is(err, failing.err) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Fatalf("expected every sink called once, got %d/%d", failing.calls, ok.calls)
	}
}

func TestNewFanOutCollapsesTrivialCases(t *testing.T) {
	if _, ok := NewFanOut().(Nop); !ok {
		t.Fatalf("expected Nop for no sinks")
	}
	single := &sinkFake{}
	if got := NewFanOut(nil, single); got != single {
		t.Fatalf("expected the single sink itself, got %T", got)
	}
}
