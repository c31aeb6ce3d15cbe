package chunking

import (
	"strings"
	"testing"
)

func TestSplitterDefaultsAndOverlapBounds(t *testing.T) {
	s := NewSplitter(0, -1)
	if s.ChunkSize != 900 || s.Overlap != 0 {
		t.Fatalf("unexpected defaults %+v", s)
	}
	s = NewSplitter(100, 100)
	if s.Overlap != 25 {
		t.Fatalf("overlap must be clamped below chunk size, got %d", s.Overlap)
	}
}

func TestSplitterKeepsWordsWhole(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 20)
	chunks := NewSplitter(50, 10).Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	words := map[string]bool{"alpha": true, "beta": true, "gamma": true, "delta": true}
	for _, chunk := range chunks {
		if len([]rune(chunk)) > 50 {
			t.Fatalf("chunk exceeds size: %q", chunk)
		}
		for _, w := range strings.Fields(chunk) {
			if !words[w] {
				t.Fatalf("chunk splits a word: %q", chunk)
			}
		}
	}
}

func TestSplitterCoversTextWithoutSpaces(t *testing.T) {
	text := strings.Repeat("x", 25)
	chunks := NewSplitter(10, 0).Split(text)
	if strings.Join(chunks, "") != text {
		t.Fatalf("chunks must cover the text, got %v", chunks)
	}
	if NewSplitter(10, 2).Split("   ") != nil {
		t.Fatalf("blank text must yield no chunks")
	}
}
