package domain

import "testing"

func TestCitationsDeduplicateByTitleInFirstSeenOrder(t *testing.T) {
	chunks := []Chunk{
		{ChunkID: "c1", Meta: DocumentMeta{DocTitle: "Setup Guide"}, Score: 0.9},
		{ChunkID: "c3", Meta: DocumentMeta{DocTitle: "Release Notes"}, Score: 0.85},
		{ChunkID: "c2", Meta: DocumentMeta{DocTitle: "Setup Guide"}, Score: 0.8},
	}

	citations := Citations(chunks)
	if len(citations) != 2 {
		t.Fatalf("expected 2 citations, got %+v", citations)
	}
	if citations[0] != (Citation{ID: "c1", Title: "Setup Guide", Score: 0.9}) {
		t.Fatalf("expected first-seen chunk to represent its document, got %+v", citations[0])
	}
	if citations[1].Title != "Release Notes" {
		t.Fatalf("unexpected second citation %+v", citations[1])
	}
}

func TestCitationsOfNoChunksIsEmptyNotNil(t *testing.T) {
	if got := Citations(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty slice, got %#v", got)
	}
}

func TestParseIntentCoercesUnknownLabels(t *testing.T) {
	cases := map[string]Intent{
		"GREETING":     IntentGreeting,
		" closure\n":   IntentClosure,
		"Off_Topic":    IntentOffTopic,
		"RAG_QUERY":    IntentRAGQuery,
		"I think it's": IntentRAGQuery,
		"":             IntentRAGQuery,
	}
	for label, want := range cases {
		if got := ParseIntent(label); got != want {
			t.Fatalf("ParseIntent(%q) = %s, want %s", label, got, want)
		}
	}
}

func TestTitleFromPath(t *testing.T) {
	cases := map[string]string{
		"guides/proxy_setup.md":  "Proxy Setup",
		"release-notes.txt":      "Release Notes",
		"README":                 "README",
		"docs\\windows-guide.md": "Windows Guide",
	}
	for in, want := range cases {
		if got := TitleFromPath(in); got != want {
			t.Fatalf("TitleFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}
