package retrieval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
)

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
	opens map[string]int
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}, opens: map[string]int{}}
}

func (s *memStore) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.files[key] = raw
	s.mu.Unlock()
	return nil
}

func (s *memStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens[key]++
	raw, ok := s.files[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrArtifactNotFound, "open", fmt.Errorf("key=%s", key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type embedderFake struct {
	vector []float32
	err    error
	calls  int
	task   string
}

func (f *embedderFake) Embed(_ context.Context, texts []string, taskType string) ([][]float32, error) {
	f.calls++
	f.task = taskType
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

var errEmbed = errors.New("embedding backend down")

func testRegistry() []domain.Chunk {
	return []domain.Chunk{
		{ChunkID: "c1", Text: "Configure the proxy with the settings file", Meta: domain.DocumentMeta{DocID: "d1", DocTitle: "Setup Guide"}},
		{ChunkID: "c2", Text: "Proxy timeouts are configured per route", Meta: domain.DocumentMeta{DocID: "d1", DocTitle: "Setup Guide"}},
		{ChunkID: "c3", Text: "Release notes for version two", Meta: domain.DocumentMeta{DocID: "d2", DocTitle: "Release Notes"}},
	}
}

func putRegistry(t *testing.T, store *memStore, key string, chunks []domain.Chunk) {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteRegistry(&buf, chunks); err != nil {
		t.Fatalf("WriteRegistry() error = %v", err)
	}
	store.files[key] = buf.Bytes()
}

func putFlatIndex(t *testing.T, store *memStore, key string, vectors [][]float32) {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteFlatIndex(&buf, vectors); err != nil {
		t.Fatalf("WriteFlatIndex() error = %v", err)
	}
	store.files[key] = buf.Bytes()
}

func putLexicalModel(t *testing.T, store *memStore, key string, chunks []domain.Chunk) {
	t.Helper()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	var buf bytes.Buffer
	if err := WriteLexicalModel(&buf, FitLexicalModel(texts)); err != nil {
		t.Fatalf("WriteLexicalModel() error = %v", err)
	}
	store.files[key] = buf.Bytes()
}

func assertDescending(t *testing.T, chunks []domain.Chunk) {
	t.Helper()
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Score > chunks[i-1].Score {
			t.Fatalf("results not sorted by descending score: %v", chunks)
		}
	}
}
