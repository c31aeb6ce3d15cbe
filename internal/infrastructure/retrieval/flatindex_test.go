package retrieval

import (
	"bytes"
	"math"
	"testing"
)

func TestFlatIndexRoundTripNormalizesRows(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFlatIndex(&buf, [][]float32{{3, 4}, {0, 2}}); err != nil {
		t.Fatalf("WriteFlatIndex() error = %v", err)
	}
	index, err := ReadFlatIndex(&buf)
	if err != nil {
		t.Fatalf("ReadFlatIndex() error = %v", err)
	}
	if index.Count() != 2 || index.Dim() != 2 {
		t.Fatalf("unexpected shape count=%d dim=%d", index.Count(), index.Dim())
	}

	hits, err := index.Search([]float32{0, 1}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Index != 1 || math.Abs(hits[0].Score-1) > 1e-6 {
		t.Fatalf("expected exact match first, got %+v", hits[0])
	}
	if math.Abs(hits[1].Score-0.8) > 1e-6 {
		t.Fatalf("expected cosine 0.8 for normalized row, got %+v", hits[1])
	}
}

func TestFlatIndexSearchBoundsK(t *testing.T) {
	index, err := NewFlatIndex([][]float32{{1, 0}, {0, 1}, {1, 1}})
	if err != nil {
		t.Fatalf("NewFlatIndex() error = %v", err)
	}
	hits, err := index.Search([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Index != 0 {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if _, err := index.Search([]float32{1, 0, 0}, 1); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestReadFlatIndexRejectsBadMagic(t *testing.T) {
	if _, err := ReadFlatIndex(bytes.NewReader([]byte("NOTANIDX\x02\x00\x00\x00\x01\x00\x00\x00"))); err == nil {
		t.Fatalf("expected bad magic error")
	}
}

func TestFlatIndexRejectsNonFiniteRows(t *testing.T) {
	nan := float32(math.NaN())
	var buf bytes.Buffer
	if err := WriteFlatIndex(&buf, [][]float32{{nan, 1}, {1, 0}, {0, 1}}); err != nil {
		t.Fatalf("WriteFlatIndex() error = %v", err)
	}
	if _, err := ReadFlatIndex(&buf); err == nil {
		t.Fatalf("expected NaN row to be rejected at load")
	}

	if _, err := NewFlatIndex([][]float32{{1, 0}, {float32(math.Inf(1)), 0}}); err == nil {
		t.Fatalf("expected Inf row to be rejected")
	}
}
