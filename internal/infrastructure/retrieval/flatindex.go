package retrieval

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

var flatIndexMagic = [8]byte{'D', 'A', 'F', 'L', 'A', 'T', '0', '1'}

const maxFlatIndexValues = 1 << 30

// FlatIndex is an exhaustive inner-product index over unit-length rows.
type FlatIndex struct {
	dim  int
	rows [][]float32
}

type indexHit struct {
	Index int
	Score float64
}

// NewFlatIndex copies and L2-normalizes vectors. All vectors must share a dimension.
func NewFlatIndex(vectors [][]float32) (*FlatIndex, error) {
	if len(vectors) == 0 {
		return &FlatIndex{}, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("flat index: zero dimension")
	}
	rows := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("flat index: row %d has dimension %d, want %d", i, len(v), dim)
		}
		if j := nonFiniteAt(v); j >= 0 {
			return nil, fmt.Errorf("flat index: row %d has non-finite value at %d", i, j)
		}
		rows[i] = l2Normalize(v)
	}
	return &FlatIndex{dim: dim, rows: rows}, nil
}

func (x *FlatIndex) Dim() int   { return x.dim }
func (x *FlatIndex) Count() int { return len(x.rows) }

// Search returns at most k hits ordered by descending inner product. query must
// already be normalized.
func (x *FlatIndex) Search(query []float32, k int) ([]indexHit, error) {
	if k <= 0 || len(x.rows) == 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("flat index: query dimension %d, want %d", len(query), x.dim)
	}

	hits := make([]indexHit, len(x.rows))
	for i, row := range x.rows {
		var dot float64
		for j, v := range row {
			dot += float64(v) * float64(query[j])
		}
		hits[i] = indexHit{Index: i, Score: dot}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// ReadFlatIndex decodes the binary layout written by WriteFlatIndex.
func ReadFlatIndex(r io.Reader) (*FlatIndex, error) {
	br := bufio.NewReader(r)

	var magic [8]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("read flat index header: %w", err)
	}
	if magic != flatIndexMagic {
		return nil, errors.New("flat index: bad magic")
	}
	var header struct {
		Dim   uint32
		Count uint32
	}
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read flat index header: %w", err)
	}
	if header.Count == 0 {
		return &FlatIndex{dim: int(header.Dim)}, nil
	}
	if header.Dim == 0 {
		return nil, errors.New("flat index: zero dimension")
	}
	if uint64(header.Dim)*uint64(header.Count) > maxFlatIndexValues {
		return nil, fmt.Errorf("flat index: %d x %d exceeds size limit", header.Count, header.Dim)
	}

	dim := int(header.Dim)
	rows := make([][]float32, header.Count)
	for i := range rows {
		row := make([]float32, dim)
		if err := binary.Read(br, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("read flat index row %d: %w", i, err)
		}
		if j := nonFiniteAt(row); j >= 0 {
			return nil, fmt.Errorf("flat index: row %d has non-finite value at %d", i, j)
		}
		rows[i] = l2Normalize(row)
	}
	return &FlatIndex{dim: dim, rows: rows}, nil
}

func WriteFlatIndex(w io.Writer, vectors [][]float32) error {
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(flatIndexMagic[:]); err != nil {
		return fmt.Errorf("write flat index header: %w", err)
	}
	header := [2]uint32{uint32(dim), uint32(len(vectors))}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write flat index header: %w", err)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("write flat index: row %d has dimension %d, want %d", i, len(v), dim)
		}
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write flat index row %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// nonFiniteAt returns the position of the first NaN or Inf in v, or -1.
func nonFiniteAt(v []float32) int {
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i
		}
	}
	return -1
}

func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
