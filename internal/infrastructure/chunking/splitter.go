package chunking

import (
	"strings"
	"unicode"
)

const (
	defaultChunkSize = 900
	// A window may end up to this fraction early to land on whitespace.
	boundarySlack = 0.2
)

// Splitter cuts text into overlapping rune windows, preferring to end each
// window on whitespace so words are not split.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	for start := 0; start < len(runes); {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = snapToSpace(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		start = overlapStart(runes, start, end, s.Overlap)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// overlapStart moves back by overlap runes from end, then forward to the next
// word start so the following window does not begin mid-word.
func overlapStart(runes []rune, start, end, overlap int) int {
	next := end - overlap
	if next <= start {
		return end
	}
	for next < end && next > 0 && !unicode.IsSpace(runes[next-1]) {
		next++
	}
	return next
}

func snapToSpace(runes []rune, start, end int) int {
	floor := end - int(float64(end-start)*boundarySlack)
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
