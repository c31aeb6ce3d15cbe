package retrieval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

const maxRegistryLine = 16 << 20

// ReadRegistry parses a JSON Lines chunk registry. Blank lines are skipped.
func ReadRegistry(r io.Reader) ([]domain.Chunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRegistryLine)

	var chunks []domain.Chunk
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var chunk domain.Chunk
		if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
			return nil, fmt.Errorf("decode registry line %d: %w", line, err)
		}
		chunk.Score = 0
		chunks = append(chunks, chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan registry: %w", err)
	}
	return chunks, nil
}

func WriteRegistry(w io.Writer, chunks []domain.Chunk) error {
	enc := json.NewEncoder(w)
	for _, chunk := range chunks {
		chunk.Score = 0
		if err := enc.Encode(chunk); err != nil {
			return fmt.Errorf("encode registry chunk %s: %w", chunk.ChunkID, err)
		}
	}
	return nil
}

func loadRegistry(ctx context.Context, store ports.ArtifactStore, key string) ([]domain.Chunk, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadRegistry(rc)
}

// annotate returns a copy of registry[idx] carrying score.
func annotate(registry []domain.Chunk, idx int, score float64) domain.Chunk {
	chunk := registry[idx]
	chunk.Score = score
	return chunk
}
