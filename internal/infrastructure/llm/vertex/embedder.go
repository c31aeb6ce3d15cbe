package vertex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docs-assistant/internal/infrastructure/resilience"
)

type embedInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type,omitempty"`
}

type embedRequest struct {
	Instances []embedInstance `json:"instances"`
}

type embedResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// Embedder batches texts through the embedding model. Each batch is retried by
// the executor; a batch that still fails is embedded one text at a time.
type Embedder struct {
	client    *Client
	executor  *resilience.Executor
	batchSize int
}

func (e *Embedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		vectors, err := e.embedBatch(ctx, batch, taskType)
		if err != nil {
			if ctx.Err() != nil || len(batch) == 1 || IsAuthorizationFailure(err) {
				return nil, wrapUpstreamError("embed", err)
			}
			slog.Warn("embed_batch_failed",
				"batch_start", start,
				"batch_size", len(batch),
				"error", err,
			)
			vectors, err = e.embedEach(ctx, batch, taskType)
			if err != nil {
				return nil, wrapUpstreamError("embed", err)
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) embedEach(ctx context.Context, batch []string, taskType string) ([][]float32, error) {
	out := make([][]float32, 0, len(batch))
	for _, text := range batch {
		vectors, err := e.embedBatch(ctx, []string{text}, taskType)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors[0])
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string, taskType string) ([][]float32, error) {
	call := func(callCtx context.Context) ([][]float32, error) {
		vectors, err := e.predict(callCtx, batch, taskType)
		var statusErr *HTTPStatusError
		if IsAuthorizationFailure(err) && errors.As(err, &statusErr) {
			// One fresh credential per attempt; a second 401/403 is final.
			e.client.sessions.InvalidateGeneration(statusErr.Generation)
			vectors, err = e.predict(callCtx, batch, taskType)
		}
		return vectors, err
	}
	if e.executor == nil {
		return call(ctx)
	}
	return resilience.ExecuteValue(ctx, e.executor, "vertex.embed", call, classifyVertexError)
}

func (e *Embedder) predict(ctx context.Context, batch []string, taskType string) ([][]float32, error) {
	req := embedRequest{Instances: make([]embedInstance, len(batch))}
	for i, text := range batch {
		req.Instances[i] = embedInstance{Content: text, TaskType: taskType}
	}

	var resp embedResponse
	endpoint := e.client.modelURL(e.client.embedModel, "predict")
	if err := e.client.postJSON(ctx, endpoint, req, &resp, "embed"); err != nil {
		return nil, err
	}
	if len(resp.Predictions) != len(batch) {
		return nil, fmt.Errorf("vertex embed: got %d embeddings for %d texts", len(resp.Predictions), len(batch))
	}
	out := make([][]float32, len(resp.Predictions))
	for i, p := range resp.Predictions {
		out[i] = p.Embeddings.Values
	}
	return out, nil
}
