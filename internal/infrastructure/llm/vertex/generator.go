package vertex

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func newGenerateRequest(system, prompt string, temperature float64, maxTokens int) generateRequest {
	req := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
		},
	}
	if strings.TrimSpace(system) != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	return req
}

// Generator streams grounded answers from the generation model.
type Generator struct {
	client *Client
}

func (g *Generator) Generate(ctx context.Context, req ports.GenerationRequest, onFragment func(string) error) error {
	const operation = "stream generate"
	c := g.client
	payload := newGenerateRequest(req.Persona, buildAnswerPrompt(req.Query, req.Chunks), c.temperature, c.maxTokens)

	resp, session, err := c.do(ctx, c.modelURL(c.genModel, "streamGenerateContent")+"?alt=sse", payload, operation)
	if err != nil {
		return wrapUpstreamError(operation, err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("decode %s event: %w", operation, err)
		}
		if chunk.Error != nil {
			return wrapUpstreamError(operation, &HTTPStatusError{
				Operation:  operation,
				StatusCode: chunk.Error.Code,
				Status:     fmt.Sprintf("%d %s", chunk.Error.Code, chunk.Error.Status),
				Body:       chunk.Error.Message,
				Generation: session.Generation,
			})
		}
		if text := chunk.text(); text != "" {
			if err := onFragment(text); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return wrapUpstreamError(operation, fmt.Errorf("read %s stream: %w", operation, err))
	}
	return nil
}

// Completer runs short, bounded generation calls such as intent labelling.
type Completer struct {
	client *Client
}

func (c *Completer) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	const operation = "generate"
	payload := newGenerateRequest(req.System, req.Prompt, req.Temperature, req.MaxTokens)

	var response generateResponse
	endpoint := c.client.modelURL(c.client.genModel, "generateContent")
	if err := c.client.postJSON(ctx, endpoint, payload, &response, operation); err != nil {
		return "", wrapUpstreamError(operation, err)
	}
	if response.Error != nil {
		return "", wrapUpstreamError(operation, &HTTPStatusError{
			Operation:  operation,
			StatusCode: response.Error.Code,
			Status:     http.StatusText(response.Error.Code),
			Body:       response.Error.Message,
		})
	}
	text := strings.TrimSpace(response.text())
	if text == "" {
		return "", errors.New("vertex generate: empty response")
	}
	return text, nil
}
