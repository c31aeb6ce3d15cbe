package vertex

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kirillkom/docs-assistant/internal/infrastructure/auth"
	"github.com/kirillkom/docs-assistant/internal/infrastructure/resilience"
)

// SessionSource hands out authenticated sessions and forgets them on demand.
type SessionSource interface {
	AcquireSession(ctx context.Context) (*auth.Session, error)
	InvalidateGeneration(generation uint64)
}

type Options struct {
	BaseURL         string
	Project         string
	Location        string
	GenerationModel string
	EmbeddingModel  string

	// UserHeader/UserID add a caller identity header expected by some gateways.
	UserHeader string
	UserID     string

	Temperature float64
	MaxTokens   int
}

type Client struct {
	baseURL    string
	project    string
	location   string
	genModel   string
	embedModel string
	userHeader string
	userID     string

	temperature float64
	maxTokens   int

	sessions SessionSource
}

func New(opts Options, sessions SessionSource) *Client {
	location := opts.Location
	if location == "" {
		location = "us-central1"
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		project:     opts.Project,
		location:    location,
		genModel:    opts.GenerationModel,
		embedModel:  opts.EmbeddingModel,
		userHeader:  opts.UserHeader,
		userID:      opts.UserID,
		temperature: opts.Temperature,
		maxTokens:   maxTokens,
		sessions:    sessions,
	}
}

func (c *Client) modelURL(model, method string) string {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
		c.baseURL,
		url.PathEscape(c.project),
		url.PathEscape(c.location),
		url.PathEscape(model),
		method,
	)
}

func NewEmbedder(client *Client, executor *resilience.Executor, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Embedder{client: client, executor: executor, batchSize: batchSize}
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}
