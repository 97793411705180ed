// Package openai implements the embedding interface against an
// OpenAI-compatible embeddings endpoint.
package openai

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"ragpipe/internal/domain"
)

// Config configures the embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	BatchSize int

	// RequestsPerSec and Burst bound outbound calls so parallel ingestion
	// stays under the endpoint's rate limit.
	RequestsPerSec float64
	Burst          int
}

// Client embeds text via the OpenAI embeddings API.
type Client struct {
	client    *openai.Client
	model     string
	batchSize int
	limiter   *rate.Limiter
	dimension int
}

// NewClient creates a new embeddings client using the provided
// configuration. A missing API key is a fatal configuration error.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, &domain.ConfigError{Key: cfg.APIKeyEnv, Reason: "API key environment variable is not set"}
	}
	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 16
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
	}
	dim := 1536
	if model == "text-embedding-3-large" {
		dim = 3072
	}
	return &Client{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		batchSize: batch,
		limiter:   limiter,
		dimension: dim,
	}, nil
}

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, &domain.ValidationError{Reason: "cannot embed empty text"}
	}
	vecs, err := c.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per input, in input order. Inputs are
// sent in batches of the configured size.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.request(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) request(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: texts,
	})
	if err != nil {
		return nil, classify("embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.New("embeddings response count does not match input")
	}
	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
		if c.dimension == 0 {
			c.dimension = len(d.Embedding)
		}
	}
	return vecs, nil
}

// classify maps an API error onto the pipeline error taxonomy: rate
// limits, timeouts and 5xx are retryable, auth failures are fatal.
func classify(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500:
			return &domain.TransientError{Op: op, Err: err}
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return &domain.ConfigError{Key: "api_key", Reason: err.Error()}
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TransientError{Op: op, Err: err}
	}
	return err
}
