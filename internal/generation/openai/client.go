// Package openai implements the generation interface against an
// OpenAI-compatible chat completions endpoint.
package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ragpipe/internal/domain"
)

// Config configures the chat completions client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
}

// Client generates answers via the OpenAI chat completions API.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewClient creates a new generation client using the provided
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
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Generate returns the complete answer for the prompt in one call.
func (c *Client) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(prompt, false))
	if err != nil {
		return "", classify("generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream returns a pull-based token stream for the prompt. The
// caller cancels by closing the stream without draining it.
func (c *Client) GenerateStream(ctx context.Context, prompt domain.Prompt) (domain.TokenStream, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(prompt, true))
	if err != nil {
		return nil, classify("generate_stream", err)
	}
	return &tokenStream{stream: stream}, nil
}

func (c *Client) buildRequest(prompt domain.Prompt, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.User},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	}
}

type tokenStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns the next text increment, or io.EOF when the model is done.
func (s *tokenStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", classify("generate_stream", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

// Close releases the underlying connection.
func (s *tokenStream) Close() error {
	s.stream.Close()
	return nil
}

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
