// Package llm provides embedding and generation through the OpenAI API.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// EmbeddingProvider produces a fixed-dimension vector for a text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenerationProvider produces a completion from a prompt pair.
type GenerationProvider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error)
}

// Options configures a Client.
type Options struct {
	APIKey         string
	BaseURL        string // optional, for compatible providers
	EmbeddingModel string
	ChatModel      string
	Dimension      int // expected embedding width; 0 disables the check
	MaxRetries     int
	RetryDelay     time.Duration
}

// Client wraps the OpenAI API with retry for embedding and generation.
type Client struct {
	api        *openai.Client
	embedModel openai.EmbeddingModel
	chatModel  string
	dimension  int
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

var (
	_ EmbeddingProvider  = (*Client)(nil)
	_ GenerationProvider = (*Client)(nil)
)

// NewClient builds a Client. The API key is required.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	if opts.ChatModel == "" {
		opts.ChatModel = "gpt-4o-mini"
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &Client{
		api:        openai.NewClientWithConfig(cfg),
		embedModel: openai.EmbeddingModel(opts.EmbeddingModel),
		chatModel:  opts.ChatModel,
		dimension:  opts.Dimension,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		logger:     slog.Default(),
	}, nil
}

// Embed returns the embedding vector for text. It fails loudly on any
// provider problem: a silently returned zero vector would corrupt
// similarity search downstream.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: c.embedModel,
		})
		if err != nil {
			lastErr = err
			c.logger.Debug("embedding attempt failed", "attempt", attempt+1, "error", err)
			continue
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			lastErr = fmt.Errorf("provider returned no embedding data")
			continue
		}
		vec := resp.Data[0].Embedding
		if c.dimension > 0 && len(vec) != c.dimension {
			return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(vec), c.dimension)
		}
		return vec, nil
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", c.maxRetries, lastErr)
}

// Complete runs one chat completion with the given prompts.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			lastErr = err
			c.logger.Debug("completion attempt failed", "attempt", attempt+1, "error", err)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("provider returned no completion choices")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", c.maxRetries, lastErr)
}
