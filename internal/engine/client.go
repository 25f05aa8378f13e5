package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"emberquest/server/internal/config"
)

const (
	maxRetries = 3
	retryDelay = 1 * time.Second
)

// Client wraps an OpenAI-compatible chat API behind a configurable base URL.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewClient(cfg config.NarratorConfig) *Client {
	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}
	apiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		client:      openai.NewClientWithConfig(apiConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Complete sends a chat completion request, retrying transient failures with
// a linear backoff.
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay * time.Duration(attempt)):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
		})
		if err != nil {
			lastErr = err
			if !isRetryableError(err) {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no choices returned from model")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

// isRetryableError checks if an error is retryable
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "status code: 429") ||
		strings.Contains(msg, "status code: 5")
}
