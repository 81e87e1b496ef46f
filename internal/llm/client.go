// Package llm generates response text through the Anthropic API. The
// rest of the engine treats it as "prompt in, text out"; model and
// sampling settings are injected once at construction.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hochfrequenz/triagebot/internal/config"
)

// Generator is the text-generation surface workflows depend on.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

const maxAttempts = 3

// Client calls the Anthropic messages API. The API key is read from
// ANTHROPIC_API_KEY by the SDK.
type Client struct {
	api         anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

func New(cfg config.LLMConfig) *Client {
	return &Client{
		api:         anthropic.NewClient(),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}
}

// Model names the configured model, used in comment signatures.
func (c *Client) Model() string { return c.model }

// Generate produces response text for a prompt, retrying transient API
// failures with exponential backoff.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			slog.Warn("llm call failed, retrying", "attempt", attempt, "backoff", backoff, "err", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		msg, err := c.api.Messages.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRetryable(err) {
				continue
			}
			return "", fmt.Errorf("llm request: %w", err)
		}
		if len(msg.Content) == 0 {
			return "", fmt.Errorf("llm returned empty content")
		}
		return msg.Content[0].Text, nil
	}
	return "", fmt.Errorf("llm request after %d attempts: %w", maxAttempts, lastErr)
}

func isRetryable(err error) bool {
	s := err.Error()
	for _, marker := range []string{"429", "529", "overloaded", "rate limit", "timeout", "connection reset"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
