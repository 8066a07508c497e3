package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"pilot/internal/logging"
)

// GeminiClient completes prompts with the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	config  *genai.GenerateContentConfig
	timeout time.Duration
	retry   RetryConfig
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key required; set PILOT_API_KEY or GEMINI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: Ptr(cfg.Temperature),
	}
	if cfg.MaxOutputTokens > 0 {
		genConfig.MaxOutputTokens = cfg.MaxOutputTokens
	}

	logging.Debug("created gemini completer", "model", cfg.Model)
	return &GeminiClient{
		client:  client,
		model:   cfg.Model,
		config:  genConfig,
		timeout: cfg.Timeout,
		retry:   cfg.Retry,
	}, nil
}

// Name implements Completer.
func (c *GeminiClient) Name() string {
	return "gemini/" + c.model
}

// Complete implements Completer.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return withRetry(ctx, "gemini", c.retry, func(ctx context.Context) (string, error) {
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), c.config)
		if err != nil {
			return "", fmt.Errorf("gemini generate: %w", err)
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	})
}
