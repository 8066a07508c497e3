package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"pilot/internal/logging"
)

// OllamaClient completes prompts with a local or remote Ollama server.
type OllamaClient struct {
	client  *api.Client
	model   string
	options map[string]any
	retry   RetryConfig
}

// authTransport adds Authorization header to HTTP requests.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(reqClone)
}

// NewOllamaClient creates an Ollama client.
func NewOllamaClient(cfg Config) (*OllamaClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}

	if baseURL.Scheme == "http" {
		host := baseURL.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			logging.Warn("Ollama connection uses unencrypted HTTP to remote host",
				"host", host,
				"recommendation", "use HTTPS for remote Ollama servers")
		}
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.APIKey != "" {
		httpClient.Transport = &authTransport{base: http.DefaultTransport, apiKey: cfg.APIKey}
	}

	options := map[string]any{"temperature": cfg.Temperature}
	if cfg.MaxOutputTokens > 0 {
		options["num_predict"] = cfg.MaxOutputTokens
	}

	return &OllamaClient{
		client:  api.NewClient(baseURL, httpClient),
		model:   cfg.Model,
		options: options,
		retry:   cfg.Retry,
	}, nil
}

// Name implements Completer.
func (c *OllamaClient) Name() string {
	return "ollama/" + c.model
}

// Complete implements Completer.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	return withRetry(ctx, "ollama", c.retry, func(ctx context.Context) (string, error) {
		req := &api.GenerateRequest{
			Model:   c.model,
			Prompt:  prompt,
			Stream:  Ptr(false),
			Options: c.options,
		}

		var sb strings.Builder
		err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
			sb.WriteString(resp.Response)
			return nil
		})
		if err != nil {
			return "", c.wrapError(err)
		}

		text := strings.TrimSpace(sb.String())
		if text == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	})
}

func (c *OllamaClient) wrapError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return fmt.Errorf("ollama server not reachable (is 'ollama serve' running?): %w", err)
	case strings.Contains(msg, "not found"):
		return fmt.Errorf("ollama model %q not found (try 'ollama pull %s'): %w", c.model, c.model, err)
	}
	return fmt.Errorf("ollama generate: %w", err)
}
