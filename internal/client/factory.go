package client

import (
	"context"
	"fmt"
	"strings"

	"pilot/internal/logging"
)

// New creates the completer named by cfg.Provider. It returns ErrNoProvider
// for "none" or an empty provider.
func New(ctx context.Context, cfg Config) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	logging.Debug("creating completer", "provider", provider, "model", cfg.Model)

	switch provider {
	case "", "none":
		return nil, ErrNoProvider
	case "gemini":
		return NewGeminiClient(ctx, cfg)
	case "ollama":
		return NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}
