package client

import (
	"context"
	"time"
)

// Completer turns a prompt into text. Summarizers use it to reach an
// external text-completion service.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Config selects and configures a completion provider.
type Config struct {
	Provider        string // "gemini", "ollama" or "none"
	Model           string
	APIKey          string
	BaseURL         string
	Timeout         time.Duration
	Temperature     float32
	MaxOutputTokens int32
	Retry           RetryConfig
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
