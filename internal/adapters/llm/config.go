// Package llm provides adapters implementing ports.LLMService.
package llm

import (
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/adapters/retry"
)

// RetryObserver is notified of every retried call.
type RetryObserver interface {
	Retry(service string)
}

// Config is shared by the generation adapters.
type Config struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	Retry       retry.Policy
	Logger      *zap.Logger
	Observer    RetryObserver
}

func (c *Config) setDefaults(baseURL, model string, timeout time.Duration) {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.MaxTokens < 1 {
		c.MaxTokens = 1000
	}
	if c.Timeout <= 0 {
		c.Timeout = timeout
	}
	if c.Retry.MaxAttempts < 1 {
		c.Retry = retry.DefaultPolicy()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

func (c *Config) onRetry(provider string) retry.OnRetry {
	return func(attempt int, lastErr error) {
		c.Logger.Warn("retrying generation call",
			zap.String("provider", provider),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if c.Observer != nil {
			c.Observer.Retry("generation")
		}
	}
}
