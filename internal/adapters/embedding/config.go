// Package embedding provides adapters implementing ports.EmbeddingService.
package embedding

import (
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/adapters/retry"
)

// RetryObserver is notified of every retried call.
type RetryObserver interface {
	Retry(service string)
}

// Config is shared by the embedding adapters.
type Config struct {
	BaseURL   string
	Model     string
	APIKey    string
	BatchSize int
	Timeout   time.Duration
	Retry     retry.Policy
	Logger    *zap.Logger
	Observer  RetryObserver
}

func (c *Config) setDefaults(baseURL, model string, timeout time.Duration) {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.BatchSize < 1 {
		c.BatchSize = 64
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
		c.Logger.Warn("retrying embedding call",
			zap.String("provider", provider),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if c.Observer != nil {
			c.Observer.Retry("embedding")
		}
	}
}

// batches splits n items into [start, end) ranges of at most size.
func batches(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
