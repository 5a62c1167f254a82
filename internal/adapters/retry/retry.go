// Package retry runs calls to external services with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/sashabaranov/go-openai"
)

// Policy bounds the retry loop. MaxAttempts counts the first call.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         float64 // 0..1, fraction of each delay randomized
}

// DefaultPolicy retries three times: 200ms, 400ms, 800ms.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 4, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 5 * time.Second, Jitter: 0.2}
}

// NoRetry makes a single attempt.
func NoRetry() Policy { return Policy{MaxAttempts: 1} }

// Backoff returns the delays between attempts, capped at MaxBackoff.
func (p Policy) Backoff() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	delays := retrier.ExponentialBackoff(p.MaxAttempts-1, p.InitialBackoff)
	if p.MaxBackoff > 0 {
		for i, d := range delays {
			if d > p.MaxBackoff {
				delays[i] = p.MaxBackoff
			}
		}
	}
	return delays
}

// OnRetry is called before every attempt after the first.
type OnRetry func(attempt int, lastErr error)

// Do runs fn until it succeeds, fails permanently, the attempts run out or ctx
// is done. Only errors accepted by Retriable are retried.
func (p Policy) Do(ctx context.Context, onRetry OnRetry, fn func(ctx context.Context) error) error {
	r := retrier.New(p.Backoff(), classifier{})
	if p.Jitter > 0 {
		r.SetJitter(p.Jitter)
	}

	attempt := 0
	var lastErr error
	return r.RunCtx(ctx, func(ctx context.Context) error {
		if attempt > 0 && onRetry != nil {
			onRetry(attempt, lastErr)
		}
		attempt++
		lastErr = fn(ctx)
		return lastErr
	})
}

type classifier struct{}

func (classifier) Classify(err error) retrier.Action {
	switch {
	case err == nil:
		return retrier.Succeed
	case Retriable(err):
		return retrier.Retry
	default:
		return retrier.Fail
	}
}

// StatusError carries a non-2xx HTTP status from an external service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// ClassifyOpenAI turns go-openai HTTP failures into a StatusError so the
// policy can see the status code. Other errors pass through.
func ClassifyOpenAI(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return err
}

// Retriable reports whether err is transient: rate limiting, 5xx responses,
// timeouts and dropped connections.
func Retriable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
