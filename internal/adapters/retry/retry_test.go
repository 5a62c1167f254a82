package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	var retried []int
	err := fastPolicy(4).Do(context.Background(), func(attempt int, _ error) {
		retried = append(retried, attempt)
	}, func(context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{StatusCode: 503}
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := fastPolicy(4).Do(context.Background(), nil, func(context.Context) error {
		calls++
		return &StatusError{StatusCode: 400, Body: "bad input"}
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_BoundedAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), nil, func(context.Context) error {
		calls++
		return &StatusError{StatusCode: 429}
	})

	var se *StatusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, 3, calls)
}

func TestDo_NoRetry(t *testing.T) {
	calls := 0
	_ = NoRetry().Do(context.Background(), nil, func(context.Context) error {
		calls++
		return &StatusError{StatusCode: 500}
	})
	assert.Equal(t, 1, calls)
}

func TestBackoff_Capped(t *testing.T) {
	p := Policy{MaxAttempts: 6, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond,
		300 * time.Millisecond, 300 * time.Millisecond,
	}, p.Backoff())
	assert.Nil(t, NoRetry().Backoff())
}

func TestRetriable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&StatusError{StatusCode: 429}, true},
		{&StatusError{StatusCode: 502}, true},
		{&StatusError{StatusCode: 401}, false},
		{fmt.Errorf("call: %w", &StatusError{StatusCode: 500}), true},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{errors.New("malformed response"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Retriable(c.err), "%v", c.err)
	}
}

func TestClassifyOpenAI(t *testing.T) {
	assert.NoError(t, ClassifyOpenAI(nil))

	var se *StatusError
	err := ClassifyOpenAI(fmt.Errorf("create: %w", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}))
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, 429, se.StatusCode)
	assert.Equal(t, "slow down", se.Body)
	assert.True(t, Retriable(err))

	err = ClassifyOpenAI(&openai.RequestError{HTTPStatusCode: 401, Err: errors.New("unauthorized")})
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, 401, se.StatusCode)
	assert.False(t, Retriable(err))

	plain := errors.New("dial tcp: refused")
	assert.Same(t, plain, ClassifyOpenAI(plain))
}
