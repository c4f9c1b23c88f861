package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

type timeoutError struct{ timeout bool }

func (e *timeoutError) Error() string   { return "net error" }
func (e *timeoutError) Timeout() bool   { return e.timeout }
func (e *timeoutError) Temporary() bool { return false }

var _ net.Error = (*timeoutError)(nil)

func TestIsRetryableClassifiesKnownErrorShapes(t *testing.T) {
	require.False(t, IsRetryable(nil))
	require.False(t, IsRetryable(context.Canceled))
	require.True(t, IsRetryable(context.DeadlineExceeded))
	require.True(t, IsRetryable(&HTTPStatusError{StatusCode: 429}))
	require.True(t, IsRetryable(&HTTPStatusError{StatusCode: 503}))
	require.False(t, IsRetryable(&HTTPStatusError{StatusCode: 400}))
	require.False(t, IsRetryable(&HTTPStatusError{StatusCode: 422}))
	require.True(t, IsRetryable(&timeoutError{timeout: true}))
	require.False(t, IsRetryable(&timeoutError{timeout: false}))
	require.True(t, IsRetryable(errors.New("RESOURCE_EXHAUSTED: try later")))
	require.False(t, IsRetryable(errors.New("invalid argument")))
}

func TestIsRetryableProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("any HTTP 5xx or 429 is retryable", prop.ForAll(
		func(code int) bool {
			return IsRetryable(&HTTPStatusError{StatusCode: code})
		},
		gen.OneConstOf(429, 500, 502, 503, 504),
	))

	properties.Property("HTTP 4xx other than 429 is never retryable", prop.ForAll(
		func(code int) bool {
			return !IsRetryable(&HTTPStatusError{StatusCode: code})
		},
		gen.OneConstOf(400, 401, 403, 404, 409, 422),
	))

	properties.TestingRun(t)
}

func TestDoReturnsNilOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, "op", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoReturnsImmediatelyOnNonRetryableError(t *testing.T) {
	calls := 0
	wantErr := &HTTPStatusError{StatusCode: 400, Body: "bad"}
	err := Do(context.Background(), 5, time.Millisecond, "op", func(context.Context) error {
		calls++
		return wantErr
	})
	require.Equal(t, wantErr, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccessWithinBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return &HTTPStatusError{StatusCode: 503}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoReturnsExhaustedErrorWhenBudgetSpent(t *testing.T) {
	calls := 0
	retryable := &HTTPStatusError{StatusCode: 503}
	err := Do(context.Background(), 2, time.Millisecond, "op", func(context.Context) error {
		calls++
		return retryable
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, calls)
	require.Equal(t, 3, exhausted.Attempts)
	require.Equal(t, "op", exhausted.Name)
	require.ErrorIs(t, err, retryable)
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, 50, 100*time.Millisecond, "op", func(context.Context) error {
		calls++
		return &HTTPStatusError{StatusCode: 503}
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, calls, 51)
}
