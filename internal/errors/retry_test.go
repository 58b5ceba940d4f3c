package errors

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestRetryTransientErrorExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return Transient(errors.New("flaky"))
	}, nil)

	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryPermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return Permanent(errors.New("bad request"))
	}, nil)

	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryWithResultSucceedsAfterFailure(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastConfig(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Transient(errors.New("not yet"))
		}
		return "ok", nil
	}, nil)

	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, calls)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastConfig(), func(ctx context.Context) error {
		t.Fatal("fn should not run with cancelled context")
		return nil
	}, nil)
	require.Error(t, err)
}

func TestFromHTTPStatusClassification(t *testing.T) {
	base := errors.New("request failed")

	require.True(t, IsTransient(FromHTTPStatus(http.StatusTooManyRequests, base)))
	require.True(t, IsTransient(FromHTTPStatus(http.StatusBadGateway, base)))
	require.False(t, IsTransient(FromHTTPStatus(http.StatusBadRequest, base)))
	require.True(t, IsPermanent(FromHTTPStatus(http.StatusUnauthorized, base)))
}

func TestCalculateBackoffIsCapped(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 8 * time.Second}
	d := calculateBackoff(6, cfg)
	require.LessOrEqual(t, d, 8*time.Second)
}
