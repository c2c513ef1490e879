package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Equal(t, 5, cfg.MaxSameErrorType)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"uppercase", errors.New("Connection Reset by peer"), true},
		{"i/o timeout", errors.New("i/o timeout"), true},
		{"deadlock detected", errors.New("deadlock detected"), true},
		{"proxy 503", errors.New("failed execute query: status 503: busy"), true},
		{"throttling", errors.New("operation error IAM: Throttling: Rate exceeded"), true},
		{"auth error", errors.New("Login failed for user 'sa'"), false},
		{"syntax error", errors.New("Incorrect syntax near 'FROM'"), false},
		{"proxy 400", errors.New("failed execute query: status 400: bad"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

type declaredError struct{ retry bool }

func (e declaredError) Error() string     { return "connection refused" }
func (e declaredError) IsRetryable() bool { return e.retry }

func TestIsRetryable_DeclaredWins(t *testing.T) {
	assert.False(t, IsRetryable(declaredError{retry: false}))
	assert.True(t, IsRetryable(declaredError{retry: true}))
}

func TestDoIfRetryable(t *testing.T) {
	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
			calls++
			if calls < 3 {
				return errors.New("connection timeout")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns permanent errors immediately", func(t *testing.T) {
		want := errors.New("authentication failed")
		calls := 0
		err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
			calls++
			return want
		})
		assert.Equal(t, want, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("escalates repeated error type", func(t *testing.T) {
		cfg := fastConfig(10)
		cfg.MaxSameErrorType = 2
		calls := 0
		err := DoIfRetryable(context.Background(), cfg, func() error {
			calls++
			return errors.New("status 503")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "repeated error (2 times, type=503)")
		assert.Equal(t, 2, calls)
	})

	t.Run("exhausts retries", func(t *testing.T) {
		calls := 0
		err := DoIfRetryable(context.Background(), fastConfig(2), func() error {
			calls++
			if calls%2 == 0 {
				return errors.New("connection reset by peer")
			}
			return errors.New("i/o timeout")
		})
		assert.EqualError(t, err, "i/o timeout")
		assert.Equal(t, 3, calls)
	})

	t.Run("context cancellation interrupts the wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

		calls := 0
		err := DoIfRetryable(ctx, cfg, func() error {
			calls++
			cancel()
			return errors.New("connection refused")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestLinear_Do(t *testing.T) {
	throttled := errors.New("Throttling: Rate exceeded")
	isThrottle := func(err error) bool { return err == throttled }

	t.Run("waits grow linearly", func(t *testing.T) {
		var waits []time.Duration
		l := Linear{MaxAttempts: 15, Step: 5 * time.Second, Sleep: func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}}

		calls := 0
		err := l.Do(context.Background(), isThrottle, func() error {
			calls++
			if calls <= 3 {
				return throttled
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 4, calls)
		assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}, waits)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		waits := 0
		l := Linear{MaxAttempts: 3, Step: time.Second, Sleep: func(context.Context, time.Duration) error {
			waits++
			return nil
		}}
		calls := 0
		err := l.Do(context.Background(), isThrottle, func() error {
			calls++
			return throttled
		})
		assert.Equal(t, throttled, err)
		assert.Equal(t, 4, calls)
		assert.Equal(t, 3, waits)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		other := errors.New("AccessDenied")
		calls := 0
		err := Linear{MaxAttempts: 3, Step: time.Second}.Do(context.Background(), isThrottle, func() error {
			calls++
			return other
		})
		assert.Equal(t, other, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Linear{MaxAttempts: 3, Step: time.Hour}.Do(ctx, isThrottle, func() error { return throttled })
		assert.ErrorIs(t, err, context.Canceled)
	})
}
