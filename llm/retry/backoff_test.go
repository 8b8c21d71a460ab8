package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	r := NewRetryer(fastPolicy(3), nil)
	calls := 0
	got, err := Do(context.Background(), r, func(int) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	var attempts []int
	p := fastPolicy(3)
	retried := 0
	p.OnRetry = func(int, error, time.Duration) { retried++ }
	r := NewRetryer(p, nil)

	got, err := Do(context.Background(), r, func(attempt int) (int, error) {
		attempts = append(attempts, attempt)
		if attempt < 2 {
			return 0, errors.New("temporary")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []int{0, 1, 2}, attempts)
	assert.Equal(t, 2, retried)
}

func TestDo_Exhausted(t *testing.T) {
	errPersistent := errors.New("persistent")
	r := NewRetryer(fastPolicy(2), nil)
	calls := 0
	_, err := Do(context.Background(), r, func(int) (struct{}, error) {
		calls++
		return struct{}{}, errPersistent
	})
	require.ErrorIs(t, err, errPersistent)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestDo_NoRetryReturnsErrorAsIs(t *testing.T) {
	errOnce := errors.New("once")
	r := NewRetryer(fastPolicy(0), nil)
	_, err := Do(context.Background(), r, func(int) (int, error) { return 0, errOnce })
	assert.Equal(t, errOnce, err)
}

func TestDo_NonRetryableStops(t *testing.T) {
	errFatal := errors.New("fatal")
	p := fastPolicy(5)
	p.Retryable = func(err error) bool { return !errors.Is(err, errFatal) }
	r := NewRetryer(p, nil)

	calls := 0
	_, err := Do(context.Background(), r, func(int) (int, error) {
		calls++
		return 0, errFatal
	})
	require.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	p := fastPolicy(5)
	p.InitialDelay = time.Second
	p.MaxDelay = time.Second
	r := NewRetryer(p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, r, func(int) (int, error) {
		calls++
		cancel()
		return 0, errors.New("fail")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNewRetryer_Defaults(t *testing.T) {
	r := NewRetryer(Policy{MaxRetries: -1, Multiplier: 0.5}, nil)
	p := r.Policy()
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, DefaultPolicy().InitialDelay, p.InitialDelay)
	assert.Equal(t, DefaultPolicy().MaxDelay, p.MaxDelay)
	assert.Equal(t, 2.0, p.Multiplier)
}

func TestDelay_Bounded(t *testing.T) {
	r := NewRetryer(Policy{MaxRetries: 10, InitialDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond, Multiplier: 2, Jitter: true}, nil)
	for attempt := 1; attempt <= 10; attempt++ {
		d := r.delay(attempt)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 50*time.Millisecond)
	}
}
