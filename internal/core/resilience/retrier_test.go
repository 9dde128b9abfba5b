package resilience

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (s *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func sequence(values ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestCall_SucceedsAfterTransientFailures(t *testing.T) {
	sleeps := &recordedSleeps{}
	r := NewRetrier(DefaultPolicy(),
		WithSleep(sleeps.sleep),
		WithRandom(sequence(0)),
		WithRetrierLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	)

	calls := 0
	got, err := Call(context.Background(), r, "generate", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Wrap(KindConnection, "generate", errors.New("connection reset"))
		}
		return "Antwort", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Antwort", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.delays)
}

func TestCall_StopsAtMaxAttempts(t *testing.T) {
	var logs bytes.Buffer
	sleeps := &recordedSleeps{}
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 4 * time.Second, Jitter: 0.5}
	r := NewRetrier(policy,
		WithSleep(sleeps.sleep),
		WithRandom(sequence(0.9, 0.1, 0.5, 0)),
		WithRetrierLogger(slog.New(slog.NewJSONHandler(&logs, nil))),
	)

	calls := 0
	_, err := Call(context.Background(), r, "generate", func(ctx context.Context) (int, error) {
		calls++
		return 0, Wrap(KindRateLimit, "generate", errors.New("429"))
	})

	require.Error(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, KindRateLimit, KindOf(err))
	assert.True(t, IsRecoverable(err))

	require.Len(t, sleeps.delays, 4)
	for i := 1; i < len(sleeps.delays); i++ {
		assert.GreaterOrEqual(t, sleeps.delays[i], sleeps.delays[i-1])
	}
	for _, d := range sleeps.delays {
		assert.LessOrEqual(t, d, 4*time.Second)
	}

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	assert.Len(t, lines, 5, "失敗した試行ごとに1回だけログを出す")
}

func TestCall_DoesNotRetryPermanentErrors(t *testing.T) {
	sleeps := &recordedSleeps{}
	r := NewRetrier(DefaultPolicy(), WithSleep(sleeps.sleep))

	calls := 0
	base := errors.New("invalid request")
	_, err := Call(context.Background(), r, "generate", func(ctx context.Context) (string, error) {
		calls++
		return "", Wrap(KindInvalidResponse, "generate", base)
	})

	require.ErrorIs(t, err, base)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeps.delays)
}

func TestCall_CustomRetryablePredicate(t *testing.T) {
	sentinel := errors.New("retry me")
	policy := Policy{MaxAttempts: 3, Retryable: func(err error) bool { return errors.Is(err, sentinel) }}
	r := NewRetrier(policy, WithSleep(func(context.Context, time.Duration) error { return nil }))

	calls := 0
	err := r.Do(context.Background(), "load", func(ctx context.Context) error {
		calls++
		return sentinel
	})

	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestCall_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRetrier(DefaultPolicy())

	calls := 0
	_, err := Call(ctx, r, "generate", func(ctx context.Context) (string, error) {
		calls++
		return "", Wrap(KindAPIError, "generate", errors.New("503"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, KindAPIError, KindOf(err))
}
