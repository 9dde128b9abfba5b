package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	calls int
	last  CompletionRequest
}

func (s *stubCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	s.calls++
	s.last = req
	return "Antwort", nil
}

func (s *stubCompleter) ModelName() string { return "stub-model" }

func TestThrottledCompleter(t *testing.T) {
	inner := &stubCompleter{}
	c := NewThrottledCompleter(inner, 10)

	got, err := c.Complete(context.Background(), CompletionRequest{System: "sys", User: "frage"})
	require.NoError(t, err)
	assert.Equal(t, "Antwort", got)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "frage", inner.last.User)
	assert.Equal(t, "stub-model", c.ModelName())

	status := c.Status()
	assert.Equal(t, 10, status.PerMinute)
	assert.InDelta(t, 9, status.Available, 0.1)
	assert.Contains(t, status.String(), "10/min")
}

func TestThrottledCompleter_ContextCancelled(t *testing.T) {
	inner := &stubCompleter{}
	c := NewThrottledCompleter(inner, 1)

	_, err := c.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Complete(ctx, CompletionRequest{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestThrottledCompleter_BlocksWhenBudgetExhausted(t *testing.T) {
	inner := &stubCompleter{}
	c := NewThrottledCompleter(inner, 2)

	for i := 0; i < 2; i++ {
		_, err := c.Complete(context.Background(), CompletionRequest{})
		require.NoError(t, err)
	}

	// 次のトークンは30秒後なので、短い期限では待たずに失敗する
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Complete(ctx, CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestThrottledCompleter_MinimumOnePerMinute(t *testing.T) {
	c := NewThrottledCompleter(&stubCompleter{}, 0)
	assert.Equal(t, 1, c.Status().PerMinute)
}
