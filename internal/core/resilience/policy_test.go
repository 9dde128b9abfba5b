package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second, Jitter: 0.5}

	tests := []struct {
		name    string
		attempt int
		r       float64
		want    time.Duration
	}{
		{name: "1回目ジッタなし", attempt: 1, r: 0, want: time.Second},
		{name: "2回目ジッタなし", attempt: 2, r: 0, want: 2 * time.Second},
		{name: "3回目ジッタ最大", attempt: 3, r: 1, want: 6 * time.Second},
		{name: "上限で頭打ち", attempt: 5, r: 0, want: 10 * time.Second},
		{name: "0以下は1回目扱い", attempt: 0, r: 0, want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Delay(tt.attempt, tt.r))
		})
	}
}

func TestPolicy_DelayIsNonDecreasing(t *testing.T) {
	p := DefaultPolicy()
	randoms := []float64{0.99, 0, 0.99, 0, 0.5, 0.99, 0, 0.3}

	prev := time.Duration(0)
	for i, r := range randoms {
		d := p.Delay(i+1, r)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", i+1)
		assert.LessOrEqual(t, d, p.MaxDelay)
		prev = d
	}
}

func TestPolicy_JitterIsClamped(t *testing.T) {
	p := Policy{BaseDelay: time.Second, Jitter: 3}
	assert.Equal(t, 2*time.Second, p.Delay(1, 1))
}
