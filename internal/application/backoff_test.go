package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	b := DefaultBackoff()
	cases := []struct {
		name    string
		attempt int
		sample  float64
		want    time.Duration
	}{
		{name: "first attempt no jitter", attempt: 1, sample: 0.5, want: time.Second},
		{name: "second attempt doubles", attempt: 2, sample: 0.5, want: 2 * time.Second},
		{name: "fifth attempt", attempt: 5, sample: 0.5, want: 16 * time.Second},
		{name: "capped at max", attempt: 9, sample: 0.5, want: 30 * time.Second},
		{name: "lower jitter bound", attempt: 1, sample: 0, want: 800 * time.Millisecond},
		{name: "upper jitter bound", attempt: 1, sample: 1, want: 1200 * time.Millisecond},
		{name: "attempt below one", attempt: 0, sample: 0.5, want: time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, float64(tc.want), float64(b.Delay(tc.attempt, tc.sample)), float64(time.Microsecond))
		})
	}
}

func TestBackoffWithoutJitter(t *testing.T) {
	t.Parallel()

	b := Backoff{Base: 10 * time.Millisecond, Max: 25 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, b.Delay(1, 0))
	assert.Equal(t, 20*time.Millisecond, b.Delay(2, 1))
	assert.Equal(t, 25*time.Millisecond, b.Delay(3, 0.3))
}

func TestWaitWithContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := waitWithContext(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
