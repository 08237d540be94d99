package application

import (
	"context"
	"time"
)

const (
	DefaultReconnectAttempts  = 5
	DefaultReconnectBaseDelay = time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultReconnectJitter    = 0.2
)

// Backoff computes reconnect delays: base doubled per attempt, capped at Max,
// then spread by ±Jitter.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:   DefaultReconnectBaseDelay,
		Max:    DefaultReconnectMaxDelay,
		Jitter: DefaultReconnectJitter,
	}
}

// Delay returns the wait before retry number attempt (1-based). sample is a
// uniform value in [0,1].
func (b Backoff) Delay(attempt int, sample float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = DefaultReconnectBaseDelay
	}
	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = DefaultReconnectMaxDelay
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			delay = maxDelay
			break
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	return jitter(delay, b.Jitter, sample)
}

func jitter(base time.Duration, ratio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	if ratio <= 0 {
		return base
	}
	if ratio > 1 {
		ratio = 1
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*ratio
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
