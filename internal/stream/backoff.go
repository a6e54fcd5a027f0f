package stream

import (
	"math"
	"time"
)

// Backoff computes the delay before reconnect attempt n (1-indexed).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same interval before every attempt.
type FixedBackoff time.Duration

// Delay implements Backoff.
func (b FixedBackoff) Delay(int) time.Duration {
	return time.Duration(b)
}

// ExponentialBackoff grows the delay by Multiplier per attempt, capped at Max.
type ExponentialBackoff struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultExponentialBackoff returns a backoff starting at initial and
// doubling up to 30s.
func DefaultExponentialBackoff(initial time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{
		Initial:    initial,
		Multiplier: 2.0,
		Max:        30 * time.Second,
	}
}

// Delay implements Backoff. The delay is Initial * Multiplier^(attempt-1),
// capped at Max.
func (b *ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		return b.Max
	}
	return time.Duration(delay)
}
