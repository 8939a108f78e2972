package replay

import (
	"math/rand"
	"time"
)

// Backoff computes the delay before an action's next replay attempt.
type Backoff struct {
	// Initial is the delay after the first failure.
	Initial time.Duration

	// Max caps the delay.
	Max time.Duration

	// Multiplier grows the delay per failed attempt.
	Multiplier float64
}

// DefaultBackoff returns the default replay backoff schedule.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    30 * time.Second,
		Max:        15 * time.Minute,
		Multiplier: 2.0,
	}
}

// ForAttempt returns the delay after the given failed attempt count
// (1 = first failure), with ±20% jitter to spread replay bursts.
func (b Backoff) ForAttempt(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Initial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * b.Multiplier)
		if delay >= b.Max {
			delay = b.Max
			break
		}
	}
	if delay > b.Max {
		delay = b.Max
	}
	return time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4))
}
