package conn

import (
	"math"
	"math/rand/v2"
	"time"
)

// backoff computes reconnect delays: min(base * 2^attempt, cap) plus random
// jitter in [0, jitter). A single authoritative attempt counter lives here;
// the manager resets it on successful connect and on manual Reconnect.
type backoff struct {
	base        time.Duration
	cap         time.Duration
	jitter      time.Duration
	maxAttempts int
	attempt     int
}

// exhausted reports whether the attempt budget is spent.
func (b *backoff) exhausted() bool {
	return b.maxAttempts > 0 && b.attempt >= b.maxAttempts
}

// next returns the delay for the upcoming attempt and advances the counter.
func (b *backoff) next() time.Duration {
	exp := math.Min(
		float64(b.base)*math.Pow(2, float64(b.attempt)),
		float64(b.cap),
	)
	b.attempt++
	delay := time.Duration(exp)
	if b.jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(b.jitter)))
	}
	return delay
}

func (b *backoff) reset() {
	b.attempt = 0
}
