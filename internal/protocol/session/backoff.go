package session

import (
	"time"

	"github.com/jpillora/backoff"
)

const (
	defaultBackoffMin = 100 * time.Millisecond
	defaultBackoffMax = 10 * time.Second
)

// Backoff is the reconnect delay schedule. Without jitter, Duration values
// are non-decreasing until Reset and never exceed Max.
type Backoff struct {
	b   *backoff.Backoff
	max time.Duration
}

func NewBackoff(cfg BackoffConfig) *Backoff {
	ceiling := cfg.MaxDelay
	if ceiling <= 0 {
		ceiling = defaultBackoffMax
	}
	floor := cfg.InitialDelay
	if floor <= 0 {
		floor = defaultBackoffMin
	}
	return &Backoff{
		b: &backoff.Backoff{
			Min:    floor,
			Max:    ceiling,
			Factor: cfg.Multiplier,
			Jitter: cfg.Jitter,
		},
		max: ceiling,
	}
}

// Duration returns the next delay and advances Attempts.
func (b *Backoff) Duration() time.Duration {
	return b.b.Duration()
}

func (b *Backoff) Attempts() int {
	return int(b.b.Attempt())
}

func (b *Backoff) Reset() {
	b.b.Reset()
}

func (b *Backoff) Max() time.Duration {
	return b.max
}
