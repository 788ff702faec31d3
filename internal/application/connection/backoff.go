package connection

import "time"

const (
	DefaultBackoffInitial = time.Second
	DefaultBackoffCeiling = 5 * time.Minute
)

// Backoff is the exponential reconnect policy. It is owned by the manager's
// maintenance loop and is not safe for concurrent use.
type Backoff struct {
	Initial  time.Duration
	Ceiling  time.Duration
	failures int
}

// NewBackoff returns a policy with defaults applied to non-positive values.
func NewBackoff(initial, ceiling time.Duration) *Backoff {
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	if ceiling < initial {
		ceiling = initial
	}
	return &Backoff{Initial: initial, Ceiling: ceiling}
}

// Delay is min(Initial·2^failures, Ceiling).
func (b *Backoff) Delay() time.Duration {
	d := b.Initial
	for i := 0; i < b.failures; i++ {
		if d > b.Ceiling/2 {
			return b.Ceiling
		}
		d *= 2
	}
	if d > b.Ceiling {
		return b.Ceiling
	}
	return d
}

// Fail records a failed attempt and returns the wait to apply before the
// next one.
func (b *Backoff) Fail() time.Duration {
	d := b.Delay()
	b.failures++
	return d
}

// Reset returns the policy to Initial after a successful connect.
func (b *Backoff) Reset() {
	b.failures = 0
}

// Failures is the number of consecutive failures recorded.
func (b *Backoff) Failures() int {
	return b.failures
}
