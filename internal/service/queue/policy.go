package queue

import (
	"math"
	"time"
)

// RetryPolicy bounds explicit retries. MaxAttempts counts every attempt,
// including the first one made by Process.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Multiplier  float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseBackoff: 30 * time.Second,
		MaxBackoff:  30 * time.Minute,
		Multiplier:  2,
	}
}

// Exhausted reports whether no attempt may follow the given count.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// Backoff is the wait after the attempts-th failed attempt.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 || p.BaseBackoff <= 0 {
		return 0
	}

	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := float64(p.BaseBackoff) * math.Pow(mult, float64(attempts-1))
	if p.MaxBackoff > 0 && delay > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(delay)
}

// NextRetryAt returns when the next retry becomes allowed, or nil when exhausted.
func (p RetryPolicy) NextRetryAt(attempts int, lastAttempt time.Time) *time.Time {
	if p.Exhausted(attempts) {
		return nil
	}
	at := lastAttempt.Add(p.Backoff(attempts))
	return &at
}
