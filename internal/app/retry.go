package app

import "time"

// RetryPolicy bounds how often and how long a tenant's provisioning is tried.
type RetryPolicy struct {
	MaxAttempts    int
	Backoff        []time.Duration // delay before attempt n+1 is Backoff[n-1]
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy is three attempts spaced 1m, 5m, 15m, each capped at 10 minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Backoff:        []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute},
		AttemptTimeout: 10 * time.Minute,
	}
}

// Exhausted reports whether no attempt may follow the given one.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Delay returns the wait before the attempt that follows attempt. The last
// backoff entry repeats when the schedule is shorter than the budget.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(p.Backoff) {
		i = len(p.Backoff) - 1
	}
	return p.Backoff[i]
}
