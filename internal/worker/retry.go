package worker

import (
	"math/rand"
	"time"
)

// RetryPolicy is an exponential backoff with jitter. The client's default
// retries a failed offload once; every attempt runs under the task's
// original id, and no new task id is issued. MaxAttempts exposes the
// attempt count as a knob rather than hard-coding it.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries once.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Delay returns the backoff duration before attempt n (1-indexed), with
// +/-10% jitter to avoid thundering-herd retries against the Worker.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt-1)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 5 + 1))
	return d - (d / 10) + jitter
}

// Do runs fn up to MaxAttempts times, sleeping Delay between attempts,
// returning the last error if every attempt fails.
func (p RetryPolicy) Do(fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := fn(attempt); err != nil {
			lastErr = err
			if attempt < p.MaxAttempts {
				time.Sleep(p.Delay(attempt))
			}
			continue
		}
		return nil
	}
	return lastErr
}
