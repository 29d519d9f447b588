package application

import (
	"context"
	"time"

	"archie-core-sync-layer/internal/domain"
)

// RetryPolicy bounds retries of retryable connector failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns the wait before the next attempt after attempt failures.
// An upstream hint wins when it is longer than the backoff.
func (p RetryPolicy) Delay(attempt int, hint time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if hint > d {
		d = hint
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// retryState is the retry bookkeeping of one failing unit of work. It is
// kept with the work itself; nothing sleeps on it.
type retryState struct {
	Attempts     int
	NextEligible time.Time
	LastErr      error
}

// Eligible reports whether the next attempt may run at now.
func (st retryState) Eligible(now time.Time) bool {
	return !now.Before(st.NextEligible)
}

// Next records a failed attempt. It reports false when err is permanent or
// the attempts are exhausted; otherwise the returned state carries the time
// the next attempt becomes eligible.
func (p RetryPolicy) Next(st retryState, err error, now time.Time) (retryState, bool) {
	st.Attempts++
	st.LastErr = err
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if !domain.IsRetryable(err) || st.Attempts >= maxAttempts {
		return st, false
	}
	st.NextEligible = now.Add(p.Delay(st.Attempts, domain.RetryAfterHint(err)))
	return st, true
}

// waitUntil blocks until t or until ctx is done. Only synchronous callers
// use it; scheduled jobs park instead.
func waitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
