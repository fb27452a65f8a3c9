// Package retry re-runs sink writes with exponential backoff and jitter.
// The audit log and the roster view use it to ride out short database and
// cache outages.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff describes the wait between attempts.
type Backoff struct {
	// Initial is the wait before the first retry.
	Initial time.Duration
	// Max caps every wait.
	Max time.Duration
	// Multiplier grows the wait after each retry; values below 1 mean 1.
	Multiplier float64
	// Jitter spreads each wait by up to ±Jitter of its length (0 to 1).
	Jitter float64
}

// Delay returns the wait before the n-th retry, counting from 1.
func (b Backoff) Delay(n int) time.Duration {
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(b.Initial) * math.Pow(mult, float64(n-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += d * math.Min(b.Jitter, 1) * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Policy decides how often and for which errors an operation is re-run.
type Policy struct {
	// Attempts counts the first call; values below 1 mean 1.
	Attempts int

	Backoff Backoff

	// RetryIf selects the errors worth another attempt. Nil retries none.
	RetryIf func(error) bool

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DatabasePolicy is tuned for audit log inserts.
func DatabasePolicy(retryIf func(error) bool) Policy {
	return Policy{
		Attempts: 3,
		Backoff:  Backoff{Initial: 50 * time.Millisecond, Max: time.Second, Multiplier: 2, Jitter: 0.05},
		RetryIf:  retryIf,
	}
}

// CachePolicy is tuned for roster view writes. Snapshots are rewritten on
// the next flush anyway, so it gives up quickly.
func CachePolicy(retryIf func(error) bool) Policy {
	return Policy{
		Attempts: 2,
		Backoff:  Backoff{Initial: 20 * time.Millisecond, Max: 200 * time.Millisecond, Multiplier: 2, Jitter: 0.1},
		RetryIf:  retryIf,
	}
}

// Retrier runs operations under a Policy.
type Retrier struct {
	policy Policy
}

// New creates a Retrier.
func New(p Policy) *Retrier {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	return &Retrier{policy: p}
}

// Do calls op until it succeeds, returns an error RetryIf rejects, the
// attempts run out or ctx is done. It returns the last error of op; a
// context that ends before the first call yields ctx.Err().
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt >= r.policy.Attempts || r.policy.RetryIf == nil || !r.policy.RetryIf(err) {
			return err
		}

		delay := r.policy.Backoff.Delay(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
