package ingest

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds archive fetch attempts. The wait before retry n
// (1-based) is n*Step, so the default policy waits 1s then 2s.
type RetryPolicy struct {
	MaxAttempts int
	Step        time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Step: time.Second}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	return backoff.WithMaxRetries(
		backoff.WithContext(&linearBackOff{step: p.Step}, ctx),
		uint64(p.attempts()-1),
	)
}

type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) Reset() { b.n = 0 }

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}
