package interpreter

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryKind discriminates the two retry policies SPEC_FULL.md §4.F names.
type RetryKind int

const (
	// RetryNone propagates the first failure without retrying.
	RetryNone RetryKind = iota
	// RetryCircuitBreaker retries up to MaxContiguousRetries times per
	// service before asking the ServiceSelector to advance. OpenTime is
	// not consulted: an advanced-away service is not reopened.
	RetryCircuitBreaker
)

// RetryPolicy configures how HTTP failures translate into retries and
// service failover, per profile-provider settings (SPEC_FULL.md §3, §4.F).
type RetryPolicy struct {
	Kind                 RetryKind
	MaxContiguousRetries int
	RequestTimeout       time.Duration
	HedgeBackoff         time.Duration
	OpenTime             time.Duration
}

// backoffFor builds the per-attempt hedge delay sequence for the
// policy, reusing cenkalti/backoff's constant-backoff primitive so the
// interpreter doesn't hand-roll a retry-timer loop.
func (p RetryPolicy) backoffFor(ctx context.Context) backoff.BackOffContext {
	delay := p.HedgeBackoff
	if delay <= 0 {
		delay = 0
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(maxInt(p.MaxContiguousRetries, 0)))
	return backoff.WithContext(b, ctx)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// isRetryableStatus reports whether an HTTP status code should be
// treated as a transient failure the retry policy can act on.
func isRetryableStatus(status int) bool {
	return status == 0 || status == 408 || status == 425 || status == 429 || (status >= 500 && status <= 599)
}
