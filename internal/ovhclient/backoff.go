package ovhclient

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const maxRateLimitBackoff = 600 * time.Second

// NextRateLimitBackoff computes the scheduler's wait before retrying a task
// after a RateLimitError (spec.md §7): max(retryInterval, 2×previous),
// capped at 600s. previous is the task's last computed backoff, or zero on
// first encounter. Driven by backoff/v5's own exponential growth rather than
// a hand-rolled doubling, matching how the retrieval pack's console poll
// loop drives its backoff with repeated NextBackOff() calls.
func NextRateLimitBackoff(previous, retryInterval time.Duration) time.Duration {
	if previous <= 0 {
		return retryInterval
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = previous
	b.Multiplier = 2
	b.MaxInterval = maxRateLimitBackoff
	b.RandomizationFactor = 0

	b.NextBackOff()        // consumes the seed value (previous), advancing currentInterval
	next := b.NextBackOff() // previous doubled, already capped at b.MaxInterval

	if next < retryInterval {
		next = retryInterval
	}
	return next
}
