package jobs

import (
	"errors"
	"time"

	"courier/internal/runpod"
)

// Default retry policy values, matching the poll loop's historical behavior.
const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 4 * time.Second
)

// Decision is the outcome of consulting the retry policy: either retry
// after Delay, or give up.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy decides whether a failed exchange is retried. The zero value uses
// the package defaults.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Decide classifies an error after the attempt-th consecutive failure
// (1-indexed). Only transient transport errors are retried, and only while
// the attempt count has not passed MaxAttempts; the caller resets its
// counter after every successful exchange, so a flaky-then-healthy
// connection never accumulates toward the ceiling.
func (p Policy) Decide(err error, attempt int) Decision {
	if err == nil || !errors.Is(err, runpod.ErrTransient) {
		return Decision{}
	}
	if attempt > p.maxAttempts() {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.delay()}
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (p Policy) delay() time.Duration {
	if p.Delay > 0 {
		return p.Delay
	}
	return DefaultRetryDelay
}
