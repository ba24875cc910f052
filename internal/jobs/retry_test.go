package jobs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"courier/internal/runpod"
)

func TestDecideRetriesTransientErrorsUpToTheCeiling(t *testing.T) {
	policy := Policy{}
	err := fmt.Errorf("%w: connection reset", runpod.ErrTransient)

	for attempt := 1; attempt <= DefaultMaxAttempts; attempt++ {
		decision := policy.Decide(err, attempt)
		if !decision.Retry {
			t.Fatalf("attempt %d: expected retry", attempt)
		}
		if decision.Delay != DefaultRetryDelay {
			t.Fatalf("attempt %d: delay = %s, want %s", attempt, decision.Delay, DefaultRetryDelay)
		}
	}

	if decision := policy.Decide(err, DefaultMaxAttempts+1); decision.Retry {
		t.Fatalf("attempt %d: expected give-up", DefaultMaxAttempts+1)
	}
}

func TestDecideDoesNotRetryNonTransientErrors(t *testing.T) {
	policy := Policy{}

	if decision := policy.Decide(nil, 1); decision.Retry {
		t.Fatal("nil error should not retry")
	}
	apiErr := fmt.Errorf("%w: endpoint returned 404", runpod.ErrAPI)
	if decision := policy.Decide(apiErr, 1); decision.Retry {
		t.Fatal("api error should not retry")
	}
	if decision := policy.Decide(errors.New("unclassified"), 1); decision.Retry {
		t.Fatal("unclassified error should not retry")
	}
}

func TestDecideHonorsCustomPolicy(t *testing.T) {
	policy := Policy{MaxAttempts: 2, Delay: 250 * time.Millisecond}
	err := fmt.Errorf("%w: timeout", runpod.ErrTransient)

	decision := policy.Decide(err, 2)
	if !decision.Retry {
		t.Fatal("attempt 2 should retry with ceiling 2")
	}
	if decision.Delay != 250*time.Millisecond {
		t.Fatalf("delay = %s, want 250ms", decision.Delay)
	}
	if decision := policy.Decide(err, 3); decision.Retry {
		t.Fatal("attempt 3 should give up with ceiling 2")
	}
}
