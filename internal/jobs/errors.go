package jobs

import (
	"errors"
	"fmt"
	"strings"
)

// Terminal error values returned by Client.Run. These represent expected
// outcomes, not programming errors; callers classify them with errors.Is.
var (
	ErrSubmission       = errors.New("job submission failed")
	ErrCancelled        = errors.New("job cancelled")
	ErrTimedOut         = errors.New("job timed out")
	ErrRetriesExhausted = errors.New("max retries exceeded")
	ErrRemoteFailed     = errors.New("job failed remotely")
)

// RemoteFailure carries the failure detail a worker reported for a job.
type RemoteFailure struct {
	JobID  string
	Reason string
}

func (e *RemoteFailure) Error() string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		reason = "no failure detail reported"
	}
	return fmt.Sprintf("job %s failed remotely: %s", e.JobID, reason)
}

func (e *RemoteFailure) Unwrap() error { return ErrRemoteFailed }
