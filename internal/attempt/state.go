package attempt

import "errors"

// State is the lifecycle position of an attempt.
type State int

const (
	Running State = iota
	// Expired is entered when the countdown reaches zero; submission follows
	// immediately.
	Expired
	Submitting
	Submitted
	// SubmitFailed holds a failed finalize until the student retries.
	SubmitFailed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Expired:
		return "expired"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	case SubmitFailed:
		return "submit_failed"
	default:
		return "unknown"
	}
}

var (
	// ErrDeclined is returned by Submit when the student declines the
	// unanswered-questions prompt.
	ErrDeclined = errors.New("submission declined")
	// ErrNotRunning is returned when a submission is requested after one has
	// already started.
	ErrNotRunning = errors.New("attempt is not running")
	// ErrNothingToRetry is returned by Retry outside SubmitFailed.
	ErrNothingToRetry = errors.New("no failed submission to retry")
)
