package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"jenkinsrun/internal/engine"
)

var (
	// ErrAwaitNumberTimeout matches a TimeoutError raised while waiting for
	// the triggered build to get a number
	ErrAwaitNumberTimeout = errors.New("timed out waiting for a new build number")

	// ErrAwaitCompletionTimeout matches a TimeoutError raised while waiting
	// for the build to finish
	ErrAwaitCompletionTimeout = errors.New("timed out waiting for the build to finish")
)

// TimeoutError reports a polling loop that exhausted its budget
type TimeoutError struct {
	Phase   Phase
	Timeout time.Duration
	Elapsed time.Duration
	Polls   int
	Number  engine.BuildNumber // Build being awaited; zero while awaiting a number
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %v (timeout = %s, %d polls)", e.Phase, e.Unwrap(), e.Timeout, e.Polls)
}

// Unwrap returns the sentinel matching the phase
func (e *TimeoutError) Unwrap() error {
	if e.Phase == PhaseAwaitCompletion {
		return ErrAwaitCompletionTimeout
	}
	return ErrAwaitNumberTimeout
}
