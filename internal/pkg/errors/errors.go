package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed submissions, before a job exists.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateJobID is returned when a job id is already taken.
	ErrDuplicateJobID = errors.New("duplicate job id")
	// ErrJobNotFound is a generic sentinel for missing jobs.
	ErrJobNotFound = errors.New("job not found")
	// ErrNotAwaitingApproval is returned when approve is called on a job
	// that is not suspended.
	ErrNotAwaitingApproval = errors.New("job is not awaiting approval")
	// ErrRecursionLimitExceeded guards against a misconfigured graph
	// producing cycles.
	ErrRecursionLimitExceeded = errors.New("recursion limit exceeded")
)

// StageError wraps a failure inside a pipeline stage with the stage name.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
