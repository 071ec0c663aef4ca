package custom_errors

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrUnknownJobType    = errors.New("unknown job type")
	ErrInvalidPayload    = errors.New("invalid job payload")
)

// HandlerNotFoundError is returned when a claimed job has no registered handler.
// Retrying cannot fix it, so the job is dead-lettered on the first attempt.
type HandlerNotFoundError struct {
	JobType string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no handler registered for job type: %s", e.JobType)
}

func IsHandlerNotFound(err error) bool {
	var hnf *HandlerNotFoundError
	return errors.As(err, &hnf)
}

// PermanentError marks a handler failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the queue dead-letters the job instead of retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsRetryable reports whether a failed job may be attempted again.
func IsRetryable(err error) bool {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return false
	}
	return !IsHandlerNotFound(err)
}

// StoreError wraps a failure of the job store itself. These abort a tick.
type StoreError struct {
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("job store operation %s failed: %v", e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
