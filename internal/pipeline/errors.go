package pipeline

import (
	"errors"
	"fmt"
)

// RunError aborts a whole run. Per-digest and per-requester failures never
// produce one; they are counted in the Summary instead.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// Path is the directory or file involved, if any.
	Path string

	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodePrecondition indicates the output or cache directory could not
	// be created or is not writable. Nothing was rendered.
	ErrCodePrecondition RunErrorCode = "PRECONDITION"

	// ErrCodeIndex indicates a payload could not be written to the cache.
	// Retained payloads were purged before returning.
	ErrCodeIndex RunErrorCode = "INDEX"

	// ErrCodeInterrupted indicates the context was cancelled. Artifacts of
	// the interrupted batch were removed and retained payloads purged;
	// outputs of kinds that finished earlier are kept.
	ErrCodeInterrupted RunErrorCode = "INTERRUPTED"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// IsPreconditionError returns true if err is a directory precondition failure.
// Uses errors.As to handle wrapped errors.
func IsPreconditionError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodePrecondition
	}
	return false
}

// IsIndexError returns true if err is a payload indexing failure.
func IsIndexError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeIndex
	}
	return false
}

// IsInterruptedError returns true if err reports a cancelled run.
func IsInterruptedError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInterrupted
	}
	return false
}

func newPreconditionError(path, message string, err error) *RunError {
	return &RunError{Code: ErrCodePrecondition, Message: message, Path: path, Err: err}
}

func newIndexError(message string, err error) *RunError {
	return &RunError{Code: ErrCodeIndex, Message: message, Err: err}
}

func newInterruptedError(message string, err error) *RunError {
	return &RunError{Code: ErrCodeInterrupted, Message: message, Err: err}
}
