package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced in a failed RunResult.
var (
	ErrFetch             = errors.New("fetch articles failed")
	ErrContentGeneration = errors.New("content generation failed")
	ErrRender            = errors.New("render failed")
	ErrDelivery          = errors.New("delivery failed")
	ErrInvalidTrigger    = errors.New("invalid trigger")
	ErrRunCanceled       = errors.New("run canceled")
	ErrRunState          = errors.New("run state conflict")
)

// Collaborator sentinels.
var (
	// ErrEmptyCompletion means the inference provider answered without usable text.
	ErrEmptyCompletion = errors.New("inference returned no content")
	// ErrRecipientRejected means the mail transport refused the message permanently.
	ErrRecipientRejected = errors.New("recipient rejected")
)

// ErrorClass tells the orchestrator whether a failed attempt may be retried.
type ErrorClass int

const (
	// ClassTransient failures are retried under the retry policy.
	ClassTransient ErrorClass = iota
	// ClassFatal failures end the run immediately.
	ClassFatal
)

func (c ErrorClass) String() string {
	if c == ClassFatal {
		return "fatal"
	}
	return "transient"
}

// StepError binds a failure to its kind and retry class.
type StepError struct {
	Kind  error
	Class ErrorClass
	Err   error
}

func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Err.Error())
}

func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Transient wraps err as a retryable failure of the given kind.
func Transient(kind, err error) error {
	return &StepError{Kind: kind, Class: ClassTransient, Err: err}
}

// Fatal wraps err as a non-retryable failure of the given kind.
func Fatal(kind, err error) error {
	return &StepError{Kind: kind, Class: ClassFatal, Err: err}
}

// ClassOf reports the class carried by err, if any.
func ClassOf(err error) (ErrorClass, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Class, true
	}
	return ClassTransient, false
}
