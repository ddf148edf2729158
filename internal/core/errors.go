package core

import (
	"errors"
	"fmt"
)

var (
	// ErrCollaboratorUnavailable indicates a network failure, timeout or
	// cancellation while talking to a backend collaborator.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrCollaboratorFailed indicates the collaborator answered with a failure
	// status or with a body that could not be understood.
	ErrCollaboratorFailed = errors.New("collaborator error")
	// ErrValidation indicates invalid input that normalisation could not repair.
	ErrValidation = errors.New("validation error")
	// ErrJobNotFound indicates an unknown synthesis job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFailed indicates a synthesis job that ended in the failed state.
	ErrJobFailed = errors.New("synthesis job failed")
	// ErrJobClaimed indicates a job that is no longer pending and cannot be claimed.
	ErrJobClaimed = errors.New("job already claimed")
	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// CollaboratorError describes a failed backend call. Kind is either
// ErrCollaboratorUnavailable or ErrCollaboratorFailed and is matched by errors.Is.
type CollaboratorError struct {
	Collaborator string
	Kind         error
	StatusCode   int
	Detail       string
	Err          error
}

func (e *CollaboratorError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %v (status %d): %s", e.Collaborator, e.Kind, e.StatusCode, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Collaborator, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %s", e.Collaborator, e.Kind, e.Detail)
	}
}

// Unwrap exposes both the kind and the underlying cause.
func (e *CollaboratorError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// Unavailable builds a CollaboratorError of kind ErrCollaboratorUnavailable.
func Unavailable(collaborator string, err error) *CollaboratorError {
	return &CollaboratorError{Collaborator: collaborator, Kind: ErrCollaboratorUnavailable, Err: err}
}

// Failed builds a CollaboratorError of kind ErrCollaboratorFailed.
func Failed(collaborator string, statusCode int, detail string) *CollaboratorError {
	return &CollaboratorError{
		Collaborator: collaborator,
		Kind:         ErrCollaboratorFailed,
		StatusCode:   statusCode,
		Detail:       detail,
	}
}

// Invalid wraps ErrValidation with a description of the offending input.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
