package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// Branch names of the audio analysis fan-out.
const (
	BranchTranscription = "transcription"
	BranchEmotion       = "emotion"
	BranchEnvironment   = "environment"
)

// errBranchAborted is handed to the errgroup when a failed branch decides
// the outcome, which cancels the remaining branches.
var errBranchAborted = errors.New("branch aborted by fan-in policy")

// Outcome is the settled result of one fan-out branch.
type Outcome[T any] struct {
	Value T
	Err   error
}

// BranchOutcome is the type-erased view of an Outcome that policies see.
type BranchOutcome struct {
	Branch string
	Err    error
	// Aborted is set when the branch was cancelled by the policy rather than
	// failing on its own.
	Aborted bool
}

// Failed reports whether the branch did not produce a value.
func (b BranchOutcome) Failed() bool {
	return b.Err != nil
}

// FanInPolicy turns the settled branches of a fan-out into a verdict.
type FanInPolicy interface {
	// Abort reports whether one failed branch already decides the outcome,
	// in which case the remaining branches are cancelled.
	Abort(failed BranchOutcome) bool
	// Decide returns nil when the branches form an acceptable result.
	Decide(outcomes []BranchOutcome) error
}

// AllOrNothing accepts a fan-out only when every branch succeeded.
type AllOrNothing struct{}

var _ FanInPolicy = AllOrNothing{}

// Abort always stops the siblings of a failed branch.
func (AllOrNothing) Abort(BranchOutcome) bool {
	return true
}

// Decide fails when any branch failed. Branches cancelled by Abort are only
// reported when nothing else failed.
func (AllOrNothing) Decide(outcomes []BranchOutcome) error {
	var failures, aborted []BranchOutcome

	for _, outcome := range outcomes {
		switch {
		case !outcome.Failed():
		case outcome.Aborted:
			aborted = append(aborted, outcome)
		default:
			failures = append(failures, outcome)
		}
	}

	if len(failures) == 0 {
		failures = aborted
	}

	if len(failures) == 0 {
		return nil
	}

	return &FanInError{Failures: failures}
}

// FanInError aggregates the failed branches of a fan-out. errors.Is and
// errors.As match against every branch error.
type FanInError struct {
	Failures []BranchOutcome
}

func (e *FanInError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", failure.Branch, failure.Err))
	}

	return "audio analysis failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the branch errors.
func (e *FanInError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, failure := range e.Failures {
		errs = append(errs, failure.Err)
	}

	return errs
}

// Branches lists the names of the failed branches.
func (e *FanInError) Branches() []string {
	names := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		names = append(names, failure.Branch)
	}

	return names
}
