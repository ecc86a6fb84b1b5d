package laws

import (
	"errors"
	"fmt"

	"github.com/dshills/flowlaws/laws/shapes"
)

// Trial error codes.
const (
	// CodeValueMismatch: a reference key's stored value is not equivalent.
	CodeValueMismatch = "VALUE_MISMATCH"
	// CodeSinkMismatch: the sink does not hold the expected items.
	CodeSinkMismatch = "SINK_MISMATCH"
	// CodeExtraKey: strict mode found a non-zero value under a key the
	// reference never produced.
	CodeExtraKey = "EXTRA_KEY"
	// CodeLookupDrift: the pipeline saw a different service result for a key
	// than the reference view.
	CodeLookupDrift = "LOOKUP_DRIFT"
	// CodeEngineFailure: the platform's Run failed.
	CodeEngineFailure = "ENGINE_FAILURE"
	// CodePlanFailure: the platform could not compile the job.
	CodePlanFailure = "PLAN_FAILURE"
	// CodeStoreRead: the store could not be read back.
	CodeStoreRead = "STORE_READ"
	// CodeSinkRead: the sink could not be read back.
	CodeSinkRead = "SINK_READ"
	// CodeSetup: a kit could not build a fresh store, sink, or service, or
	// the job could not be built.
	CodeSetup = "SETUP_FAILURE"
)

// ErrMismatch matches every trial error that reports a disagreement between
// the pipeline and its reference.
var ErrMismatch = errors.New("pipeline disagrees with reference")

// ErrEngine matches trial errors raised by the platform under test.
var ErrEngine = errors.New("platform failed")

// ErrAdapter matches trial errors raised by the kits.
var ErrAdapter = errors.New("execution adapter failed")

// TrialError is the outcome of a failed trial. It is an ordinary value: the
// checker never panics or exits on a failed trial.
type TrialError struct {
	// Shape is the job shape under test.
	Shape shapes.Shape

	// Code is a machine-readable error code (see the Code constants).
	Code string

	// Message is the human-readable description.
	Message string

	// Key, Want and Got carry the offending key and values, when relevant.
	Key  any
	Want any
	Got  any

	// Diff is a go-cmp diff of the sink contents (-want +got), when relevant.
	Diff string

	// Job is the one-line rendering of the pipeline that ran.
	Job string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *TrialError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Shape, e.Code, e.Message)
	switch e.Code {
	case CodeValueMismatch, CodeExtraKey, CodeLookupDrift:
		msg += fmt.Sprintf(" (key %v: want %v, got %v)", e.Key, e.Want, e.Got)
	case CodeSinkMismatch:
		if e.Diff != "" {
			msg += " (-want +got):\n" + e.Diff
		}
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *TrialError) Unwrap() error {
	return e.Cause
}

// Is classifies the error against ErrMismatch, ErrEngine and ErrAdapter.
func (e *TrialError) Is(target error) bool {
	switch target {
	case ErrMismatch:
		switch e.Code {
		case CodeValueMismatch, CodeSinkMismatch, CodeExtraKey, CodeLookupDrift:
			return true
		}
	case ErrEngine:
		return e.Code == CodeEngineFailure || e.Code == CodePlanFailure
	case ErrAdapter:
		switch e.Code {
		case CodeStoreRead, CodeSinkRead, CodeSetup:
			return true
		}
	}
	return false
}

// Code returns the trial error code of err, or "" if err is not a
// TrialError.
func Code(err error) string {
	var te *TrialError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// CaseError annotates a trial error with the generated case that caused it.
type CaseError struct {
	// Seed is the seed the case was drawn from.
	Seed int

	// Case is the printed case.
	Case string

	// Err is the trial error.
	Err error
}

func (e *CaseError) Error() string {
	return fmt.Sprintf("seed %d: %v\ncase: %s", e.Seed, e.Err, e.Case)
}

// Unwrap returns the trial error.
func (e *CaseError) Unwrap() error {
	return e.Err
}
