package flow

import "errors"

// ErrWrongKind is returned when a node capability is invoked on a node of a
// kind that does not provide it.
var ErrWrongKind = errors.New("operator does not support this capability")

// ErrTypeMismatch is returned when an engine hands a node an item of the wrong
// type.
var ErrTypeMismatch = errors.New("item has unexpected type")

// Error represents a failure building or interpreting an operator graph.
type Error struct {
	// Op names the operation that failed (e.g. "job", "flatMap").
	Op string

	// Message is the human-readable description.
	Message string

	// Code is a machine-readable error code.
	Code string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrForeignPlan is returned when a platform is asked to run a plan another
// platform compiled.
var ErrForeignPlan = errors.New("plan was compiled by another platform")
