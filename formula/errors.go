package formula

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax indicates malformed specification text.
	ErrSyntax = errors.New("formula: syntax error")

	// ErrUnknownSignal indicates a predicate referencing an undeclared signal.
	ErrUnknownSignal = errors.New("formula: unknown signal")

	// ErrUnknownParam indicates a reference to an undeclared parameter.
	ErrUnknownParam = errors.New("formula: unknown parameter")

	// ErrUnknownFormula indicates a lookup of an identifier that is not bound.
	ErrUnknownFormula = errors.New("formula: unknown formula")

	// ErrIdentifierConflict indicates an identifier re-declared with a
	// different body, or clashing with a signal or parameter name.
	ErrIdentifierConflict = errors.New("formula: identifier conflict")

	// ErrInvalidInterval indicates a temporal interval with a negative lower
	// bound or lower bound above the upper bound.
	ErrInvalidInterval = errors.New("formula: invalid interval")
)

// Error carries the offending identifier and source line of a formula
// diagnostic. Kind is one of the package sentinels.
type Error struct {
	Kind  error
	Ident string
	Line  int
	Msg   string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Ident != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Ident)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }
