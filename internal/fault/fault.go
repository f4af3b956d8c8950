// Package fault defines the error taxonomy shared by the lifecycle core.
// Every precondition violation maps to exactly one of these sentinels so
// callers can branch with errors.Is at either the taxonomy level or the
// operation-specific level (see core package).
package fault

import "errors"

var (
	// ErrNotFound: the referenced trade, event, or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists: duplicate id, number, or external reference.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput: zero, empty, or out-of-range field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIllegalTransition: the requested edge is not in the legal-transition table.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrWrongLifecycleStage: the operation is valid, but not for the trade's current state.
	ErrWrongLifecycleStage = errors.New("wrong lifecycle stage")

	// ErrAlreadyTerminal: acting on a record whose status is final.
	ErrAlreadyTerminal = errors.New("already terminal")
)
