package pagebuilder

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced page, row or column does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSelection is returned when an operation needs a selection that is
	// not there, such as updating the active column while no column is active.
	// The view layer never triggers it on its own; seeing it means a caller bug.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrCorruptSnapshot is returned by Restore when the stored blob could not be
	// used. The editor has been reset to the initial document when it is returned.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// ErrInvalidAlignment is returned for alignments other than left, center and right.
	ErrInvalidAlignment = errors.New("invalid alignment")

	// ErrMalformedAction is returned by the router for unknown actions and
	// payloads that do not decode.
	ErrMalformedAction = errors.New("malformed action")
)

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Kind string // "page", "row" or "column"
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// SelectionError describes which selection an operation required.
type SelectionError struct {
	Op   string // operation name, e.g. "updateTextColumn"
	Need string // e.g. "active column"
}

// Error implements the error interface.
func (e *SelectionError) Error() string {
	return fmt.Sprintf("%s: no %s", e.Op, e.Need)
}

// Is makes errors.Is(err, ErrInvalidSelection) match.
func (e *SelectionError) Is(target error) bool {
	return target == ErrInvalidSelection
}

// ActionError wraps a failure while routing a view-layer action.
type ActionError struct {
	Action string
	Err    error
	Hint   string // optional suggestion for the caller
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("action %q: %v (%s)", e.Action, e.Err, e.Hint)
	}
	return fmt.Sprintf("action %q: %v", e.Action, e.Err)
}

// Unwrap returns the underlying error.
func (e *ActionError) Unwrap() error {
	return e.Err
}

// WithHint adds a suggestion to the error.
func (e *ActionError) WithHint(hint string) *ActionError {
	e.Hint = hint
	return e
}
