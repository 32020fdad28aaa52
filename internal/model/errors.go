package model

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrEmptyField    = errors.New("empty field")
	ErrInvalidAge    = errors.New("invalid age")
	ErrInvalidGrade  = errors.New("invalid grade")
	ErrDuplicateName = errors.New("duplicate name")
	ErrNotFound      = errors.New("student not found")
	ErrNoData        = errors.New("no data")
	ErrIOFailure     = errors.New("i/o failure")
)

// Error is a roster failure carrying a kind for errors.Is and a message
// fit to show the user.
type Error struct {
	Op      string // e.g. "add", "update", "save"
	Kind    error
	Message string
	Err     error // underlying cause, optional
}

// NewError creates an Error without an underlying cause.
func NewError(op string, kind error, message string) *Error {
	return &Error{Op: op, Kind: kind, Message: message}
}

// WrapError creates an Error around a lower-level cause.
func WrapError(op string, kind error, message string, err error) *Error {
	return &Error{Op: op, Kind: kind, Message: message, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Message)
}

// Unwrap returns the cause if there is one, otherwise the kind.
func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches the kind as well as the wrapped cause.
func (e *Error) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// Message returns the user-facing text for err. Errors that are not
// roster errors fall back to their Error() text.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}

	return err.Error()
}
