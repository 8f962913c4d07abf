package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the core reports to its callers.
type ErrorKind string

const (
	KindNotFound              ErrorKind = "NOT_FOUND"
	KindInvalidState          ErrorKind = "INVALID_STATE"
	KindValidation            ErrorKind = "VALIDATION_ERROR"
	KindInsufficientInventory ErrorKind = "INSUFFICIENT_INVENTORY"
	KindConfiguration         ErrorKind = "CONFIGURATION_ERROR"
)

// Error is the typed domain error. All of them are raised before a unit of
// work commits, so a caller seeing one knows nothing was persisted.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound              = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidState          = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrValidation            = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrInsufficientInventory = &Error{Kind: KindInsufficientInventory, Message: "insufficient inventory"}
	ErrConfiguration         = &Error{Kind: KindConfiguration, Message: "configuration error"}
)

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func notFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func invalidStatef(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func insufficientf(format string, args ...any) error {
	return &Error{Kind: KindInsufficientInventory, Message: fmt.Sprintf(format, args...)}
}

func configurationf(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}
