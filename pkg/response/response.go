package response

import (
	"errors"
)

// Error is a domain error that already knows its HTTP status and public message.
type Error struct {
	Code    int
	Err     error
	Message string
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Err.Error() == t.Err.Error()
}

// PublicMessage is what clients see; it falls back to the error text.
func (e *Error) PublicMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func NewError(code int, err string) error {
	return &Error{Code: code, Err: errors.New(err)}
}

func NewErrorWithMessage(code int, err, message string) error {
	return &Error{Code: code, Err: errors.New(err), Message: message}
}
