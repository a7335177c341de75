package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures crossing the provider and reviewer boundaries.
type ErrorKind string

const (
	KindNetwork           ErrorKind = "NetworkError"
	KindAuth              ErrorKind = "AuthError"
	KindRateLimited       ErrorKind = "RateLimited"
	KindMalformedResponse ErrorKind = "MalformedResponse"
	KindValidation        ErrorKind = "ValidationError"
)

// Error is a classified error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindNetwork for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNetwork
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
