package redis

import (
	"errors"
	"fmt"
)

// Code classifies store failures for API consumers.
type Code string

const (
	// CodeNotFound means the requested record does not exist.
	CodeNotFound Code = "not_found"
	// CodeEncoding means a record could not be (de)serialized.
	CodeEncoding Code = "encoding_failed"
	// CodeBackend means the Redis operation itself failed.
	CodeBackend Code = "backend_failed"
)

// Error is a structured store error: a stable code plus a human-readable
// message. The underlying cause stays reachable through Unwrap.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func errNotFound(kind, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s not found: %s", kind, id)}
}

func errEncoding(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeEncoding, Message: fmt.Sprintf(format, args...), cause: cause}
}

func errBackend(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeBackend, Message: fmt.Sprintf(format, args...), cause: cause}
}

// IsNotFound reports whether err carries the not_found code.
func IsNotFound(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == CodeNotFound
}
