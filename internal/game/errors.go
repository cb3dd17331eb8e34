package game

import (
	"errors"
	"fmt"
)

// Code classifies an error for the caller.
type Code string

const (
	CodeNotFound         Code = "not_found"
	CodeInvalidArgument  Code = "invalid_argument"
	CodePermissionDenied Code = "permission_denied"
	CodeConflict         Code = "conflict"
	CodeUnauthenticated  Code = "unauthenticated"
	CodeInternal         Code = "internal"
)

// Error is a declined operation. The message is safe to show to the player.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error with the same code, so errors.Is(err, ErrNotFound) works
// on formatted errors.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidArgument  = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrPermissionDenied = &Error{Code: CodePermissionDenied, Message: "permission denied"}
	ErrConflict         = &Error{Code: CodeConflict, Message: "conflict"}
	ErrUnauthenticated  = &Error{Code: CodeUnauthenticated, Message: "unauthenticated"}
	ErrInternal         = &Error{Code: CodeInternal, Message: "internal error"}
)

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return newError(CodeNotFound, format, args...)
}

func InvalidArgumentf(format string, args ...any) *Error {
	return newError(CodeInvalidArgument, format, args...)
}

func PermissionDeniedf(format string, args ...any) *Error {
	return newError(CodePermissionDenied, format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return newError(CodeConflict, format, args...)
}

func Internalf(format string, args ...any) *Error {
	return newError(CodeInternal, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
