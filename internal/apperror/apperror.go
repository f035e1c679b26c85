package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every failure the service reports to a caller
type Kind int

const (
	InternalError Kind = iota
	UserNotFound
	CardNotFound
	InsufficientFunds
	ForbiddenOperation
	ValidationError
)

type kindInfo struct {
	code    string
	message string
	status  int
}

var kinds = map[Kind]kindInfo{
	UserNotFound:       {"USER_NOT_FOUND", "User not found", http.StatusNotFound},
	CardNotFound:       {"CARD_NOT_FOUND", "Card not found", http.StatusNotFound},
	InsufficientFunds:  {"INSUFFICIENT_FUNDS", "Insufficient funds", http.StatusConflict},
	ForbiddenOperation: {"FORBIDDEN_OPERATION", "Operation not allowed", http.StatusForbidden},
	ValidationError:    {"VALIDATION_ERROR", "Validation failed", http.StatusBadRequest},
	InternalError:      {"INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError},
}

// Code is the symbolic name of the kind
func (k Kind) Code() string { return info(k).code }

// Message is the public, generic description of the kind
func (k Kind) Message() string { return info(k).message }

// HTTPStatus is the status code the kind maps to
func (k Kind) HTTPStatus() int { return info(k).status }

func (k Kind) String() string { return k.Code() }

func info(k Kind) kindInfo {
	if i, ok := kinds[k]; ok {
		return i
	}
	return kinds[InternalError]
}

// Error is a classified failure. Detail and Err are for logs only.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Message()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind and detail, so sentinels built
// with New compare equal to themselves after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Detail == e.Detail && t.Err == nil
}

// New returns a classified error
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf returns a classified error with a formatted detail
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies err
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf returns the kind of err; unclassified errors are InternalError
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
