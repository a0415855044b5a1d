package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the service can return to a caller.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindMalformedInput
	KindInvalidRequest
	KindProfileMissing
	KindRender
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindMalformedInput:
		return "malformed_input"
	case KindInvalidRequest:
		return "invalid_request"
	case KindProfileMissing:
		return "profile_missing"
	case KindRender:
		return "render_error"
	default:
		return "internal"
	}
}

// Error carries a kind plus an operator-readable message. Handlers map the
// kind to an HTTP status, so no failure leaves the service unlabeled.
type Error struct {
	Kind    Kind
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

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func MalformedInput(format string, args ...interface{}) *Error {
	return New(KindMalformedInput, format, args...)
}

func InvalidRequest(format string, args ...interface{}) *Error {
	return New(KindInvalidRequest, format, args...)
}

func ProfileMissing(format string, args ...interface{}) *Error {
	return New(KindProfileMissing, format, args...)
}

func Render(format string, args ...interface{}) *Error {
	return New(KindRender, format, args...)
}

// KindOf extracts the kind from any error in the chain, defaulting to
// KindInternal for errors produced outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
