// errors.go implements the engine's error taxonomy. A struct rather than
// plain sentinel values: a Conflict must carry {key, expected, actual}
// and an Overloaded failure carries its shed reason, so each error holds
// a Kind for identity plus an optional details map. errors.Is matches on
// Kind alone.
//
// © 2025 kvshard authors. MIT License.
package kvengine

import (
	"errors"
	"fmt"
)

// Kind identifies a class of engine failure and is the only thing the
// serving layer needs to pick an HTTP status code.
type Kind string

const (
	KindBadRequest      Kind = "bad_request"
	KindUnauthorized    Kind = "unauthorized"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindOverloaded      Kind = "overloaded"
	KindInternal        Kind = "internal"
)

// Error is the engine's error type. Details is nil unless the Kind
// specifically documents one (Conflict: expected/actual; Overloaded:
// reason).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is supports errors.Is(err, &Error{Kind: KindNotFound}) style matching on
// Kind alone, ignoring Message/Details.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrBadRequest reports a validation failure.
func ErrBadRequest(format string, args ...any) *Error {
	return newErr(KindBadRequest, format, args...)
}

// ErrUnauthorized reports a missing/invalid credential.
func ErrUnauthorized(format string, args ...any) *Error {
	return newErr(KindUnauthorized, format, args...)
}

// ErrNotFound reports a read/delete against an absent or expired key.
func ErrNotFound(key string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("key %q not found", key), Details: map[string]any{"key": key}}
}

// ErrConflict reports a failed CAS precondition. The expected/actual
// versions ride along so idempotent clients can resynchronize.
func ErrConflict(key string, expected, actual string) *Error {
	return &Error{
		Kind:    KindConflict,
		Message: fmt.Sprintf("version mismatch for key %q", key),
		Details: map[string]any{"key": key, "expected": expected, "actual": actual},
	}
}

// ErrPayloadTooLarge reports an entry or batch exceeding a size ceiling.
func ErrPayloadTooLarge(format string, args ...any) *Error {
	return newErr(KindPayloadTooLarge, format, args...)
}

// ErrOverloaded reports admission shedding (in-flight cap or mailbox full).
// reason is surfaced in metrics and in the error details so clients and
// operators both know why.
func ErrOverloaded(reason string) *Error {
	return &Error{Kind: KindOverloaded, Message: "overloaded: " + reason, Details: map[string]any{"reason": reason}}
}

// ErrInternal wraps an unexpected failure. Callers should log the
// underlying cause; only the Kind and a generic message cross the
// boundary.
func ErrInternal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error"}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
