// Package proxyerr defines the failure taxonomy of the message proxy. Every
// failure carries a stable reason string suitable for off-chain monitoring.
package proxyerr

import (
	"errors"
	"fmt"
)

// ErrorType groups failures by how callers must react to them.
type ErrorType int

const (
	// TypeRejection means the call changed nothing and may be retried with corrected input.
	TypeRejection ErrorType = iota
	// TypeMessageFailure is recorded against a single message; the batch still advances.
	TypeMessageFailure
	// TypeInvariant marks governance or programming errors that must not be retried.
	TypeInvariant
	// TypeInternal wraps storage and infrastructure failures.
	TypeInternal
)

func (t ErrorType) String() string {
	switch t {
	case TypeRejection:
		return "rejection"
	case TypeMessageFailure:
		return "message_failure"
	case TypeInvariant:
		return "invariant"
	case TypeInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the structured error returned by proxy components.
type Error struct {
	Type    ErrorType
	Reason  string
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on the reason so sentinels compare equal to enriched copies.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Reason == t.Reason
}

// New creates an error of the given type.
func New(typ ErrorType, reason, message string) *Error {
	return &Error{Type: typ, Reason: reason, Message: message}
}

// WithCause returns a copy carrying cause. Sentinels stay untouched.
func (e *Error) WithCause(cause error) *Error {
	cp := e.clone()
	cp.Cause = cause
	return cp
}

// WithContext returns a copy with an extra context entry.
func (e *Error) WithContext(key string, value any) *Error {
	cp := e.clone()
	cp.Context[key] = value
	return cp
}

// Withf returns a copy whose message is formatted from the arguments.
func (e *Error) Withf(format string, args ...any) *Error {
	cp := e.clone()
	cp.Message = fmt.Sprintf(format, args...)
	return cp
}

func (e *Error) clone() *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	return &cp
}

// ReasonOf extracts the stable reason, or "Internal" for foreign errors.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonInternal
}

// TypeOf extracts the error class, TypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return TypeInternal
}

// Internal wraps an infrastructure failure.
func Internal(op string, cause error) *Error {
	return ErrInternal.WithCause(cause).Withf("%s failed", op)
}

// Wrap returns err unchanged when it already carries a reason and wraps it as Internal otherwise.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Internal(op, err)
}
