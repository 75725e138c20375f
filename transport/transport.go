// Package transport defines the synchronous call boundary between the
// cache client and a cache service, and the tagged error type the client
// classifies failures with.
//
// Implementations MUST be safe for concurrent use and MUST treat request
// and response bytes as opaque: no mutation, no re-framing. Timeouts are
// the implementation's responsibility; the client bounds total latency
// only through its retry budget.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Transport is the synchronous call primitive into a cache service.
// A nil error means respBytes is a well-formed response envelope.
type Transport interface {
	Invoke(ctx context.Context, service, method string, req []byte) (resp []byte, err error)
}

// Code classifies a call failure. The client retries CodeUnavailable,
// raises CodeCapabilityDisabled immediately, and routes CodeApplication
// through the configured error handler.
type Code uint8

const (
	// CodeUnavailable is a transient network or service failure.
	CodeUnavailable Code = iota + 1
	// CodeCapabilityDisabled means the platform has suspended this
	// operation class (e.g. read-only maintenance). Never retried.
	CodeCapabilityDisabled
	// CodeApplication is a service-level rejection carrying a diagnostic
	// detail.
	CodeApplication
)

func (c Code) String() string {
	switch c {
	case CodeUnavailable:
		return "unavailable"
	case CodeCapabilityDisabled:
		return "capability disabled"
	case CodeApplication:
		return "application error"
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// Error is a classified call failure. The explicit Code replaces cause
// chain inspection: whoever produced the failure knows what it was.
type Error struct {
	Code   Code
	Method string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("transport: %s: %s", e.Method, e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Unavailable wraps a transient failure of method.
func Unavailable(method string, err error) *Error {
	return &Error{Code: CodeUnavailable, Method: method, Err: err}
}

// CapabilityDisabled reports a suspended operation class.
func CapabilityDisabled(method, detail string) *Error {
	return &Error{Code: CodeCapabilityDisabled, Method: method, Detail: detail}
}

// Application reports a service-level rejection with a diagnostic detail.
func Application(method, detail string) *Error {
	return &Error{Code: CodeApplication, Method: method, Detail: detail}
}

// CodeOf extracts the classification from an error chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// IsCapabilityDisabled reports whether err carries CodeCapabilityDisabled
// anywhere in its chain.
func IsCapabilityDisabled(err error) bool {
	c, ok := CodeOf(err)
	return ok && c == CodeCapabilityDisabled
}

// IsUnavailable reports whether err is a transient call failure.
func IsUnavailable(err error) bool {
	c, ok := CodeOf(err)
	return ok && c == CodeUnavailable
}
