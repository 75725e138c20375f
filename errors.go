package nscache

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/nscache/codec"
)

// Errors produced by the codec while en/decoding keys and values. Aliased
// here so callers matching with errors.As stay within this package.
type (
	// InvalidKeyError: the key cannot be canonicalized. Caller error,
	// never retried.
	InvalidKeyError = codec.InvalidKeyError
	// DeserializationError: a value's typed form cannot be rebuilt.
	// Routed through the ErrorHandler instead of raised directly.
	DeserializationError = codec.DeserializationError
	// MalformedValueError: response bytes are corrupt. Always raised.
	MalformedValueError = codec.MalformedValueError
)

// Argument errors. Raised immediately, never retried.
var (
	ErrNilKeys    = errors.New("nscache: keys must not be nil")
	ErrNilValues  = errors.New("nscache: values must not be nil")
	ErrNilOffsets = errors.New("nscache: offsets must not be nil")
)

// ServiceError wraps a failed cache service call. It is the retryable
// error class: the client retries it under the backoff policy and, once
// the budget is exhausted, returns the last one as-is, so Unwrap keeps
// the root cause reachable.
type ServiceError struct {
	Method string
	Err    error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("nscache: %s failed: %v", e.Method, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
