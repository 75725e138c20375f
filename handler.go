package nscache

// ErrorHandler is the pluggable strategy consulted when a service call
// fails or a fetched value cannot be deserialized. The returned error is
// raised to the caller; nil means "handled, continue" — the operation
// then degrades to a miss (for service errors) or skips the entry (for
// per-entry decode failures in a batch).
type ErrorHandler interface {
	HandleServiceError(err error) error
	HandleDeserializationError(err error) error
}

// StrictErrorHandler escalates every error. It is the default: silently
// serving misses on a broken cache hides real problems.
type StrictErrorHandler struct{}

func (StrictErrorHandler) HandleServiceError(err error) error         { return err }
func (StrictErrorHandler) HandleDeserializationError(err error) error { return err }

// LenientErrorHandler logs and continues. Use it when stale-or-missing is
// acceptable and a flaky cache tier should not fail requests.
type LenientErrorHandler struct {
	// Logger receives the swallowed errors; nil disables logging.
	Logger Logger
}

func (h LenientErrorHandler) HandleServiceError(err error) error {
	if h.Logger != nil {
		h.Logger.Warn("cache service error ignored", Fields{"err": err})
	}
	return nil
}

func (h LenientErrorHandler) HandleDeserializationError(err error) error {
	if h.Logger != nil {
		h.Logger.Warn("cache value dropped (deserialization)", Fields{"err": err})
	}
	return nil
}
