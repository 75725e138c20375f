// Package nscache is a retrying, namespace-aware client for a remote
// key-value cache service reachable through a synchronous call primitive.
//
// Components:
//   - Client: the operation surface (get/put/delete/increment, flush,
//     stats), scoped to a namespace fixed at construction.
//   - codec: canonical key bytes and flag-tagged value serialization.
//   - transport: the call boundary, with in-process (local) and Redis
//     backends included.
//
// Failed calls retry under bounded exponential backoff (100ms initial
// wait, doubling, 10 attempts by default). A capability-disabled failure
// — the platform suspending an operation class, e.g. read-only
// maintenance — is never retried and surfaces immediately so callers can
// degrade gracefully. Increments are never retried at all: the service
// applies them at most once, and a repeated delta is worse than a failed
// one.
//
// Error handling is pluggable. The default StrictErrorHandler escalates
// service and deserialization errors; a LenientErrorHandler turns them
// into misses. Namespace and handler are immutable per instance; derive
// variants:
//
//	cc, _ := nscache.New(nscache.Options{Transport: tr, Namespace: "user"})
//	sessions := cc.WithNamespace("session")
//	tolerant := cc.WithErrorHandler(nscache.LenientErrorHandler{Logger: lg})
//
// A nil from Get is ambiguous between a stored nil and a miss; Contains
// tells them apart.
package nscache
