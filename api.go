package nscache

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/nscache/transport"
)

// SetPolicy governs how a put treats a pre-existing entry under the same
// key.
type SetPolicy uint8

const (
	// SetAlways unconditionally overwrites. The default.
	SetAlways SetPolicy = iota + 1
	// AddOnlyIfNotPresent creates the entry only when none exists (and no
	// no-readd window is active for the key).
	AddOnlyIfNotPresent
	// ReplaceOnlyIfPresent overwrites only an existing entry.
	ReplaceOnlyIfPresent
)

// Expiration is an optional absolute or relative time-to-live for a put.
// The zero value means no time-based expiration.
type Expiration struct {
	at    time.Time
	delta time.Duration
}

// ExpireAt expires the entry at an absolute time.
func ExpireAt(t time.Time) Expiration { return Expiration{at: t} }

// ExpireIn expires the entry d after the put.
func ExpireIn(d time.Duration) Expiration { return Expiration{delta: d} }

// deadline resolves to absolute unix milliseconds; 0 means none.
func (e Expiration) deadline(now time.Time) int64 {
	switch {
	case !e.at.IsZero():
		return e.at.UnixMilli()
	case e.delta > 0:
		return now.Add(e.delta).UnixMilli()
	}
	return 0
}

// Client is the cache service facade. All operations are synchronous and
// safe for concurrent use: an instance holds no mutable state, so derived
// instances (WithNamespace, WithErrorHandler) can be shared freely.
//
// Every operation except the Increment family runs under the retry
// policy. A nil value returned by Get is ambiguous between a stored nil
// and a true miss; Contains resolves the difference.
type Client interface {
	Get(ctx context.Context, key any) (any, error)
	GetMulti(ctx context.Context, keys []any) (map[any]any, error)
	Contains(ctx context.Context, key any) (bool, error)

	// Put stores value under key. The returned flag reports whether the
	// write took effect; under a conditional policy false means the
	// policy suppressed it.
	Put(ctx context.Context, key, value any, opts ...PutOption) (bool, error)
	// PutMulti stores all values and returns the keys actually written.
	PutMulti(ctx context.Context, values map[any]any, opts ...PutOption) ([]any, error)

	// Delete removes key and reports whether an entry existed.
	Delete(ctx context.Context, key any, opts ...DeleteOption) (bool, error)
	// DeleteMulti removes keys and returns the subset that existed.
	DeleteMulti(ctx context.Context, keys []any, opts ...DeleteOption) ([]any, error)

	// Increment atomically adjusts a numeric entry and returns the
	// post-increment value. ok is false when the key is absent (and no
	// initial value was supplied) or holds a non-numeric value.
	//
	// Increments are NOT retried: the service executes them at most
	// once, and a blind client-side retry could apply a delta twice.
	Increment(ctx context.Context, key any, delta int64, opts ...IncrementOption) (value int64, ok bool, err error)
	// IncrementMulti adjusts every key by the same delta. Keys that could
	// not be incremented are absent from the result.
	IncrementMulti(ctx context.Context, keys []any, delta int64, opts ...IncrementOption) (map[any]int64, error)
	// IncrementOffsets adjusts each key by its own delta. An initial
	// value supplied via WithInitialValue applies to every absent key.
	IncrementOffsets(ctx context.Context, offsets map[any]int64, opts ...IncrementOption) (map[any]int64, error)

	// FlushAll empties the entire cache service. It does not respect
	// namespaces: every namespace is flushed. Statistics are unaffected.
	FlushAll(ctx context.Context) error
	// Stats returns aggregate service-wide counters.
	Stats(ctx context.Context) (Statistics, error)

	// Namespace returns the namespace all keys of this instance are
	// scoped to.
	Namespace() string
	ErrorHandler() ErrorHandler

	// WithNamespace derives an instance scoped to ns, sharing transport
	// and configuration.
	WithNamespace(ns string) Client
	// WithErrorHandler derives an instance using h.
	WithErrorHandler(h ErrorHandler) Client
}

// Options configure a Client. Only Transport is required.
type Options struct {
	// Required
	Transport transport.Transport

	Namespace    string
	ErrorHandler ErrorHandler // nil => StrictErrorHandler
	Logger       Logger       // nil => NopLogger

	// Retry tuning; zero values take the defaults (100ms, 2, 10). With
	// the defaults a persistently failing call waits ≈102s in total
	// before giving up.
	RetryInitialWait time.Duration
	RetryMultiplier  int
	RetryMaxAttempts int
}

func New(opts Options) (Client, error) {
	if opts.Transport == nil {
		return nil, errors.New("nscache: transport is required")
	}
	return newClient(opts), nil
}

type putConfig struct {
	exp    Expiration
	policy SetPolicy
}

type PutOption func(*putConfig)

// WithExpiration attaches a time-to-live to the put.
func WithExpiration(e Expiration) PutOption {
	return func(c *putConfig) { c.exp = e }
}

// WithPolicy selects the conditional-write rule for the put.
func WithPolicy(p SetPolicy) PutOption {
	return func(c *putConfig) { c.policy = p }
}

type deleteConfig struct {
	noReadd time.Duration
}

type DeleteOption func(*deleteConfig)

// WithNoReadd blocks AddOnlyIfNotPresent puts to the deleted keys for d
// after the delete. SetAlways puts are not blocked.
func WithNoReadd(d time.Duration) DeleteOption {
	return func(c *deleteConfig) { c.noReadd = d }
}

type incrConfig struct {
	initial    int64
	hasInitial bool
}

type IncrementOption func(*incrConfig)

// WithInitialValue stores v for an absent key instead of failing the
// increment. The delta is not applied to the initial value.
func WithInitialValue(v int64) IncrementOption {
	return func(c *incrConfig) { c.initial, c.hasInitial = v, true }
}
