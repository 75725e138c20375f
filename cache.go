package nscache

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/nscache/codec"
	"github.com/unkn0wn-root/nscache/internal/backoff"
	"github.com/unkn0wn-root/nscache/internal/wire"
	"github.com/unkn0wn-root/nscache/transport"
)

// client is immutable after construction; With* derivations copy it.
type client struct {
	tr      transport.Transport
	ns      string
	handler ErrorHandler
	log     Logger
	retry   backoff.Policy

	// test seams
	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

var _ Client = (*client)(nil)

func newClient(opts Options) *client {
	return &client{
		tr:      opts.Transport,
		ns:      opts.Namespace,
		handler: coalesce[ErrorHandler](opts.ErrorHandler, StrictErrorHandler{}),
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		retry: backoff.Policy{
			InitialWait: opts.RetryInitialWait,
			Multiplier:  opts.RetryMultiplier,
			MaxAttempts: opts.RetryMaxAttempts,
		},
		now: time.Now,
	}
}

func (c *client) Namespace() string          { return c.ns }
func (c *client) ErrorHandler() ErrorHandler { return c.handler }

func (c *client) WithNamespace(ns string) Client {
	d := *c
	d.ns = ns
	return &d
}

func (c *client) WithErrorHandler(h ErrorHandler) Client {
	d := *c
	d.handler = coalesce[ErrorHandler](h, StrictErrorHandler{})
	return &d
}

// retryable: transient service failures only. Capability-disabled,
// argument and decode errors fail the call outright.
func retryable(err error) bool {
	if transport.IsCapabilityDisabled(err) {
		return false
	}
	var se *ServiceError
	return errors.As(err, &se)
}

func (c *client) do(ctx context.Context, fn func() error) error {
	r := backoff.Runner{
		Policy:    c.retry,
		Retryable: retryable,
		Sleep:     c.sleep,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			c.log.Info("cache call failed, retrying", Fields{
				"attempt": attempt,
				"wait":    wait,
				"err":     err,
			})
		},
	}
	return r.Do(ctx, fn)
}

// call performs one transport invocation and decodes the response
// envelope. ok=false with a nil error means the configured handler chose
// to swallow a service failure; callers then degrade to an empty result.
// A capability-disabled failure bypasses the handler and is returned
// unmodified so callers can detect it and skip caching.
func (c *client) call(ctx context.Context, method string, req, resp any) (bool, error) {
	reqb, err := wire.Marshal(req)
	if err != nil {
		return false, err
	}
	respb, err := c.tr.Invoke(ctx, wire.ServiceName, method, reqb)
	if err != nil {
		if transport.IsCapabilityDisabled(err) {
			return false, err
		}
		if herr := c.handler.HandleServiceError(&ServiceError{Method: method, Err: err}); herr != nil {
			return false, herr
		}
		return false, nil
	}
	if err := wire.Unmarshal(respb, resp); err != nil {
		if herr := c.handler.HandleServiceError(&ServiceError{Method: method, Err: err}); herr != nil {
			return false, herr
		}
		return false, nil
	}
	return true, nil
}

// decodeItem turns one wire item into a value, routing semantic decode
// failures through the handler. ok=false means "skip this entry".
func (c *client) decodeItem(it wire.Item) (v any, ok bool, err error) {
	v, derr := codec.DecodeValue(it.Value, it.Flags)
	if derr == nil {
		return v, true, nil
	}
	var de *DeserializationError
	if errors.As(derr, &de) {
		if herr := c.handler.HandleDeserializationError(derr); herr != nil {
			return nil, false, herr
		}
		return nil, false, nil
	}
	// malformed: response integrity problem, always fatal
	return nil, false, derr
}

func (c *client) Get(ctx context.Context, key any) (any, error) {
	kb, err := codec.EncodeKey(key)
	if err != nil {
		return nil, err
	}
	var out any
	err = c.do(ctx, func() error {
		out = nil
		req := wire.GetRequest{Namespace: c.ns, Keys: [][]byte{kb}}
		var resp wire.GetResponse
		ok, err := c.call(ctx, wire.MethodGet, &req, &resp)
		if err != nil || !ok || len(resp.Items) == 0 {
			return err
		}
		v, ok, err := c.decodeItem(resp.Items[0])
		if err != nil || !ok {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (c *client) GetMulti(ctx context.Context, keys []any) (map[any]any, error) {
	req, index, err := buildGetRequest(c.ns, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[any]any, len(keys))
	if len(req.Keys) == 0 {
		return out, nil
	}
	err = c.do(ctx, func() error {
		clear(out)
		var resp wire.GetResponse
		ok, err := c.call(ctx, wire.MethodGet, req, &resp)
		if err != nil || !ok {
			return err
		}
		return c.demuxGet(&resp, index, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Contains checks presence without decoding the value, so a stored nil is
// distinguishable from a true miss.
func (c *client) Contains(ctx context.Context, key any) (bool, error) {
	kb, err := codec.EncodeKey(key)
	if err != nil {
		return false, err
	}
	var found bool
	err = c.do(ctx, func() error {
		found = false
		req := wire.GetRequest{Namespace: c.ns, Keys: [][]byte{kb}}
		var resp wire.GetResponse
		ok, err := c.call(ctx, wire.MethodGet, &req, &resp)
		if err != nil || !ok {
			return err
		}
		found = len(resp.Items) > 0
		return nil
	})
	return found, err
}

func (c *client) Put(ctx context.Context, key, value any, opts ...PutOption) (bool, error) {
	item, err := buildSetItem(key, value, putConfigOf(opts), c.now())
	if err != nil {
		return false, err
	}
	var created bool
	err = c.do(ctx, func() error {
		created = false
		req := wire.SetRequest{Namespace: c.ns, Items: []wire.SetItem{item}}
		var resp wire.SetResponse
		ok, err := c.call(ctx, wire.MethodSet, &req, &resp)
		if err != nil || !ok {
			return err
		}
		created = len(resp.Status) > 0 && resp.Status[0] == wire.SetStored
		return nil
	})
	return created, err
}

func (c *client) PutMulti(ctx context.Context, values map[any]any, opts ...PutOption) ([]any, error) {
	req, origKeys, err := buildSetRequest(c.ns, values, putConfigOf(opts), c.now())
	if err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, nil
	}
	var stored []any
	err = c.do(ctx, func() error {
		stored = stored[:0]
		var resp wire.SetResponse
		ok, err := c.call(ctx, wire.MethodSet, req, &resp)
		if err != nil || !ok {
			return err
		}
		for i, st := range resp.Status {
			if i < len(origKeys) && st == wire.SetStored {
				stored = append(stored, origKeys[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (c *client) Delete(ctx context.Context, key any, opts ...DeleteOption) (bool, error) {
	kb, err := codec.EncodeKey(key)
	if err != nil {
		return false, err
	}
	cfg := deleteConfigOf(opts)
	var existed bool
	err = c.do(ctx, func() error {
		existed = false
		req := wire.DeleteRequest{
			Namespace:     c.ns,
			Keys:          [][]byte{kb},
			NoReaddMillis: cfg.noReadd.Milliseconds(),
		}
		var resp wire.DeleteResponse
		ok, err := c.call(ctx, wire.MethodDelete, &req, &resp)
		if err != nil || !ok {
			return err
		}
		existed = len(resp.Deleted) > 0 && resp.Deleted[0]
		return nil
	})
	return existed, err
}

func (c *client) DeleteMulti(ctx context.Context, keys []any, opts ...DeleteOption) ([]any, error) {
	req, origKeys, err := buildDeleteRequest(c.ns, keys, deleteConfigOf(opts))
	if err != nil {
		return nil, err
	}
	if len(req.Keys) == 0 {
		return nil, nil
	}
	var deleted []any
	err = c.do(ctx, func() error {
		deleted = deleted[:0]
		var resp wire.DeleteResponse
		ok, err := c.call(ctx, wire.MethodDelete, req, &resp)
		if err != nil || !ok {
			return err
		}
		for i, d := range resp.Deleted {
			if i < len(origKeys) && d {
				deleted = append(deleted, origKeys[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (c *client) Increment(ctx context.Context, key any, delta int64, opts ...IncrementOption) (int64, bool, error) {
	kb, err := codec.EncodeKey(key)
	if err != nil {
		return 0, false, err
	}
	cfg := incrConfigOf(opts)
	req := wire.IncrementRequest{Namespace: c.ns, Items: []wire.IncrementItem{{
		Key:        kb,
		Delta:      delta,
		Initial:    cfg.initial,
		HasInitial: cfg.hasInitial,
	}}}
	var resp wire.IncrementResponse
	ok, err := c.callOnce(ctx, &req, &resp)
	if err != nil || !ok {
		return 0, false, err
	}
	if len(resp.Results) == 0 || !resp.Results[0].OK {
		return 0, false, nil
	}
	return resp.Results[0].Value, true, nil
}

func (c *client) IncrementMulti(ctx context.Context, keys []any, delta int64, opts ...IncrementOption) (map[any]int64, error) {
	req, index, err := buildIncrementRequest(c.ns, keys, delta, incrConfigOf(opts))
	if err != nil {
		return nil, err
	}
	return c.incrementCall(ctx, req, index, len(keys))
}

func (c *client) IncrementOffsets(ctx context.Context, offsets map[any]int64, opts ...IncrementOption) (map[any]int64, error) {
	req, index, err := buildIncrementOffsets(c.ns, offsets, incrConfigOf(opts))
	if err != nil {
		return nil, err
	}
	return c.incrementCall(ctx, req, index, len(offsets))
}

func (c *client) incrementCall(ctx context.Context, req *wire.IncrementRequest, index keyIndex, n int) (map[any]int64, error) {
	out := make(map[any]int64, n)
	if len(req.Items) == 0 {
		return out, nil
	}
	var resp wire.IncrementResponse
	ok, err := c.callOnce(ctx, req, &resp)
	if err != nil || !ok {
		return out, err
	}
	for _, res := range resp.Results {
		if !res.OK {
			continue
		}
		if orig, hit := index[cacheKey(res.Key)]; hit {
			out[orig] = res.Value
		}
	}
	return out, nil
}

// callOnce is the non-retrying path used by the increment family.
func (c *client) callOnce(ctx context.Context, req *wire.IncrementRequest, resp *wire.IncrementResponse) (bool, error) {
	return c.call(ctx, wire.MethodIncrement, req, resp)
}

func (c *client) FlushAll(ctx context.Context) error {
	return c.do(ctx, func() error {
		var resp wire.FlushAllResponse
		_, err := c.call(ctx, wire.MethodFlushAll, &wire.FlushAllRequest{}, &resp)
		return err
	})
}

func (c *client) Stats(ctx context.Context) (Statistics, error) {
	var stats Statistics
	err := c.do(ctx, func() error {
		stats = Statistics{}
		var resp wire.StatsResponse
		ok, err := c.call(ctx, wire.MethodStats, &wire.StatsRequest{}, &resp)
		if err != nil || !ok {
			return err
		}
		stats = Statistics{
			Hits:     resp.Hits,
			Misses:   resp.Misses,
			ByteHits: resp.ByteHits,
			Items:    resp.Items,
			Bytes:    resp.Bytes,
			Oldest:   resp.OldestItemAge,
		}
		return nil
	})
	return stats, err
}

func putConfigOf(opts []PutOption) putConfig {
	cfg := putConfig{policy: SetAlways}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func deleteConfigOf(opts []DeleteOption) deleteConfig {
	var cfg deleteConfig
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func incrConfigOf(opts []IncrementOption) incrConfig {
	var cfg incrConfig
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}
