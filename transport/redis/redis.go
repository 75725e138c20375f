// Package redis serves the cache wire protocol from a Redis tier, for
// deployments where the remote cache service is Redis rather than a
// managed platform.
//
// Values are stored as wire entry frames so the codec flag survives the
// round trip; per-entry expiration maps to PX, the no-readd window to a
// marker key, and increments run as a server-side script so they stay
// atomic. A READONLY reply from a replica maps to the capability-disabled
// code, the closest Redis analog to a platform read-only mode.
//
// Caveat: the increment script goes through Lua numbers, so values keep
// exact integer semantics only within ±2^53.
package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/nscache/codec"
	"github.com/unkn0wn-root/nscache/internal/wire"
	"github.com/unkn0wn-root/nscache/transport"
)

var ErrNilClient = errors.New("redis transport: nil client")

const (
	keyPrefix     = "nscache:"
	noReaddPrefix = "nscache:nr:"
)

// incrScript adjusts one framed entry in place. KEYS[1] is the entry key.
// ARGV: delta, "1" if an initial value applies, the initial value, and
// the 12-byte frame header to use when creating a new entry. Returns the
// post-increment value as a string, or nil when the key is absent with no
// initial value or holds a non-numeric payload.
var incrScript = goredis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  if ARGV[2] == '1' then
    redis.call('SET', KEYS[1], ARGV[4] .. ARGV[3])
    return ARGV[3]
  end
  return false
end
local hdr = string.sub(v, 1, 12)
local cur = tonumber(string.sub(v, 13), 10)
if cur == nil then return false end
local delta = tonumber(ARGV[1], 10)
local next = cur + delta
if delta < 0 and cur >= 0 and next < 0 then next = 0 end
redis.call('SET', KEYS[1], hdr .. string.format('%d', next), 'KEEPTTL')
return string.format('%d', next)
`)

type Config struct {
	Client goredis.UniversalClient
	// CloseClient releases the client on Close; set only when this
	// transport exclusively owns it.
	CloseClient bool
}

// Transport implements transport.Transport over Redis.
type Transport struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ transport.Transport = (*Transport)(nil)

func New(cfg Config) (*Transport, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Transport{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

// Close releases the underlying client only when this transport owns it.
func (t *Transport) Close() error {
	if t.closeClient {
		if err := t.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func (t *Transport) Invoke(ctx context.Context, service, method string, req []byte) ([]byte, error) {
	if service != wire.ServiceName {
		return nil, transport.Application(method, "unknown service "+strconv.Quote(service))
	}
	switch method {
	case wire.MethodGet:
		return t.get(ctx, req)
	case wire.MethodSet:
		return t.set(ctx, req)
	case wire.MethodDelete:
		return t.delete(ctx, req)
	case wire.MethodIncrement:
		return t.increment(ctx, req)
	case wire.MethodFlushAll:
		return t.flushAll(ctx, req)
	case wire.MethodStats:
		return t.stats(ctx, req)
	}
	return nil, transport.Application(method, "unknown method")
}

func (t *Transport) get(ctx context.Context, req []byte) ([]byte, error) {
	var r wire.GetRequest
	if err := wire.Unmarshal(req, &r); err != nil {
		return nil, transport.Application(wire.MethodGet, err.Error())
	}
	var resp wire.GetResponse
	if len(r.Keys) > 0 {
		rkeys := make([]string, len(r.Keys))
		for i, k := range r.Keys {
			rkeys[i] = entryKey(r.Namespace, k)
		}
		vals, err := t.rdb.MGet(ctx, rkeys...).Result()
		if err != nil {
			return nil, classify(wire.MethodGet, err)
		}
		for i, v := range vals {
			frame, ok := asBytes(v)
			if !ok {
				continue // miss
			}
			flags, _, value, err := wire.DecodeEntry(frame)
			if err != nil {
				// foreign bytes under our prefix; treat as a miss
				continue
			}
			resp.Items = append(resp.Items, wire.Item{Key: r.Keys[i], Value: value, Flags: flags})
		}
	}
	return wire.Marshal(&resp)
}

func (t *Transport) set(ctx context.Context, req []byte) ([]byte, error) {
	var r wire.SetRequest
	if err := wire.Unmarshal(req, &r); err != nil {
		return nil, transport.Application(wire.MethodSet, err.Error())
	}
	resp := wire.SetResponse{Status: make([]wire.SetStatus, len(r.Items))}
	for i, it := range r.Items {
		rkey := entryKey(r.Namespace, it.Key)
		ttl, expired := entryTTL(it.ExpiresAt)
		if expired {
			// already past its deadline: storing and expiring collapse
			if err := t.rdb.Del(ctx, rkey).Err(); err != nil {
				return nil, classify(wire.MethodSet, err)
			}
			resp.Status[i] = wire.SetStored
			continue
		}
		frame := wire.EncodeEntry(it.Flags, it.ExpiresAt, it.Value)

		policy := it.Policy
		if policy == 0 {
			policy = wire.SetAlways
		}
		var stored bool
		var err error
		switch policy {
		case wire.AddOnlyIfNotPresent:
			var blocked bool
			blocked, err = t.noReaddActive(ctx, r.Namespace, it.Key)
			if err == nil && !blocked {
				stored, err = t.rdb.SetNX(ctx, rkey, frame, ttl).Result()
			}
		case wire.ReplaceOnlyIfPresent:
			stored, err = t.rdb.SetXX(ctx, rkey, frame, ttl).Result()
		default:
			err = t.rdb.Set(ctx, rkey, frame, ttl).Err()
			stored = err == nil
		}
		if err != nil {
			return nil, classify(wire.MethodSet, err)
		}
		if stored {
			resp.Status[i] = wire.SetStored
		} else {
			resp.Status[i] = wire.SetNotStored
		}
	}
	return wire.Marshal(&resp)
}

func (t *Transport) delete(ctx context.Context, req []byte) ([]byte, error) {
	var r wire.DeleteRequest
	if err := wire.Unmarshal(req, &r); err != nil {
		return nil, transport.Application(wire.MethodDelete, err.Error())
	}
	resp := wire.DeleteResponse{Deleted: make([]bool, len(r.Keys))}
	for i, k := range r.Keys {
		n, err := t.rdb.Del(ctx, entryKey(r.Namespace, k)).Result()
		if err != nil {
			return nil, classify(wire.MethodDelete, err)
		}
		resp.Deleted[i] = n > 0
		if r.NoReaddMillis > 0 {
			window := time.Duration(r.NoReaddMillis) * time.Millisecond
			if err := t.rdb.Set(ctx, noReaddKey(r.Namespace, k), "1", window).Err(); err != nil {
				return nil, classify(wire.MethodDelete, err)
			}
		}
	}
	return wire.Marshal(&resp)
}

func (t *Transport) increment(ctx context.Context, req []byte) ([]byte, error) {
	var r wire.IncrementRequest
	if err := wire.Unmarshal(req, &r); err != nil {
		return nil, transport.Application(wire.MethodIncrement, err.Error())
	}
	newHeader := string(wire.EncodeEntry(codec.FlagInt, 0, nil))
	resp := wire.IncrementResponse{Results: make([]wire.IncrementResult, len(r.Items))}
	for i, it := range r.Items {
		res := wire.IncrementResult{Key: it.Key}
		hasInitial := "0"
		if it.HasInitial {
			hasInitial = "1"
		}
		val, err := incrScript.Run(ctx, t.rdb,
			[]string{entryKey(r.Namespace, it.Key)},
			strconv.FormatInt(it.Delta, 10),
			hasInitial,
			strconv.FormatInt(it.Initial, 10),
			newHeader,
		).Text()
		switch {
		case errors.Is(err, goredis.Nil):
			// absent or non-numeric; res stays not-OK
		case err != nil:
			return nil, classify(wire.MethodIncrement, err)
		default:
			n, perr := strconv.ParseInt(val, 10, 64)
			if perr != nil {
				return nil, transport.Application(wire.MethodIncrement, "bad script reply "+strconv.Quote(val))
			}
			res.Value, res.OK = n, true
		}
		resp.Results[i] = res
	}
	return wire.Marshal(&resp)
}

// flushAll issues FLUSHDB: the transport assumes the cache service owns
// its logical database, mirroring the platform flush being global rather
// than namespace-scoped.
func (t *Transport) flushAll(ctx context.Context, req []byte) ([]byte, error) {
	var r wire.FlushAllRequest
	if err := wire.Unmarshal(req, &r); err != nil {
		return nil, transport.Application(wire.MethodFlushAll, err.Error())
	}
	if err := t.rdb.FlushDB(ctx).Err(); err != nil {
		return nil, classify(wire.MethodFlushAll, err)
	}
	return wire.Marshal(&wire.FlushAllResponse{})
}

func (t *Transport) stats(ctx context.Context, req []byte) ([]byte, error) {
	var r wire.StatsRequest
	if err := wire.Unmarshal(req, &r); err != nil {
		return nil, transport.Application(wire.MethodStats, err.Error())
	}
	info, err := t.rdb.Info(ctx, "stats").Result()
	if err != nil {
		return nil, classify(wire.MethodStats, err)
	}
	mem, err := t.rdb.Info(ctx, "memory").Result()
	if err != nil {
		return nil, classify(wire.MethodStats, err)
	}
	items, err := t.rdb.DBSize(ctx).Result()
	if err != nil {
		return nil, classify(wire.MethodStats, err)
	}
	resp := wire.StatsResponse{
		Hits:   infoUint(info, "keyspace_hits"),
		Misses: infoUint(info, "keyspace_misses"),
		Items:  uint64(items),
		Bytes:  infoUint(mem, "used_memory"),
	}
	return wire.Marshal(&resp)
}

func entryKey(ns string, key []byte) string {
	return keyPrefix + wire.StorageKey(ns, key)
}

func noReaddKey(ns string, key []byte) string {
	return noReaddPrefix + wire.StorageKey(ns, key)
}

func (t *Transport) noReaddActive(ctx context.Context, ns string, key []byte) (bool, error) {
	n, err := t.rdb.Exists(ctx, noReaddKey(ns, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// entryTTL converts an absolute deadline to a relative TTL. ttl 0 means
// no expiry; expired means the deadline already passed.
func entryTTL(expiresAt int64) (ttl time.Duration, expired bool) {
	if expiresAt <= 0 {
		return 0, false
	}
	d := time.Until(time.UnixMilli(expiresAt))
	if d <= 0 {
		return 0, true
	}
	return d, false
}

func asBytes(v any) ([]byte, bool) {
	switch b := v.(type) {
	case nil:
		return nil, false
	case string:
		return []byte(b), true
	case []byte:
		return b, true
	}
	return nil, false
}

func infoUint(info, field string) uint64 {
	for _, line := range strings.Split(info, "\r\n") {
		if rest, ok := strings.CutPrefix(line, field+":"); ok {
			n, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 64)
			if err == nil {
				return n
			}
		}
	}
	return 0
}

// classify maps client errors to the tagged transport error. Replica
// READONLY replies are the platform's "writes suspended" signal.
func classify(method string, err error) error {
	msg := err.Error()
	if strings.HasPrefix(msg, "READONLY") {
		return transport.CapabilityDisabled(method, msg)
	}
	return transport.Unavailable(method, err)
}
