// Package local is an in-process cache service speaking the same wire
// envelopes as a remote one. It backs tests and local development, so
// unlike a best-effort cache it guarantees read-your-writes: a stored
// entry is visible to the next Get.
//
// Entry bytes live in a bigcache instance; policy bookkeeping (no-readd
// windows, counters) is kept alongside under one lock. Expiration is
// lazy: an entry past its deadline is dropped on the read that finds it.
package local

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/nscache/codec"
	"github.com/unkn0wn-root/nscache/internal/wire"
	"github.com/unkn0wn-root/nscache/transport"
)

type Config struct {
	// LifeWindow is bigcache's backstop eviction horizon for entries
	// without their own expiration. 0 => 24h.
	LifeWindow time.Duration
	// HardMaxCacheSizeMB caps memory; 0 = unlimited.
	HardMaxCacheSizeMB int
}

// Service implements transport.Transport in-process.
type Service struct {
	mu       sync.Mutex
	store    *bc.BigCache
	noReadd  map[string]time.Time
	readOnly bool

	hits, misses, byteHits uint64
	items, bytes           uint64
	oldest                 time.Time

	now func() time.Time
}

var _ transport.Transport = (*Service)(nil)

func New(cfg Config) (*Service, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	conf.CleanWindow = 0 // expiry is handled on read; no background sweep
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	store, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:   store,
		noReadd: make(map[string]time.Time),
		now:     time.Now,
	}, nil
}

// SetReadOnly toggles maintenance mode: mutating methods fail with the
// capability-disabled code while set.
func (s *Service) SetReadOnly(v bool) {
	s.mu.Lock()
	s.readOnly = v
	s.mu.Unlock()
}

func (s *Service) Close() error { return s.store.Close() }

func (s *Service) Invoke(_ context.Context, service, method string, req []byte) ([]byte, error) {
	if service != wire.ServiceName {
		return nil, transport.Application(method, "unknown service "+strconv.Quote(service))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readOnly {
		switch method {
		case wire.MethodSet, wire.MethodDelete, wire.MethodIncrement, wire.MethodFlushAll:
			return nil, transport.CapabilityDisabled(method, "service is read-only")
		}
	}

	switch method {
	case wire.MethodGet:
		return s.get(req)
	case wire.MethodSet:
		return s.set(req)
	case wire.MethodDelete:
		return s.delete(req)
	case wire.MethodIncrement:
		return s.increment(req)
	case wire.MethodFlushAll:
		return s.flushAll(req)
	case wire.MethodStats:
		return s.stats(req)
	}
	return nil, transport.Application(method, "unknown method")
}

func (s *Service) get(req []byte) ([]byte, error) {
	var r wire.GetRequest
	if err := wire.Unmarshal(req, &r); err != nil {
		return nil, transport.Application(wire.MethodGet, err.Error())
	}
	var resp wire.GetResponse
	now := s.now()
	for _, key := range r.Keys {
		sk := wire.StorageKey(r.Namespace, key)
		flags, _, value, ok, err := s.liveEntry(sk, now)
		if err != nil {
			return nil, transport.Unavailable(wire.MethodGet, err)
		}
		if !ok {
			s.misses++
			continue
		}
		s.hits++
		s.byteHits += uint64(len(value))
		resp.Items = append(resp.Items, wire.Item{Key: key, Value: value, Flags: flags})
	}
	return wire.Marshal(&resp)
}

func (s *Service) set(req []byte) ([]byte, error) {
	var r wire.SetRequest
	if err := wire.Unmarshal(req, &r); err != nil {
		return nil, transport.Application(wire.MethodSet, err.Error())
	}
	now := s.now()
	resp := wire.SetResponse{Status: make([]wire.SetStatus, len(r.Items))}
	for i, it := range r.Items {
		sk := wire.StorageKey(r.Namespace, it.Key)
		_, _, _, exists, err := s.liveEntry(sk, now)
		if err != nil {
			return nil, transport.Unavailable(wire.MethodSet, err)
		}

		policy := it.Policy
		if policy == 0 {
			policy = wire.SetAlways
		}
		switch policy {
		case wire.AddOnlyIfNotPresent:
			if exists || s.noReaddActive(sk, now) {
				resp.Status[i] = wire.SetNotStored
				continue
			}
		case wire.ReplaceOnlyIfPresent:
			if !exists {
				resp.Status[i] = wire.SetNotStored
				continue
			}
		}

		if err := s.put(sk, it.Flags, it.ExpiresAt, it.Value, exists, now); err != nil {
			resp.Status[i] = wire.SetError
			continue
		}
		resp.Status[i] = wire.SetStored
	}
	return wire.Marshal(&resp)
}

func (s *Service) delete(req []byte) ([]byte, error) {
	var r wire.DeleteRequest
	if err := wire.Unmarshal(req, &r); err != nil {
		return nil, transport.Application(wire.MethodDelete, err.Error())
	}
	now := s.now()
	resp := wire.DeleteResponse{Deleted: make([]bool, len(r.Keys))}
	for i, key := range r.Keys {
		sk := wire.StorageKey(r.Namespace, key)
		_, _, _, exists, err := s.liveEntry(sk, now)
		if err != nil {
			return nil, transport.Unavailable(wire.MethodDelete, err)
		}
		if exists {
			s.drop(sk)
		}
		resp.Deleted[i] = exists
		if r.NoReaddMillis > 0 {
			s.noReadd[sk] = now.Add(time.Duration(r.NoReaddMillis) * time.Millisecond)
		}
	}
	return wire.Marshal(&resp)
}

func (s *Service) increment(req []byte) ([]byte, error) {
	var r wire.IncrementRequest
	if err := wire.Unmarshal(req, &r); err != nil {
		return nil, transport.Application(wire.MethodIncrement, err.Error())
	}
	now := s.now()
	resp := wire.IncrementResponse{Results: make([]wire.IncrementResult, len(r.Items))}
	for i, it := range r.Items {
		sk := wire.StorageKey(r.Namespace, it.Key)
		res := wire.IncrementResult{Key: it.Key}

		flags, expiresAt, value, exists, err := s.liveEntry(sk, now)
		if err != nil {
			return nil, transport.Unavailable(wire.MethodIncrement, err)
		}
		switch {
		case !exists && !it.HasInitial:
			// absent, nothing to do
		case !exists:
			// memcached semantics: the initial value is stored as-is, the
			// delta is not applied on the first touch.
			if err := s.put(sk, codec.FlagInt, 0, strconv.AppendInt(nil, it.Initial, 10), false, now); err == nil {
				res.Value, res.OK = it.Initial, true
			}
		default:
			cur, perr := strconv.ParseInt(string(value), 10, 64)
			if perr != nil {
				break // non-numeric existing value
			}
			next := cur + it.Delta
			if it.Delta < 0 && cur >= 0 && next < 0 {
				next = 0 // decrement floor for non-negative values
			}
			if err := s.put(sk, flags, expiresAt, strconv.AppendInt(nil, next, 10), true, now); err == nil {
				res.Value, res.OK = next, true
			}
		}
		resp.Results[i] = res
	}
	return wire.Marshal(&resp)
}

func (s *Service) flushAll(req []byte) ([]byte, error) {
	var r wire.FlushAllRequest
	if err := wire.Unmarshal(req, &r); err != nil {
		return nil, transport.Application(wire.MethodFlushAll, err.Error())
	}
	if err := s.store.Reset(); err != nil {
		return nil, transport.Unavailable(wire.MethodFlushAll, err)
	}
	s.noReadd = make(map[string]time.Time)
	s.items, s.bytes = 0, 0
	s.oldest = time.Time{}
	// hit/miss counters survive a flush
	return wire.Marshal(&wire.FlushAllResponse{})
}

func (s *Service) stats(req []byte) ([]byte, error) {
	var r wire.StatsRequest
	if err := wire.Unmarshal(req, &r); err != nil {
		return nil, transport.Application(wire.MethodStats, err.Error())
	}
	resp := wire.StatsResponse{
		Hits:     s.hits,
		Misses:   s.misses,
		ByteHits: s.byteHits,
		Items:    s.items,
		Bytes:    s.bytes,
	}
	if s.items > 0 && !s.oldest.IsZero() {
		resp.OldestItemAge = int64(s.now().Sub(s.oldest) / time.Second)
	}
	return wire.Marshal(&resp)
}

// liveEntry loads sk and applies lazy expiration. ok is false for both a
// true miss and an entry found past its deadline (which is dropped).
func (s *Service) liveEntry(sk string, now time.Time) (flags uint32, expiresAt int64, value []byte, ok bool, err error) {
	b, err := s.store.Get(sk)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return 0, 0, nil, false, nil
	}
	if err != nil {
		return 0, 0, nil, false, err
	}
	flags, expiresAt, value, err = wire.DecodeEntry(b)
	if err != nil {
		// foreign or damaged bytes; drop and treat as a miss
		s.drop(sk)
		return 0, 0, nil, false, nil
	}
	if expiresAt > 0 && now.UnixMilli() >= expiresAt {
		s.drop(sk)
		return 0, 0, nil, false, nil
	}
	return flags, expiresAt, value, true, nil
}

func (s *Service) put(sk string, flags uint32, expiresAt int64, value []byte, overwrite bool, now time.Time) error {
	frame := wire.EncodeEntry(flags, expiresAt, value)
	if overwrite {
		if old, err := s.store.Get(sk); err == nil {
			s.bytes -= uint64(len(old))
		}
	}
	if err := s.store.Set(sk, frame); err != nil {
		return err
	}
	s.bytes += uint64(len(frame))
	if !overwrite {
		if s.items == 0 {
			s.oldest = now
		}
		s.items++
	}
	return nil
}

func (s *Service) drop(sk string) {
	if old, err := s.store.Get(sk); err == nil {
		s.bytes -= uint64(len(old))
		s.items--
	}
	_ = s.store.Delete(sk)
}

func (s *Service) noReaddActive(sk string, now time.Time) bool {
	until, ok := s.noReadd[sk]
	if !ok {
		return false
	}
	if now.After(until) {
		delete(s.noReadd, sk)
		return false
	}
	return true
}
