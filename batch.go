package nscache

import (
	"time"

	"github.com/unkn0wn-root/nscache/codec"
	"github.com/unkn0wn-root/nscache/internal/wire"
)

// cacheKey wraps encoded key bytes in a string so equality and hashing
// are defined over byte content. Only the encoded form round-trips
// through the service; the keyIndex maps it back to the caller's original
// key, whose own equality semantics are irrelevant here.
type cacheKey string

type keyIndex map[cacheKey]any

// buildGetRequest encodes every key and records the encoded→original
// mapping for response demultiplexing. Duplicate keys collapse to one
// wire key. A nil slice is a caller error; an empty one yields an empty
// request the caller short-circuits on.
func buildGetRequest(ns string, keys []any) (*wire.GetRequest, keyIndex, error) {
	if keys == nil {
		return nil, nil, ErrNilKeys
	}
	req := &wire.GetRequest{Namespace: ns, Keys: make([][]byte, 0, len(keys))}
	index := make(keyIndex, len(keys))
	for _, key := range keys {
		kb, err := codec.EncodeKey(key)
		if err != nil {
			return nil, nil, err
		}
		ck := cacheKey(kb)
		if _, dup := index[ck]; !dup {
			req.Keys = append(req.Keys, kb)
		}
		index[ck] = key
	}
	return req, index, nil
}

// demuxGet walks response items, maps each back to its original key and
// decodes its value into out. Items the service returns for keys we never
// asked about are dropped, so the result only ever contains requested
// keys. Entries absent from the response are simply absent from out.
func (c *client) demuxGet(resp *wire.GetResponse, index keyIndex, out map[any]any) error {
	for _, it := range resp.Items {
		orig, requested := index[cacheKey(it.Key)]
		if !requested {
			continue
		}
		v, ok, err := c.decodeItem(it)
		if err != nil {
			return err
		}
		if ok {
			out[orig] = v
		}
	}
	return nil
}

func buildSetItem(key, value any, cfg putConfig, now time.Time) (wire.SetItem, error) {
	kb, err := codec.EncodeKey(key)
	if err != nil {
		return wire.SetItem{}, err
	}
	vb, flags, err := codec.EncodeValue(value)
	if err != nil {
		return wire.SetItem{}, err
	}
	return wire.SetItem{
		Key:       kb,
		Value:     vb,
		Flags:     flags,
		Policy:    wire.SetPolicy(cfg.policy),
		ExpiresAt: cfg.exp.deadline(now),
	}, nil
}

// buildSetRequest returns the request plus the original keys positionally
// aligned with its items, so statuses demultiplex by index.
func buildSetRequest(ns string, values map[any]any, cfg putConfig, now time.Time) (*wire.SetRequest, []any, error) {
	if values == nil {
		return nil, nil, ErrNilValues
	}
	req := &wire.SetRequest{Namespace: ns, Items: make([]wire.SetItem, 0, len(values))}
	origKeys := make([]any, 0, len(values))
	for key, value := range values {
		item, err := buildSetItem(key, value, cfg, now)
		if err != nil {
			return nil, nil, err
		}
		req.Items = append(req.Items, item)
		origKeys = append(origKeys, key)
	}
	return req, origKeys, nil
}

func buildDeleteRequest(ns string, keys []any, cfg deleteConfig) (*wire.DeleteRequest, []any, error) {
	if keys == nil {
		return nil, nil, ErrNilKeys
	}
	req := &wire.DeleteRequest{
		Namespace:     ns,
		Keys:          make([][]byte, 0, len(keys)),
		NoReaddMillis: cfg.noReadd.Milliseconds(),
	}
	origKeys := make([]any, 0, len(keys))
	seen := make(map[cacheKey]struct{}, len(keys))
	for _, key := range keys {
		kb, err := codec.EncodeKey(key)
		if err != nil {
			return nil, nil, err
		}
		ck := cacheKey(kb)
		if _, dup := seen[ck]; dup {
			continue
		}
		seen[ck] = struct{}{}
		req.Keys = append(req.Keys, kb)
		origKeys = append(origKeys, key)
	}
	return req, origKeys, nil
}

func buildIncrementRequest(ns string, keys []any, delta int64, cfg incrConfig) (*wire.IncrementRequest, keyIndex, error) {
	if keys == nil {
		return nil, nil, ErrNilKeys
	}
	req := &wire.IncrementRequest{Namespace: ns, Items: make([]wire.IncrementItem, 0, len(keys))}
	index := make(keyIndex, len(keys))
	for _, key := range keys {
		kb, err := codec.EncodeKey(key)
		if err != nil {
			return nil, nil, err
		}
		ck := cacheKey(kb)
		if _, dup := index[ck]; !dup {
			req.Items = append(req.Items, wire.IncrementItem{
				Key:        kb,
				Delta:      delta,
				Initial:    cfg.initial,
				HasInitial: cfg.hasInitial,
			})
		}
		index[ck] = key
	}
	return req, index, nil
}

func buildIncrementOffsets(ns string, offsets map[any]int64, cfg incrConfig) (*wire.IncrementRequest, keyIndex, error) {
	if offsets == nil {
		return nil, nil, ErrNilOffsets
	}
	req := &wire.IncrementRequest{Namespace: ns, Items: make([]wire.IncrementItem, 0, len(offsets))}
	index := make(keyIndex, len(offsets))
	for key, delta := range offsets {
		kb, err := codec.EncodeKey(key)
		if err != nil {
			return nil, nil, err
		}
		req.Items = append(req.Items, wire.IncrementItem{
			Key:        kb,
			Delta:      delta,
			Initial:    cfg.initial,
			HasInitial: cfg.hasInitial,
		})
		index[cacheKey(kb)] = key
	}
	return req, index, nil
}
