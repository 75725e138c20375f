// Package wire defines the request/response envelopes exchanged with a
// cache service behind the transport boundary, and the framing used to
// keep a value's type flag next to its bytes inside a backing store.
//
// Envelopes are msgpack-encoded; the literal byte layout is the
// serializer's concern, not ours. Field tags are kept short because every
// call round-trips one of these.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ServiceName is the service identifier passed to Transport.Invoke.
const ServiceName = "cache"

// Method names understood by a cache service.
const (
	MethodGet       = "Get"
	MethodSet       = "Set"
	MethodDelete    = "Delete"
	MethodIncrement = "Increment"
	MethodFlushAll  = "FlushAll"
	MethodStats     = "Stats"
)

// SetPolicy controls how a Set treats a pre-existing entry.
type SetPolicy uint8

const (
	// SetAlways unconditionally overwrites.
	SetAlways SetPolicy = iota + 1
	// AddOnlyIfNotPresent stores only when no entry exists.
	AddOnlyIfNotPresent
	// ReplaceOnlyIfPresent stores only when an entry already exists.
	ReplaceOnlyIfPresent
)

// SetStatus reports the outcome of one Set item.
type SetStatus uint8

const (
	SetStored SetStatus = iota + 1
	SetNotStored
	SetError
)

// Item is one cache slot as it crosses the wire: encoded key bytes, value
// bytes and the codec flag recorded at write time.
type Item struct {
	Key   []byte `msgpack:"k"`
	Value []byte `msgpack:"v"`
	Flags uint32 `msgpack:"f"`
}

type GetRequest struct {
	Namespace string   `msgpack:"ns"`
	Keys      [][]byte `msgpack:"k"`
}

// GetResponse carries an Item per hit. Requested keys that missed are
// simply absent; the service never echoes keys it does not hold.
type GetResponse struct {
	Items []Item `msgpack:"i"`
}

// SetItem is one entry of a Set request. ExpiresAt is absolute unix
// milliseconds; zero means no time-based expiration.
type SetItem struct {
	Key       []byte    `msgpack:"k"`
	Value     []byte    `msgpack:"v"`
	Flags     uint32    `msgpack:"f"`
	Policy    SetPolicy `msgpack:"p"`
	ExpiresAt int64     `msgpack:"x"`
}

type SetRequest struct {
	Namespace string    `msgpack:"ns"`
	Items     []SetItem `msgpack:"i"`
}

// SetResponse statuses are positional, parallel to the request items.
type SetResponse struct {
	Status []SetStatus `msgpack:"s"`
}

// DeleteRequest removes keys. NoReaddMillis > 0 additionally blocks
// AddOnlyIfNotPresent writes to those keys for that long.
type DeleteRequest struct {
	Namespace     string   `msgpack:"ns"`
	Keys          [][]byte `msgpack:"k"`
	NoReaddMillis int64    `msgpack:"nr"`
}

// DeleteResponse is positional, parallel to the request keys; true means
// an entry existed and was removed.
type DeleteResponse struct {
	Deleted []bool `msgpack:"d"`
}

// IncrementItem adjusts one key by Delta. When HasInitial is set and the
// key is absent, Initial is stored (without applying Delta) and returned.
type IncrementItem struct {
	Key        []byte `msgpack:"k"`
	Delta      int64  `msgpack:"d"`
	Initial    int64  `msgpack:"iv"`
	HasInitial bool   `msgpack:"hi"`
}

type IncrementRequest struct {
	Namespace string          `msgpack:"ns"`
	Items     []IncrementItem `msgpack:"i"`
}

// IncrementResult reports one key's post-increment value. OK is false
// when the key was absent (and no initial value was given) or its stored
// value is not numeric.
type IncrementResult struct {
	Key   []byte `msgpack:"k"`
	Value int64  `msgpack:"v"`
	OK    bool   `msgpack:"ok"`
}

type IncrementResponse struct {
	Results []IncrementResult `msgpack:"r"`
}

// FlushAllRequest empties the entire service. It deliberately carries no
// namespace: the flush is global.
type FlushAllRequest struct{}

type FlushAllResponse struct{}

type StatsRequest struct{}

// StatsResponse aggregates service-wide counters across all namespaces.
type StatsResponse struct {
	Hits          uint64 `msgpack:"h"`
	Misses        uint64 `msgpack:"m"`
	ByteHits      uint64 `msgpack:"bh"`
	Items         uint64 `msgpack:"it"`
	Bytes         uint64 `msgpack:"b"`
	OldestItemAge int64  `msgpack:"o"`
}

// Marshal encodes an envelope.
func Marshal(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %T: %w", v, err)
	}
	return b, nil
}

// Unmarshal decodes an envelope.
func Unmarshal(b []byte, v any) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("wire: decode %T: %w", v, err)
	}
	return nil
}

// ErrCorrupt reports an entry frame that failed validation.
var ErrCorrupt = errors.New("wire: corrupt entry")

// Entry frame: flags(u32 be) | expiresAt unix ms (i64 be) | value.
// Backends store this so a value's flag and expiry survive round trips
// through stores that only understand raw bytes.
const entryHeader = 4 + 8

// EncodeEntry frames value bytes with their flag and absolute expiry.
func EncodeEntry(flags uint32, expiresAt int64, value []byte) []byte {
	b := make([]byte, entryHeader+len(value))
	binary.BigEndian.PutUint32(b[0:4], flags)
	binary.BigEndian.PutUint64(b[4:12], uint64(expiresAt))
	copy(b[entryHeader:], value)
	return b
}

// DecodeEntry splits a stored frame back into flag, expiry and value.
func DecodeEntry(b []byte) (flags uint32, expiresAt int64, value []byte, err error) {
	if len(b) < entryHeader {
		return 0, 0, nil, ErrCorrupt
	}
	flags = binary.BigEndian.Uint32(b[0:4])
	expiresAt = int64(binary.BigEndian.Uint64(b[4:12]))
	return flags, expiresAt, b[entryHeader:], nil
}

// StorageKey joins a namespace and encoded key bytes into one
// collision-free byte string usable as a backend key. The namespace is
// length-prefixed, so arbitrary bytes on either side cannot alias.
func StorageKey(namespace string, key []byte) string {
	b := make([]byte, 0, binary.MaxVarintLen64+len(namespace)+len(key))
	b = binary.AppendUvarint(b, uint64(len(namespace)))
	b = append(b, namespace...)
	b = append(b, key...)
	return string(b)
}
