// Package codec converts application keys and values to and from their
// wire representation.
//
// Keys canonicalize to deterministic bytes: encoding the same key twice
// yields identical bytes, so encoded keys can index response entries back
// to the caller's originals regardless of the key type's own equality.
//
// Values carry a small flag recorded at encode time that says how to turn
// the bytes back into a typed value. Numeric values are stored as decimal
// text so the remote increment primitive can operate on them in place.
package codec

import (
	"fmt"
)

// Value flags. The flag travels with the value bytes and is the only
// decoding instruction the reader gets.
const (
	FlagNone   uint32 = iota // nil marker; empty bytes
	FlagBytes                // raw []byte
	FlagUTF8                 // UTF-8 text
	FlagInt                  // integer, decimal text
	FlagFloat                // float64, strconv 'g' text
	FlagBool                 // "1" or "0"
	FlagObject               // structured value, deterministic CBOR
	FlagProto                // protobuf message wrapped in anypb
)

// InvalidKeyError reports a key that cannot be canonicalized: nil,
// non-comparable (results come back in maps keyed by the original key),
// or not serializable.
type InvalidKeyError struct {
	Key any
	Err error
}

func (e *InvalidKeyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: cannot use %v (%T) as a cache key: %v", e.Key, e.Key, e.Err)
	}
	return fmt.Sprintf("codec: cannot use %v (%T) as a cache key", e.Key, e.Key)
}

func (e *InvalidKeyError) Unwrap() error { return e.Err }

// DeserializationError reports value bytes whose typed form cannot be
// reconstructed: an unknown flag, a CBOR or proto decode failure, or a
// proto type missing from the registry. Callers route it through their
// error handler; one bad entry should not have to abort a batch.
type DeserializationError struct {
	Flags uint32
	Err   error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("codec: cannot deserialize value (flags=%d): %v", e.Flags, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// MalformedValueError reports value bytes that are internally
// inconsistent with their flag, e.g. non-numeric text under FlagInt. This
// is response corruption and is always fatal.
type MalformedValueError struct {
	Flags uint32
	Err   error
}

func (e *MalformedValueError) Error() string {
	return fmt.Sprintf("codec: malformed value (flags=%d): %v", e.Flags, e.Err)
}

func (e *MalformedValueError) Unwrap() error { return e.Err }
