package codec

import (
	"errors"
	"reflect"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// cborEnc is the deterministic encoder shared by key canonicalization and
// FlagObject values. RFC 8949 core deterministic options make encoding a
// pure function of the value, which key identity depends on.
var cborEnc, cborDec = mustCBOR()

func mustCBOR() (cbor.EncMode, cbor.DecMode) {
	eo := cbor.CoreDetEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		panic(err)
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		panic(err)
	}
	return em, dm
}

// EncodeKey canonicalizes an application key to bytes. Strings and
// integer kinds map to their text form; anything else is encoded as
// deterministic CBOR. The key must be usable as a Go map key, since batch
// results are returned in maps keyed by the original key.
func EncodeKey(key any) ([]byte, error) {
	if key == nil {
		return nil, &InvalidKeyError{Key: key, Err: errors.New("nil key")}
	}
	switch k := key.(type) {
	case string:
		return []byte(k), nil
	case int:
		return strconv.AppendInt(nil, int64(k), 10), nil
	case int8:
		return strconv.AppendInt(nil, int64(k), 10), nil
	case int16:
		return strconv.AppendInt(nil, int64(k), 10), nil
	case int32:
		return strconv.AppendInt(nil, int64(k), 10), nil
	case int64:
		return strconv.AppendInt(nil, k, 10), nil
	case uint:
		return strconv.AppendUint(nil, uint64(k), 10), nil
	case uint8:
		return strconv.AppendUint(nil, uint64(k), 10), nil
	case uint16:
		return strconv.AppendUint(nil, uint64(k), 10), nil
	case uint32:
		return strconv.AppendUint(nil, uint64(k), 10), nil
	case uint64:
		return strconv.AppendUint(nil, k, 10), nil
	}
	if !reflect.TypeOf(key).Comparable() {
		return nil, &InvalidKeyError{Key: key, Err: errors.New("not a valid map key")}
	}
	b, err := cborEnc.Marshal(key)
	if err != nil {
		return nil, &InvalidKeyError{Key: key, Err: err}
	}
	return b, nil
}
