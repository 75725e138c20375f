package codec

import (
	"bytes"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

// EncodeValue serializes a value and returns the flag to record with it.
// Integer kinds become decimal text under FlagInt, which keeps them
// incrementable in place by the service. Proto messages are wrapped in
// anypb so decoding can recover the concrete type from the registry.
func EncodeValue(v any) ([]byte, uint32, error) {
	switch x := v.(type) {
	case nil:
		return nil, FlagNone, nil
	case []byte:
		return bytes.Clone(x), FlagBytes, nil
	case string:
		return []byte(x), FlagUTF8, nil
	case bool:
		if x {
			return []byte("1"), FlagBool, nil
		}
		return []byte("0"), FlagBool, nil
	case int:
		return strconv.AppendInt(nil, int64(x), 10), FlagInt, nil
	case int8:
		return strconv.AppendInt(nil, int64(x), 10), FlagInt, nil
	case int16:
		return strconv.AppendInt(nil, int64(x), 10), FlagInt, nil
	case int32:
		return strconv.AppendInt(nil, int64(x), 10), FlagInt, nil
	case int64:
		return strconv.AppendInt(nil, x, 10), FlagInt, nil
	case uint:
		return strconv.AppendUint(nil, uint64(x), 10), FlagInt, nil
	case uint8:
		return strconv.AppendUint(nil, uint64(x), 10), FlagInt, nil
	case uint16:
		return strconv.AppendUint(nil, uint64(x), 10), FlagInt, nil
	case uint32:
		return strconv.AppendUint(nil, uint64(x), 10), FlagInt, nil
	case uint64:
		return strconv.AppendUint(nil, x, 10), FlagInt, nil
	case float32:
		return strconv.AppendFloat(nil, float64(x), 'g', -1, 64), FlagFloat, nil
	case float64:
		return strconv.AppendFloat(nil, x, 'g', -1, 64), FlagFloat, nil
	case proto.Message:
		wrapped, err := anypb.New(x)
		if err != nil {
			return nil, 0, fmt.Errorf("codec: cannot serialize %T: %w", v, err)
		}
		b, err := proto.Marshal(wrapped)
		if err != nil {
			return nil, 0, fmt.Errorf("codec: cannot serialize %T: %w", v, err)
		}
		return b, FlagProto, nil
	}
	b, err := cborEnc.Marshal(v)
	if err != nil {
		return nil, 0, fmt.Errorf("codec: cannot serialize %T: %w", v, err)
	}
	return b, FlagObject, nil
}

// DecodeValue reconstructs a typed value from bytes plus the flag
// recorded at write time. Integers decode as int64 (uint64 when out of
// int64 range); structured values decode into the generic CBOR data
// model.
func DecodeValue(b []byte, flags uint32) (any, error) {
	switch flags {
	case FlagNone:
		return nil, nil
	case FlagBytes:
		return bytes.Clone(b), nil
	case FlagUTF8:
		return string(b), nil
	case FlagBool:
		switch string(b) {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
		return nil, &MalformedValueError{Flags: flags, Err: fmt.Errorf("bad bool %q", b)}
	case FlagInt:
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return n, nil
		}
		if u, err := strconv.ParseUint(string(b), 10, 64); err == nil {
			return u, nil
		}
		return nil, &MalformedValueError{Flags: flags, Err: fmt.Errorf("bad integer %q", b)}
	case FlagFloat:
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return nil, &MalformedValueError{Flags: flags, Err: err}
		}
		return f, nil
	case FlagObject:
		var v any
		if err := cborDec.Unmarshal(b, &v); err != nil {
			return nil, &DeserializationError{Flags: flags, Err: err}
		}
		return v, nil
	case FlagProto:
		var wrapped anypb.Any
		if err := proto.Unmarshal(b, &wrapped); err != nil {
			return nil, &MalformedValueError{Flags: flags, Err: err}
		}
		msg, err := wrapped.UnmarshalNew()
		if err != nil {
			// Type not in the registry, or the payload does not match it.
			return nil, &DeserializationError{Flags: flags, Err: err}
		}
		return msg, nil
	}
	return nil, &DeserializationError{Flags: flags, Err: fmt.Errorf("unknown flag")}
}
