// Package kvvalue implements the tagged value model and byte-sizing rules
// of the cache: every stored payload is classified into exactly one of
// {string, number, boolean, json, bytes} at write time, and the engine
// never carries a schema-less "any JSON" value past this boundary.
//
// © 2025 kvshard authors. MIT License.
package kvvalue

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind discriminates the type of a stored Value. Exposed on read.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "boolean"
	KindJSON   Kind = "json"
	KindBytes  Kind = "bytes"
)

// bytesWrapperKey is the wire convention a caller uses to tag a value as
// opaque bytes: a JSON object with exactly one field, bytesWrapperKey,
// whose value is a standard base64 string. Any other object or array is
// treated as structured json.
const bytesWrapperKey = "$bytes"

// ErrNullValue is returned by Infer when the wire value is JSON null.
var ErrNullValue = errors.New("kvvalue: null is not a storable value")

// ErrNonFiniteNumber is returned by Infer when a number is NaN or ±Inf.
var ErrNonFiniteNumber = errors.New("kvvalue: number must be finite")

// ErrUnsupportedType is returned by Infer for a JSON value shape with no
// mapping to a Kind (should not occur for well-formed JSON).
var ErrUnsupportedType = errors.New("kvvalue: unsupported value type")

// ErrInvalidBytesEncoding is returned when a $bytes wrapper's payload is
// not valid base64.
var ErrInvalidBytesEncoding = errors.New("kvvalue: invalid base64 in bytes value")

// Value is an immutable, already-classified payload. The zero Value is not
// meaningful; construct one via Infer or the FromXxx helpers.
type Value struct {
	kind  Kind
	str   string
	num   float64
	b     bool
	json  []byte // canonical serialization, KindJSON only
	bytes []byte // decoded raw bytes, KindBytes only
}

// Kind reports the value's discriminator.
func (v Value) Kind() Kind { return v.kind }

// Text returns the string payload and true iff Kind() == KindString.
func (v Value) Text() (string, bool) { return v.str, v.kind == KindString }

// Number returns the numeric payload and true iff Kind() == KindNumber.
func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }

// Bool returns the boolean payload and true iff Kind() == KindBool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// RawJSON returns the canonical JSON serialization and true iff
// Kind() == KindJSON.
func (v Value) RawJSON() (json.RawMessage, bool) {
	return json.RawMessage(v.json), v.kind == KindJSON
}

// RawBytes returns the decoded opaque payload and true iff
// Kind() == KindBytes.
func (v Value) RawBytes() ([]byte, bool) { return v.bytes, v.kind == KindBytes }

// SizeBytes computes the footprint charged to a shard's byte budget:
// UTF-8 length for strings and canonical JSON, decoded length for bytes,
// 8 for numbers, 1 for booleans.
func (v Value) SizeBytes() int64 {
	switch v.kind {
	case KindString:
		return int64(len(v.str))
	case KindNumber:
		return 8
	case KindBool:
		return 1
	case KindJSON:
		return int64(len(v.json))
	case KindBytes:
		return int64(len(v.bytes))
	default:
		return 0
	}
}

// FromText builds a string Value.
func FromText(s string) Value { return Value{kind: KindString, str: s} }

// FromNumber builds a number Value. NaN and ±Inf are rejected.
func FromNumber(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, ErrNonFiniteNumber
	}
	return Value{kind: KindNumber, num: f}, nil
}

// FromBool builds a boolean Value.
func FromBool(b bool) Value { return Value{kind: KindBool, b: b} }

// FromBytes builds an opaque-bytes Value from an already-decoded buffer.
func FromBytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, bytes: cp}
}

// FromJSON builds a structured Value from an arbitrary object or array,
// canonicalizing it via encoding/json (which serializes map keys in sorted
// order, giving a deterministic byte size for the same logical document).
func FromJSON(v any) (Value, error) {
	switch v.(type) {
	case map[string]any, []any:
	default:
		return Value{}, fmt.Errorf("%w: %T is not an object or array", ErrUnsupportedType, v)
	}
	canon, err := json.Marshal(v)
	if err != nil {
		return Value{}, err
	}
	return Value{kind: KindJSON, json: canon}, nil
}

// Infer classifies a raw wire value (the decoded body of a PUT/batch-set
// request) into a Value: text -> string, finite number -> number, bool ->
// boolean, object/array -> json, and a single-field
// {"$bytes": "<base64>"} wrapper -> bytes.
func Infer(raw json.RawMessage) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return Value{}, fmt.Errorf("kvvalue: invalid JSON: %w", err)
	}
	return fromDecoded(decoded)
}

func fromDecoded(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Value{}, ErrNullValue
	case string:
		return FromText(t), nil
	case bool:
		return FromBool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrNonFiniteNumber, err)
		}
		return FromNumber(f)
	case map[string]any:
		if b64, ok := bytesWrapperPayload(t); ok {
			decoded, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				return Value{}, ErrInvalidBytesEncoding
			}
			return FromBytes(decoded), nil
		}
		canon, err := json.Marshal(t)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindJSON, json: canon}, nil
	case []any:
		canon, err := json.Marshal(t)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindJSON, json: canon}, nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

func bytesWrapperPayload(m map[string]any) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	raw, ok := m[bytesWrapperKey]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

// MarshalJSON renders the value back to its wire form, the inverse of
// Infer: bytes values are re-wrapped in {"$bytes": "<base64>"}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindJSON:
		return append([]byte(nil), v.json...), nil
	case KindBytes:
		return json.Marshal(map[string]string{bytesWrapperKey: base64.StdEncoding.EncodeToString(v.bytes)})
	default:
		return nil, fmt.Errorf("kvvalue: cannot marshal zero Value")
	}
}

// NewVersion mints a fresh, globally-unique, lexicographically-sortable CAS
// token: an 8-byte big-endian nanosecond timestamp (so tokens sort
// chronologically) followed by 8 random bytes (so concurrent mints within
// the same nanosecond never collide), hex-encoded.
func NewVersion() string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(time.Now().UnixNano()))
	if _, err := rand.Read(buf[8:]); err != nil {
		// crypto/rand failing is a platform-level emergency; fall back to
		// the timestamp alone rather than panicking the calling mutation.
		return hex.EncodeToString(buf[:8])
	}
	return hex.EncodeToString(buf[:])
}
