// Package attribute defines the three typed attribute kinds tuples and
// index keys are built from (Int, Real, VarChar), their wire encoding,
// and typed comparison. It has no knowledge of pages, slots, or files;
// it is pure value/codec logic shared by the record engine and the B+
// tree.
package attribute

import (
	"encoding/binary"
	"math"

	"github.com/chriswood/pagedb/internal/storage/dberr"
)

// Type enumerates the three supported attribute kinds.
type Type uint8

const (
	Int Type = iota
	Real
	VarChar
)

func (t Type) String() string {
	switch t {
	case Int:
		return "Int"
	case Real:
		return "Real"
	case VarChar:
		return "VarChar"
	default:
		return "Unknown"
	}
}

// MaxKeySize bounds a VarChar payload used as an index key.
const MaxKeySize = 2048

// Value is a typed attribute instance. Exactly one of IntVal/RealVal/Bytes
// is meaningful, selected by Type.
type Value struct {
	Type    Type
	IntVal  int32
	RealVal float32
	Bytes   []byte // VarChar payload only
}

func IntValue(v int32) Value       { return Value{Type: Int, IntVal: v} }
func RealValue(v float32) Value    { return Value{Type: Real, RealVal: v} }
func VarCharValue(s []byte) Value  { return Value{Type: VarChar, Bytes: s} }
func VarCharString(s string) Value { return Value{Type: VarChar, Bytes: []byte(s)} }

// EncodedSize returns the number of bytes v occupies in the wire
// format: 4 bytes for Int/Real, 4-byte length prefix + payload for
// VarChar.
func (v Value) EncodedSize() int {
	switch v.Type {
	case Int, Real:
		return 4
	case VarChar:
		return 4 + len(v.Bytes)
	default:
		return 0
	}
}

// AppendTo appends the wire encoding of v to buf and returns the result.
func (v Value) AppendTo(buf []byte) ([]byte, error) {
	switch v.Type {
	case Int:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v.IntVal))
		return append(buf, b[:]...), nil
	case Real:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v.RealVal))
		return append(buf, b[:]...), nil
	case VarChar:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(len(v.Bytes)))
		buf = append(buf, b[:]...)
		return append(buf, v.Bytes...), nil
	default:
		return nil, dberr.New(dberr.AttributeInvalidType, "attribute.AppendTo")
	}
}

// Decode reads one value of type t starting at payload[off:], returning
// the value and the offset immediately following it.
func Decode(payload []byte, off int, t Type) (Value, int, error) {
	switch t {
	case Int:
		if off+4 > len(payload) {
			return Value{}, 0, dberr.New(dberr.AttributeLengthInvalid, "attribute.Decode")
		}
		return IntValue(int32(binary.LittleEndian.Uint32(payload[off : off+4]))), off + 4, nil
	case Real:
		if off+4 > len(payload) {
			return Value{}, 0, dberr.New(dberr.AttributeLengthInvalid, "attribute.Decode")
		}
		bits := binary.LittleEndian.Uint32(payload[off : off+4])
		return RealValue(math.Float32frombits(bits)), off + 4, nil
	case VarChar:
		if off+4 > len(payload) {
			return Value{}, 0, dberr.New(dberr.AttributeLengthInvalid, "attribute.Decode")
		}
		l := int(binary.LittleEndian.Uint32(payload[off : off+4]))
		off += 4
		if off+l > len(payload) {
			return Value{}, 0, dberr.New(dberr.AttributeLengthInvalid, "attribute.Decode")
		}
		dst := make([]byte, l)
		copy(dst, payload[off:off+l])
		return VarCharValue(dst), off + l, nil
	default:
		return Value{}, 0, dberr.New(dberr.AttributeInvalidType, "attribute.Decode")
	}
}

// Compare returns the sign of a-b for two values of the same type.
// Int/Real use natural ordering; VarChar compares lexicographically over
// min(len(a),len(b)) bytes, with the shorter of two prefix-equal strings
// sorting first.
func Compare(a, b Value) int {
	switch a.Type {
	case Int:
		switch {
		case a.IntVal < b.IntVal:
			return -1
		case a.IntVal > b.IntVal:
			return 1
		default:
			return 0
		}
	case Real:
		switch {
		case a.RealVal < b.RealVal:
			return -1
		case a.RealVal > b.RealVal:
			return 1
		default:
			return 0
		}
	case VarChar:
		n := len(a.Bytes)
		if len(b.Bytes) < n {
			n = len(b.Bytes)
		}
		for i := 0; i < n; i++ {
			if a.Bytes[i] != b.Bytes[i] {
				if a.Bytes[i] < b.Bytes[i] {
					return -1
				}
				return 1
			}
		}
		switch {
		case len(a.Bytes) < len(b.Bytes):
			return -1
		case len(a.Bytes) > len(b.Bytes):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}
