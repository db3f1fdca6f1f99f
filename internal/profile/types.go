package profile

import (
	"fmt"
	"math"
)

// ValueType is the semantic type of a field value or method argument.
type ValueType int

const (
	TypeNone ValueType = iota
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeBool
	TypeString
)

func (t ValueType) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeU8:
		return "u8"
	case TypeU16:
		return "u16"
	case TypeU32:
		return "u32"
	case TypeU64:
		return "u64"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// Width is the encoded size in bytes. Strings report 0; their width comes
// from the field.
func (t ValueType) Width() int {
	switch t {
	case TypeU8, TypeBool:
		return 1
	case TypeU16:
		return 2
	case TypeU32:
		return 4
	case TypeU64:
		return 8
	default:
		return 0
	}
}

// Convert returns v as the native Go type for t (uint8, uint16, uint32,
// uint64, bool or string). Integers of any Go kind are accepted when they fit.
func (t ValueType) Convert(v any) (any, bool) {
	switch t {
	case TypeBool:
		b, ok := v.(bool)
		return b, ok
	case TypeString:
		s, ok := v.(string)
		return s, ok
	case TypeU8, TypeU16, TypeU32, TypeU64:
		n, ok := toUint64(v)
		if !ok {
			return nil, false
		}
		switch t {
		case TypeU8:
			if n > math.MaxUint8 {
				return nil, false
			}
			return uint8(n), true
		case TypeU16:
			if n > math.MaxUint16 {
				return nil, false
			}
			return uint16(n), true
		case TypeU32:
			if n > math.MaxUint32 {
				return nil, false
			}
			return uint32(n), true
		default:
			return n, true
		}
	}
	return nil, false
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case uint:
		return uint64(n), true
	case int8:
		return signed(int64(n))
	case int16:
		return signed(int64(n))
	case int32:
		return signed(int64(n))
	case int64:
		return signed(n)
	case int:
		return signed(int64(n))
	}
	return 0, false
}

func signed(n int64) (uint64, bool) {
	if n < 0 {
		return 0, false
	}
	return uint64(n), true
}

// AsInt converts an integer value produced by Convert to int.
func AsInt(v any) int {
	n, _ := toUint64(v)
	return int(n)
}
