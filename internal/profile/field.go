package profile

import (
	"fmt"

	"github.com/cavestory-tools/cse/internal/bytecodec"
)

// Kind tags how a field is laid out in the buffer.
type Kind int

const (
	KindScalar Kind = iota + 1
	KindArray
	KindBits
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindBits:
		return "bits"
	case KindCustom:
		return "custom"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// NoIndex addresses a scalar field.
const NoIndex = -1

// Corrector maps a nominal offset into the buffer for the given section.
type Corrector func(offset, section int) int

// Direct is the identity Corrector used by single-section formats.
func Direct(offset, _ int) int { return offset }

// View is the addressing context handed to accessors: the buffer and the
// section its offsets resolve into.
type View struct {
	Data    []byte
	Section int
	Correct Corrector
}

// Addr resolves a nominal offset under the view's section.
func (v View) Addr(offset int) int {
	return v.Correct(offset, v.Section)
}

// Getter and Setter implement custom fields whose shape does not fit a single
// offset and type.
type (
	Getter func(v View, index int) any
	Setter func(v View, index int, value any)
)

// Field describes one named field.
type Field struct {
	Name   string
	Kind   Kind
	Type   ValueType
	Offset int
	// Count is the number of addressable indices; 0 for scalars.
	Count int
	// Stride is the distance between array elements. Defaults to the type width.
	Stride int
	// Length is the byte length of a string field.
	Length int
	// Check further restricts accepted values. It receives the converted value.
	Check func(index int, value any) bool

	Get Getter
	Set Setter
}

// Scalar describes a single value at a fixed offset.
func Scalar(name string, t ValueType, offset int) Field {
	return Field{Name: name, Kind: KindScalar, Type: t, Offset: offset}
}

// String describes a fixed-length string.
func String(name string, offset, length int) Field {
	return Field{Name: name, Kind: KindScalar, Type: TypeString, Offset: offset, Length: length}
}

// Array describes count values starting at offset, stride bytes apart.
func Array(name string, t ValueType, offset, count, stride int) Field {
	return Field{Name: name, Kind: KindArray, Type: t, Offset: offset, Count: count, Stride: stride}
}

// Bits describes count packed flags starting at offset.
func Bits(name string, offset, count int) Field {
	return Field{Name: name, Kind: KindBits, Type: TypeBool, Offset: offset, Count: count}
}

// Custom describes a field read and written through closures.
func Custom(name string, t ValueType, count int, get Getter, set Setter) Field {
	return Field{Name: name, Kind: KindCustom, Type: t, Count: count, Get: get, Set: set}
}

// ValidIndex reports whether index addresses an instance of the field.
// Scalars take NoIndex or 0.
func (f *Field) ValidIndex(index int) bool {
	if f.Count == 0 {
		return index == NoIndex || index == 0
	}
	return index >= 0 && index < f.Count
}

// Accepts reports whether value may be written at index.
func (f *Field) Accepts(index int, value any) bool {
	_, ok := f.accept(index, value)
	return ok
}

func (f *Field) accept(index int, value any) (any, bool) {
	if !f.ValidIndex(index) {
		return nil, false
	}
	v, ok := f.Type.Convert(value)
	if !ok {
		return nil, false
	}
	if f.Type == TypeString && f.Length > 0 && len(v.(string)) > f.Length {
		return nil, false
	}
	if f.Check != nil && !f.Check(index, v) {
		return nil, false
	}
	return v, true
}

// RawOffset resolves index to a buffer offset under view v. Custom fields
// have no single offset and report -1.
func (f *Field) RawOffset(v View, index int) int {
	switch f.Kind {
	case KindArray:
		return v.Addr(f.Offset + index*f.stride())
	case KindBits:
		return v.Addr(f.Offset) + index/8
	case KindScalar:
		return v.Addr(f.Offset)
	default:
		return -1
	}
}

func (f *Field) stride() int {
	if f.Stride > 0 {
		return f.Stride
	}
	return f.width()
}

func (f *Field) width() int {
	if f.Type == TypeString {
		return f.Length
	}
	return f.Type.Width()
}

// span is the byte range the field occupies under section.
func (f *Field) span(correct Corrector, section int) (lo, hi int) {
	v := View{Section: section, Correct: correct}
	switch f.Kind {
	case KindArray:
		lo = v.Addr(f.Offset)
		hi = v.Addr(f.Offset+(f.Count-1)*f.stride()) + f.width()
	case KindBits:
		lo = v.Addr(f.Offset)
		hi = lo + (f.Count+7)/8
	default:
		lo = v.Addr(f.Offset)
		hi = lo + f.width()
	}
	return lo, hi
}

func (f *Field) read(v View, index int) any {
	if f.Kind == KindCustom {
		return f.Get(v, index)
	}
	if f.Kind == KindBits {
		return bytecodec.ReadFlag(v.Data, v.Addr(f.Offset), index)
	}
	off := f.RawOffset(v, index)
	switch f.Type {
	case TypeU8:
		return bytecodec.ReadU8(v.Data, off)
	case TypeU16:
		return bytecodec.ReadU16(v.Data, off)
	case TypeU32:
		return bytecodec.ReadU32(v.Data, off)
	case TypeU64:
		return bytecodec.ReadU64(v.Data, off)
	case TypeBool:
		return v.Data[off] != 0
	case TypeString:
		return trimNul(bytecodec.ReadString(v.Data, off, f.Length))
	}
	return nil
}

func (f *Field) write(v View, index int, value any) {
	if f.Kind == KindCustom {
		f.Set(v, index, value)
		return
	}
	if f.Kind == KindBits {
		bytecodec.WriteFlag(v.Data, v.Addr(f.Offset), index, value.(bool))
		return
	}
	off := f.RawOffset(v, index)
	switch f.Type {
	case TypeU8:
		bytecodec.WriteU8(v.Data, off, value.(uint8))
	case TypeU16:
		bytecodec.WriteU16(v.Data, off, value.(uint16))
	case TypeU32:
		bytecodec.WriteU32(v.Data, off, value.(uint32))
	case TypeU64:
		bytecodec.WriteU64(v.Data, off, value.(uint64))
	case TypeBool:
		var b uint8
		if value.(bool) {
			b = 1
		}
		bytecodec.WriteU8(v.Data, off, b)
	case TypeString:
		// clear the slot first so shorter values do not leave a tail behind
		clear(v.Data[off : off+f.Length])
		bytecodec.WriteString(v.Data, off, value.(string))
	}
}

func trimNul(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return s[:i]
		}
	}
	return s
}
