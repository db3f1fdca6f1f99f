// Package bytecodec reads and writes little-endian scalars, strings and
// packed flags in place over a raw save buffer.
package bytecodec

import (
	"bytes"
	"encoding/binary"
)

var le = binary.LittleEndian

// ReadU8 returns the byte at off.
func ReadU8(buf []byte, off int) uint8 {
	return buf[off]
}

// WriteU8 stores v at off.
func WriteU8(buf []byte, off int, v uint8) {
	buf[off] = v
}

// ReadU16 decodes a little-endian uint16 at off.
func ReadU16(buf []byte, off int) uint16 {
	return le.Uint16(buf[off:])
}

// WriteU16 encodes v little-endian at off.
func WriteU16(buf []byte, off int, v uint16) {
	le.PutUint16(buf[off:], v)
}

// ReadU32 decodes a little-endian uint32 at off.
func ReadU32(buf []byte, off int) uint32 {
	return le.Uint32(buf[off:])
}

// WriteU32 encodes v little-endian at off.
func WriteU32(buf []byte, off int, v uint32) {
	le.PutUint32(buf[off:], v)
}

// ReadU64 decodes a little-endian uint64 at off.
func ReadU64(buf []byte, off int) uint64 {
	return le.Uint64(buf[off:])
}

// WriteU64 encodes v little-endian at off.
func WriteU64(buf []byte, off int, v uint64) {
	le.PutUint64(buf[off:], v)
}

// ReadU16s reads n consecutive values starting at off.
func ReadU16s(buf []byte, off, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = ReadU16(buf, off+i*2)
	}
	return out
}

// WriteU16s writes vs consecutively starting at off.
func WriteU16s(buf []byte, off int, vs []uint16) {
	for i, v := range vs {
		WriteU16(buf, off+i*2, v)
	}
}

// ReadU32s reads n consecutive values starting at off.
func ReadU32s(buf []byte, off, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = ReadU32(buf, off+i*4)
	}
	return out
}

// WriteU32s writes vs consecutively starting at off.
func WriteU32s(buf []byte, off int, vs []uint32) {
	for i, v := range vs {
		WriteU32(buf, off+i*4, v)
	}
}

// ReadU64s reads n consecutive values starting at off.
func ReadU64s(buf []byte, off, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = ReadU64(buf, off+i*8)
	}
	return out
}

// WriteU64s writes vs consecutively starting at off.
func WriteU64s(buf []byte, off int, vs []uint64) {
	for i, v := range vs {
		WriteU64(buf, off+i*8, v)
	}
}

// ReadString copies length bytes starting at off. A length below 1 reads up
// to the first zero byte or the end of buf instead.
func ReadString(buf []byte, off, length int) string {
	if off >= len(buf) {
		return ""
	}
	if length >= 1 {
		end := min(off+length, len(buf))
		return string(buf[off:end])
	}
	rest := buf[off:]
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		rest = rest[:i]
	}
	return string(rest)
}

// WriteString copies s into buf at off. The caller guarantees it fits.
func WriteString(buf []byte, off int, s string) {
	copy(buf[off:], s)
}

// ReadFlag reports bit n counted from off, least significant bit first.
func ReadFlag(buf []byte, off, n int) bool {
	return buf[off+n/8]&(1<<(n%8)) != 0
}

// WriteFlag sets or clears bit n counted from off.
func WriteFlag(buf []byte, off, n int, v bool) {
	mask := byte(1 << (n % 8))
	if v {
		buf[off+n/8] |= mask
	} else {
		buf[off+n/8] &^= mask
	}
}

// ReadFlags unpacks n booleans starting at off.
func ReadFlags(buf []byte, off, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = ReadFlag(buf, off, i)
	}
	return out
}

// WriteFlags packs flags starting at off. Bits past len(flags) in the last
// byte keep their previous value.
func WriteFlags(buf []byte, off int, flags []bool) {
	for i, v := range flags {
		WriteFlag(buf, off, i, v)
	}
}
