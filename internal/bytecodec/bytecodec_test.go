package bytecodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalars_LittleEndian(t *testing.T) {
	buf := make([]byte, 16)

	WriteU16(buf, 0, 0x1234)
	assert.Equal(t, []byte{0x34, 0x12}, buf[:2])
	assert.Equal(t, uint16(0x1234), ReadU16(buf, 0))

	WriteU32(buf, 2, 0xDEADBEEF)
	assert.Equal(t, []byte{0xEF, 0xBE, 0xAD, 0xDE}, buf[2:6])
	assert.Equal(t, uint32(0xDEADBEEF), ReadU32(buf, 2))

	WriteU64(buf, 8, 0x0102030405060708)
	assert.Equal(t, byte(0x08), buf[8])
	assert.Equal(t, byte(0x01), buf[15])
	assert.Equal(t, uint64(0x0102030405060708), ReadU64(buf, 8))

	WriteU8(buf, 6, 0xAB)
	assert.Equal(t, uint8(0xAB), ReadU8(buf, 6))
}

func TestArrays_AdvanceByWidth(t *testing.T) {
	buf := make([]byte, 32)

	WriteU16s(buf, 0, []uint16{1, 2, 3})
	assert.Equal(t, []uint16{1, 2, 3}, ReadU16s(buf, 0, 3))
	assert.Equal(t, uint16(2), ReadU16(buf, 2))

	WriteU32s(buf, 8, []uint32{7, 8})
	assert.Equal(t, []uint32{7, 8}, ReadU32s(buf, 8, 2))
	assert.Equal(t, uint32(8), ReadU32(buf, 12))

	WriteU64s(buf, 16, []uint64{9, 10})
	assert.Equal(t, []uint64{9, 10}, ReadU64s(buf, 16, 2))
}

func TestReadString(t *testing.T) {
	buf := []byte("Do041220\x00\x00FLAG\x00abc")

	tests := []struct {
		name   string
		off    int
		length int
		want   string
	}{
		{"fixed length", 0, 8, "Do041220"},
		{"fixed length keeps zeros", 6, 4, "20\x00\x00"},
		{"zero terminated", 10, 0, "FLAG"},
		{"negative length scans", 10, -1, "FLAG"},
		{"scan to end", 15, 0, "abc"},
		{"clamped at end", 15, 10, "abc"},
		{"past end", 40, 4, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadString(buf, tt.off, tt.length))
		})
	}
}

func TestWriteString(t *testing.T) {
	buf := make([]byte, 12)
	WriteString(buf, 2, "FLAG")
	assert.Equal(t, "FLAG", ReadString(buf, 2, 4))
	assert.Equal(t, "FLAG", ReadString(buf, 2, 0))
	assert.Equal(t, byte(0), buf[1])
}

func TestFlags_LSBFirst(t *testing.T) {
	buf := make([]byte, 3)
	WriteFlag(buf, 1, 0, true)
	WriteFlag(buf, 1, 3, true)
	WriteFlag(buf, 1, 9, true)

	assert.Equal(t, byte(0x00), buf[0])
	assert.Equal(t, byte(0x09), buf[1])
	assert.Equal(t, byte(0x02), buf[2])

	assert.True(t, ReadFlag(buf, 1, 9))
	WriteFlag(buf, 1, 9, false)
	assert.False(t, ReadFlag(buf, 1, 9))
	assert.Equal(t, byte(0x00), buf[2])

	assert.Equal(t, []bool{true, false, false, true}, ReadFlags(buf, 1, 4))
}

func TestFlags_RoundTripIsIdentity(t *testing.T) {
	src := []byte{0xA5, 0x3C, 0xFF, 0x01, 0x80, 0x7E}

	for off := 0; off < 3; off++ {
		for n := 0; n <= (len(src)-off)*8; n++ {
			buf := append([]byte(nil), src...)
			WriteFlags(buf, off, ReadFlags(buf, off, n))
			require.Equal(t, src, buf, "off=%d n=%d", off, n)
		}
	}
}

func TestWriteFlags_LeavesTrailingBits(t *testing.T) {
	buf := []byte{0xFF}
	WriteFlags(buf, 0, []bool{false, false, false})
	assert.Equal(t, byte(0xF8), buf[0])
}
