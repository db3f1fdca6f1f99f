package tsc

import (
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestDecipher_SkipsKeyByte(t *testing.T) {
	enciphered := []byte{'a' + 7, 'b' + 7, 7, 'c' + 7, 'd' + 7}

	plain := Decipher(enciphered)

	assert.Equal(t, []byte{'a', 'b', 7, 'c', 'd'}, plain)
	assert.Equal(t, byte('a'+7), enciphered[0], "input must not be modified")
}

func TestDecipher_Wraps(t *testing.T) {
	plain := Decipher([]byte{0x01, 0x10, 0xFF})
	assert.Equal(t, []byte{0xF1, 0x10, 0xEF}, plain)
}

func TestEncipher_RoundTrip(t *testing.T) {
	src := []byte("#0200\r\n<MSGHello<NOD<END\r\n")
	assert.Equal(t, src, Decipher(Encipher(src)))
	assert.Empty(t, Decipher(nil))
}

func TestDecode_CipheredName(t *testing.T) {
	data := Encipher([]byte("#0001\nhello\n#0002\nworld\n"))

	f, err := Decode("Head.tsc", data, japanese.ShiftJIS, quiet)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, f.EventIDs())
	body, ok := f.Event(1)
	require.True(t, ok)
	assert.Equal(t, "hello", body)
	body, _ = f.Event(2)
	assert.Equal(t, "world", body)
}

func TestDecode_PlainNameIsNotDeciphered(t *testing.T) {
	f, err := Decode("Head.txt", []byte("#0001hello#0002world"), japanese.ShiftJIS, quiet)
	require.NoError(t, err)
	assert.Equal(t, "#0001hello#0002world", f.Script())

	e1, _ := f.Event(1)
	e2, _ := f.Event(2)
	assert.Equal(t, "hello", e1)
	assert.Equal(t, "world", e2)
}

func TestSplitEvents(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   map[int]string
	}{
		{
			name:   "lines join without breaks",
			script: "#0090\r\n<MNA<CMU0008\r\n<FAI0000<END\r\n",
			want:   map[int]string{90: "<MNA<CMU0008<FAI0000<END"},
		},
		{
			name:   "text after header kept",
			script: "#0100<KEY<MSG\nHi<END",
			want:   map[int]string{100: "<KEY<MSGHi<END"},
		},
		{
			name:   "event zero is dropped",
			script: "#0000\nzero\n#0005\nfive",
			want:   map[int]string{5: "five"},
		},
		{
			name:   "text before first event is dropped",
			script: "preamble\n#0001\none",
			want:   map[int]string{1: "one"},
		},
		{
			name:   "last event is kept",
			script: "#0001\none\n#0002\n",
			want:   map[int]string{1: "one", 2: ""},
		},
		{
			name:   "malformed header stays in body",
			script: "#0001\na\n#00x2\nb",
			want:   map[int]string{1: "a#00x2b"},
		},
		{
			name:   "empty",
			script: "",
			want:   map[int]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitEvents(tt.script, quiet))
		})
	}
}

func TestDecode_ShiftJISText(t *testing.T) {
	// "#0001\nテスト"
	raw := append([]byte("#0001\n"), 0x83, 0x65, 0x83, 0x58, 0x83, 0x67)
	f, err := Decode("a.txt", raw, japanese.ShiftJIS, quiet)
	require.NoError(t, err)
	body, _ := f.Event(1)
	assert.Equal(t, "テスト", body)
}

func TestDecode_StopsAtNul(t *testing.T) {
	f, err := Decode("a.txt", []byte("#0001one\x00#0002two"), japanese.ShiftJIS, quiet)
	require.NoError(t, err)
	assert.Equal(t, "#0001one", f.Script())
	assert.Equal(t, []int{1}, f.EventIDs())
}

func TestOpen(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "data/Stage/Start.tsc", Encipher([]byte("#0200\n<END\n")), 0o644))

	f, err := Open(fs, "data/Stage/Start.tsc", japanese.ShiftJIS, quiet)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())
	body, ok := f.Event(200)
	assert.True(t, ok)
	assert.Equal(t, "<END", body)

	_, ok = f.Event(201)
	assert.False(t, ok)

	_, err = Open(fs, "data/Stage/Missing.tsc", japanese.ShiftJIS, quiet)
	assert.Error(t, err)
}
