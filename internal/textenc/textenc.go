// Package textenc resolves the configured game-text encoding name.
package textenc

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
)

// Default is the encoding the game ships its text in.
const Default = "Shift_JIS"

// aliases maps names used by older editor settings to index labels.
var aliases = map[string]string{
	"cp943c": "shift_jis",
	"cp943":  "shift_jis",
	"ms932":  "shift_jis",
	"sjis":   "shift_jis",
	"cp1252": "windows-1252",
}

// Lookup returns the encoding registered under name. An empty name yields
// Shift_JIS.
func Lookup(name string) (encoding.Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return japanese.ShiftJIS, nil
	}
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	enc, err := htmlindex.Get(key)
	if err != nil {
		return nil, fmt.Errorf("unknown text encoding %q: %w", name, err)
	}
	return enc, nil
}

// Decode converts raw bytes to a string, stopping at the first zero byte.
func Decode(enc encoding.Encoding, raw []byte) (string, error) {
	for i, b := range raw {
		if b == 0 {
			raw = raw[:i]
			break
		}
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decoding text: %w", err)
	}
	return string(out), nil
}
