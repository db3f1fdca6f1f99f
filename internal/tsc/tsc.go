// Package tsc decodes script containers: optionally enciphered text split
// into #NNNN events.
package tsc

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding"

	"github.com/cavestory-tools/cse/internal/textenc"
)

// CipheredExt marks a script file whose bytes are enciphered.
const CipheredExt = ".tsc"

// File is a decoded script.
type File struct {
	script string
	events map[int]string
}

// Open reads and decodes the script at path.
func Open(fs afero.Fs, path string, enc encoding.Encoding, log *slog.Logger) (*File, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return Decode(filepath.Base(path), data, enc, log)
}

// Decode deciphers data when name carries the ciphered extension, decodes it
// with enc and splits it into events. data is not modified.
func Decode(name string, data []byte, enc encoding.Encoding, log *slog.Logger) (*File, error) {
	if log == nil {
		log = slog.Default()
	}
	raw := data
	if strings.EqualFold(filepath.Ext(name), CipheredExt) {
		raw = Decipher(data)
	}

	script, err := textenc.Decode(enc, raw)
	if err != nil {
		return nil, fmt.Errorf("decoding script %s: %w", name, err)
	}
	return &File{script: script, events: splitEvents(script, log)}, nil
}

// Decipher returns a copy of data with the key, the byte at the midpoint,
// subtracted from every other byte. The key byte itself is kept.
func Decipher(data []byte) []byte {
	out := append([]byte(nil), data...)
	if len(out) == 0 {
		return out
	}
	mid := len(out) / 2
	key := out[mid]
	for i := range out {
		if i != mid {
			out[i] -= key
		}
	}
	return out
}

// Encipher is the inverse of Decipher.
func Encipher(data []byte) []byte {
	out := append([]byte(nil), data...)
	if len(out) == 0 {
		return out
	}
	mid := len(out) / 2
	key := out[mid]
	for i := range out {
		if i != mid {
			out[i] += key
		}
	}
	return out
}

// splitEvents walks the script line by line. A '#' followed by four digits
// starts an event; text after the header and on following lines is joined
// without line breaks. The body of event 0 is discarded.
func splitEvents(script string, log *slog.Logger) map[int]string {
	events := make(map[int]string)
	current := -1
	var body strings.Builder

	flush := func() {
		if current > 0 {
			events[current] = body.String()
		}
		body.Reset()
	}

	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSuffix(line, "\r")
		for line != "" {
			at := strings.IndexByte(line, '#')
			if at < 0 || len(line) < at+5 {
				body.WriteString(line)
				break
			}
			id, ok := parseID(line[at+1 : at+5])
			if !ok {
				if at == 0 {
					log.Warn("Malformed event header", "line", line)
				}
				body.WriteString(line[:at+1])
				line = line[at+1:]
				continue
			}
			body.WriteString(line[:at])
			flush()
			current = id
			line = line[at+5:]
		}
	}
	flush()
	return events
}

func parseID(s string) (int, bool) {
	id := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		id = id*10 + int(c-'0')
	}
	return id, true
}

// Script returns the decoded text.
func (f *File) Script() string {
	return f.script
}

// EventIDs returns the known event IDs in ascending order.
func (f *File) EventIDs() []int {
	ids := make([]int, 0, len(f.events))
	for id := range f.events {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Event returns the body of event id.
func (f *File) Event(id int) (string, bool) {
	body, ok := f.events[id]
	return body, ok
}

// Len returns the number of events.
func (f *File) Len() int {
	return len(f.events)
}
