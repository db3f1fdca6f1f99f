// Package util provides the text conversions shared by the command line tools.
package util

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cavestory-tools/cse/internal/profile"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// ParseValue parses s as a value of type t. Integers accept decimal, 0x hex
// and 0o octal forms and must fit the type's width.
func ParseValue(t profile.ValueType, s string) (any, error) {
	s = strings.TrimSpace(s)
	switch t {
	case profile.TypeString:
		return FixEscapeQuotes(TrimQuotes(s)), nil
	case profile.TypeBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", t, s, err)
		}
		return b, nil
	case profile.TypeU8, profile.TypeU16, profile.TypeU32, profile.TypeU64:
		n, err := strconv.ParseUint(s, 0, t.Width()*8)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", t, s, err)
		}
		v, _ := t.Convert(n)
		return v, nil
	}
	return nil, fmt.Errorf("cannot parse values of type %s", t)
}

// ParseArgs parses one argument per declared type.
func ParseArgs(types []profile.ValueType, args []string) ([]any, error) {
	if len(args) != len(types) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(types), len(args))
	}
	out := make([]any, len(args))
	for i, t := range types {
		v, err := ParseValue(t, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

// ParseIndex parses a field index. An empty string or "-" selects NoIndex.
func ParseIndex(s string) (int, error) {
	if s == "" || s == "-" {
		return profile.NoIndex, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return n, nil
}

// FormatValue renders a field value for display. Strings are quoted and a nil
// value prints as "-".
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	default:
		return fmt.Sprint(x)
	}
}

// FormatField builds the display name of a field instance: "name" for
// scalars, "name[index]" otherwise.
func FormatField(name string, index int) string {
	if index == profile.NoIndex {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('[')
	b.WriteString(strconv.Itoa(index))
	b.WriteByte(']')
	return b.String()
}
