package form

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Separators used by application/x-www-form-urlencoded bodies
const (
	PairSeparator     = "&"
	KeyValueSeparator = "="
)

// Field is one decoded key/value pair
type Field struct {
	Key   string
	Value string
}

// Fields is a decoded form submission in input order. Keys may repeat.
type Fields []Field

// ParseError reports a body that cannot be split into key/value pairs
type ParseError struct {
	Segment string // offending segment, after decoding
	Index   int    // position of the segment in the body
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("form segment %d %q: %v", e.Index, e.Segment, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// errSeparatorCount is wrapped into ParseError for segments without exactly one '='
var errSeparatorCount = fmt.Errorf("expected exactly one %q separator", KeyValueSeparator)

// Parse decodes a URL-encoded body. The whole body is unescaped first
// ('+' becomes a space, %XX becomes the byte), then split on '&' and each
// segment on its single '='. An encoded '&' or '=' therefore separates
// pairs once decoded. Only the separator count can fail.
func Parse(data []byte) (Fields, error) {
	decoded := Unescape(string(data))

	segments := strings.Split(decoded, PairSeparator)
	fields := make(Fields, 0, len(segments))

	for i, segment := range segments {
		parts := strings.Split(segment, KeyValueSeparator)
		if len(parts) != 2 {
			return nil, &ParseError{Segment: segment, Index: i, Err: errSeparatorCount}
		}
		fields = append(fields, Field{Key: parts[0], Value: parts[1]})
	}

	return fields, nil
}

// Map returns the submission as a mapping; the last value of a repeated key wins
func (f Fields) Map() map[string]string {
	m := make(map[string]string, len(f))
	for _, field := range f {
		m[field.Key] = field.Value
	}
	return m
}

// Dedup collapses repeated keys the same way Map does while keeping the
// position where each key first appeared.
func (f Fields) Dedup() Fields {
	index := make(map[string]int, len(f))
	out := make(Fields, 0, len(f))

	for _, field := range f {
		if i, seen := index[field.Key]; seen {
			out[i].Value = field.Value
			continue
		}
		index[field.Key] = len(out)
		out = append(out, field)
	}

	return out
}

// Unescape turns '+' into a space and every valid %XX into its byte.
// A '%' not followed by two hex digits is kept as is. Byte sequences that
// are not valid UTF-8 after decoding become U+FFFD.
func Unescape(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}

	out := b.String()
	if !utf8.ValidString(out) {
		out = strings.ToValidUTF8(out, string(utf8.RuneError))
	}
	return out
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
