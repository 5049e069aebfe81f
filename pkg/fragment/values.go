package fragment

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// Pair is one key/value entry of a fragment.
type Pair struct {
	Key   string
	Value string
}

// Values is the ordered list of key/value pairs encoded in a fragment.
// Unlike url.Values it keeps insertion order, so a serialization round trip
// leaves unrelated keys where they were.
type Values struct {
	pairs []Pair
}

// Parse decodes a fragment such as "a=1&b=two+words". A leading '#' is
// ignored. Decoding is lenient: malformed escapes are kept verbatim and
// invalid UTF-8 becomes U+FFFD, so Parse never fails.
func Parse(raw string) Values {
	raw = strings.TrimPrefix(raw, "#")

	var v Values
	for raw != "" {
		var segment string
		segment, raw, _ = strings.Cut(raw, "&")
		if segment == "" {
			continue
		}
		key, value, _ := strings.Cut(segment, "=")
		v.pairs = append(v.pairs, Pair{Key: unescapeForm(key), Value: unescapeForm(value)})
	}
	return v
}

// Get returns the first value for key.
func (v Values) Get(key string) (string, bool) {
	for _, p := range v.pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (v Values) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Set replaces the first pair for key in place and drops any later
// duplicates, or appends a new pair.
func (v *Values) Set(key, value string) {
	found := false
	kept := v.pairs[:0]
	for _, p := range v.pairs {
		if p.Key != key {
			kept = append(kept, p)
			continue
		}
		if !found {
			found = true
			kept = append(kept, Pair{Key: key, Value: value})
		}
	}
	v.pairs = kept
	if !found {
		v.pairs = append(v.pairs, Pair{Key: key, Value: value})
	}
}

// Append adds a pair without touching existing ones.
func (v *Values) Append(key, value string) {
	v.pairs = append(v.pairs, Pair{Key: key, Value: value})
}

// Delete removes every pair for key.
func (v *Values) Delete(key string) {
	kept := v.pairs[:0]
	for _, p := range v.pairs {
		if p.Key != key {
			kept = append(kept, p)
		}
	}
	v.pairs = kept
}

// Len returns the number of pairs.
func (v Values) Len() int {
	return len(v.pairs)
}

// Keys returns the keys in order, including duplicates.
func (v Values) Keys() []string {
	keys := make([]string, len(v.pairs))
	for i, p := range v.pairs {
		keys[i] = p.Key
	}
	return keys
}

// Pairs returns a copy of the pairs.
func (v Values) Pairs() []Pair {
	return append([]Pair(nil), v.pairs...)
}

// Clone returns an independent copy.
func (v Values) Clone() Values {
	return Values{pairs: v.Pairs()}
}

// Encode serializes the pairs in order using form encoding, without a
// leading '#'.
func (v Values) Encode() string {
	var b strings.Builder
	for i, p := range v.pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// String returns Encode().
func (v Values) String() string {
	return v.Encode()
}

// unescapeForm decodes '+' and valid %XX escapes and keeps everything else.
func unescapeForm(s string) string {
	if !strings.ContainsAny(s, "+%") {
		return s
	}
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			buf = append(buf, ' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			buf = append(buf, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
		default:
			buf = append(buf, c)
		}
	}
	if !utf8.Valid(buf) {
		return strings.ToValidUTF8(string(buf), "\uFFFD")
	}
	return string(buf)
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
