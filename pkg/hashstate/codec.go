package hashstate

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Codec converts a value to and from the string stored in the fragment and
// the mirror store. Encode and Decode must be inverses; the binding never
// checks that they are.
type Codec[T any] interface {
	Encode(value T) (string, error)
	Decode(encoded string) (T, error)
}

// CodecFuncs adapts a pair of functions to Codec.
type CodecFuncs[T any] struct {
	EncodeFunc func(T) (string, error)
	DecodeFunc func(string) (T, error)
}

// Encode calls EncodeFunc.
func (c CodecFuncs[T]) Encode(value T) (string, error) {
	if c.EncodeFunc == nil {
		return "", fmt.Errorf("hashstate: codec has no encode func")
	}
	return c.EncodeFunc(value)
}

// Decode calls DecodeFunc.
func (c CodecFuncs[T]) Decode(encoded string) (T, error) {
	if c.DecodeFunc == nil {
		var zero T
		return zero, fmt.Errorf("hashstate: codec has no decode func")
	}
	return c.DecodeFunc(encoded)
}

// DefaultCodec returns the codec a binding uses when Options.Codec is nil:
// ScalarCodec for strings, booleans, numbers and slices of those, JSONCodec
// for everything else.
func DefaultCodec[T any]() Codec[T] {
	if isScalarType(reflect.TypeOf((*T)(nil)).Elem()) {
		return ScalarCodec[T]{}
	}
	return JSONCodec[T]{}
}

// StringCodec percent-encodes strings the way encodeURIComponent does.
type StringCodec struct{}

// Encode escapes s. Like encodeURIComponent it fails on input that is not
// valid UTF-8.
func (StringCodec) Encode(s string) (string, error) {
	return escapeValid(s)
}

// Decode unescapes s, rejecting malformed escapes and invalid UTF-8.
func (StringCodec) Decode(s string) (string, error) {
	return UnescapeComponent(s)
}

// ScalarCodec formats strings, booleans, integers and floats with strconv,
// and slices of those as comma-separated lists, then percent-encodes the
// result. Unlike a lenient parser it reports malformed input instead of
// returning the zero value.
type ScalarCodec[T any] struct{}

// Encode formats and escapes value.
func (ScalarCodec[T]) Encode(value T) (string, error) {
	v := reflect.ValueOf(&value).Elem()
	if v.Kind() == reflect.Slice {
		parts := make([]string, v.Len())
		for i := range parts {
			s, err := formatScalar(v.Index(i))
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return escapeValid(strings.Join(parts, ","))
	}
	s, err := formatScalar(v)
	if err != nil {
		return "", err
	}
	return escapeValid(s)
}

// Decode unescapes and parses encoded.
func (ScalarCodec[T]) Decode(encoded string) (T, error) {
	var result T
	s, err := UnescapeComponent(encoded)
	if err != nil {
		return result, err
	}

	v := reflect.ValueOf(&result).Elem()
	if v.Kind() == reflect.Slice {
		if s == "" {
			v.Set(reflect.MakeSlice(v.Type(), 0, 0))
			return result, nil
		}
		parts := strings.Split(s, ",")
		slice := reflect.MakeSlice(v.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := parseScalar(slice.Index(i), part); err != nil {
				return result, err
			}
		}
		v.Set(slice)
		return result, nil
	}
	if err := parseScalar(v, s); err != nil {
		return result, err
	}
	return result, nil
}

// JSONCodec stores values as percent-encoded JSON.
type JSONCodec[T any] struct{}

// Encode marshals and escapes value.
func (JSONCodec[T]) Encode(value T) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return EscapeComponent(string(data)), nil
}

// Decode unescapes and unmarshals encoded.
func (JSONCodec[T]) Decode(encoded string) (T, error) {
	var result T
	s, err := UnescapeComponent(encoded)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return result, err
	}
	return result, nil
}

// Base64JSONCodec stores values as unpadded base64url JSON, which needs no
// further escaping inside a fragment.
type Base64JSONCodec[T any] struct{}

// Encode marshals value.
func (Base64JSONCodec[T]) Encode(value T) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode unmarshals encoded.
func (Base64JSONCodec[T]) Decode(encoded string) (T, error) {
	var result T
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, err
	}
	return result, nil
}

// EscapeComponent percent-encodes every byte of s except ASCII letters,
// digits and - _ . ! ~ * ' ( ), matching encodeURIComponent.
func EscapeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreservedComponent(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

// ErrInvalidUTF8 is returned when encoding a string that UnescapeComponent
// could not read back.
var ErrInvalidUTF8 = errors.New("hashstate: string is not valid UTF-8")

func escapeValid(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", ErrInvalidUTF8
	}
	return EscapeComponent(s), nil
}

// UnescapeComponent reverses EscapeComponent. Like decodeURIComponent it
// fails on truncated or non-hex escapes and on byte sequences that are not
// valid UTF-8; '+' is left alone.
func UnescapeComponent(s string) (string, error) {
	out, err := url.PathUnescape(s)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(out) {
		return "", fmt.Errorf("hashstate: malformed UTF-8 in %q", s)
	}
	return out, nil
}

func unreservedComponent(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

func isScalarType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice:
		return t.Elem().Kind() != reflect.Slice && isScalarType(t.Elem())
	}
	return false
}

func formatScalar(v reflect.Value) (string, error) {
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	default:
		return "", fmt.Errorf("hashstate: unsupported scalar type %v", v.Type())
	}
}

func parseScalar(v reflect.Value, s string) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	default:
		return fmt.Errorf("hashstate: unsupported scalar type %v", v.Type())
	}
	return nil
}
