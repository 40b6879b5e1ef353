// Package chainkey builds the canonical, order-insensitive serialization
// of a structured application key, per spec.md section 4.1: object keys
// are sorted lexicographically before encoding so that two structurally
// equal keys (same fields, any insertion order) produce byte-identical
// serials.
package chainkey

import (
	"sort"
	"strconv"
	"strings"

	"tactical/pkg/value"
)

// ChainKey identifies a logical object. It carries the application's
// structured key alongside its canonical serialized form.
type ChainKey struct {
	structured value.Value
	serial     string
}

// New builds a ChainKey from an arbitrary Go value (typically a
// map[string]any produced by application code). Returns
// value.ErrUnsupportedType if the key contains anything outside the
// closed serializable set.
func New(structured any) (ChainKey, error) {
	v, err := value.FromGo(structured)
	if err != nil {
		return ChainKey{}, err
	}
	return FromValue(v), nil
}

// FromValue builds a ChainKey directly from an already-converted Value.
func FromValue(v value.Value) ChainKey {
	return ChainKey{structured: v, serial: Serialize(v)}
}

// Structured returns the original structured key.
func (k ChainKey) Structured() value.Value { return k.structured }

// Serial returns the canonical serialized form, stable under key
// reordering.
func (k ChainKey) Serial() string { return k.serial }

// Serialize renders v into its canonical JSON-like text: objects emit
// fields in sorted-key order, arrays preserve order, absent values
// serialize as the literal null when they appear as array elements.
func Serialize(v value.Value) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v value.Value) {
	switch v.Kind() {
	case value.KindNull, value.KindAbsent:
		b.WriteString("null")
	case value.KindBool:
		if v.Bool() {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case value.KindNum:
		b.WriteString(strconv.FormatFloat(v.Num(), 'g', -1, 64))
	case value.KindStr:
		writeQuoted(b, v.Str())
	case value.KindArray:
		b.WriteByte('[')
		for i, el := range v.Array() {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, el)
		}
		b.WriteByte(']')
	case value.KindObject:
		fields := v.Fields()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeQuoted(b, k)
			b.WriteByte(':')
			writeValue(b, fields[k])
		}
		b.WriteByte('}')
	}
}

const hexDigits = "0123456789abcdef"

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[r>>4])
				b.WriteByte(hexDigits[r&0xf])
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}
