// Package value defines the closed set of types the store and key
// encoder are willing to serialize: Null, Bool, Num, Str, Array, and
// Object. Anything outside this set is rejected with ErrUnsupportedType
// at the point it is first observed.
package value

import (
	"errors"
	"fmt"
)

// Kind tags a Value's underlying representation.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNum
	KindStr
	KindArray
	KindObject
	// KindAbsent marks a field that is present in an Object literal's
	// construction but must be omitted from serialization, mirroring
	// the source's "undefined" field semantics (spec.md 4.1).
	KindAbsent
)

// ErrUnsupportedType is returned when a Go value outside the closed
// Null/Bool/Num/Str/Array/Object/Absent set reaches the encoder.
var ErrUnsupportedType = errors.New("value: unsupported type")

// Value is a tagged union over the serializable closed set.
type Value struct {
	kind  Kind
	b     bool
	n     float64
	s     string
	arr   []Value
	obj   map[string]Value
	order []string // keys in the order Object visited them; no method exposes it
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Num(n float64) Value        { return Value{kind: KindNum, n: n} }
func Str(s string) Value         { return Value{kind: KindStr, s: s} }
func Absent() Value              { return Value{kind: KindAbsent} }
func Array(items ...Value) Value { return Value{kind: KindArray, arr: append([]Value(nil), items...)} }

// Object builds an Object value from a map. Keys mapping to an Absent
// value are omitted, matching the object-field-omission rule in
// spec.md 4.1.
func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	order := make([]string, 0, len(fields))
	for k, v := range fields {
		if v.kind == KindAbsent {
			continue
		}
		obj[k] = v
		order = append(order, k)
	}
	return Value{kind: KindObject, obj: obj, order: order}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Bool() bool  { return v.b }
func (v Value) Num() float64 { return v.n }
func (v Value) Str() string  { return v.s }

func (v Value) Array() []Value {
	out := make([]Value, len(v.arr))
	copy(out, v.arr)
	return out
}

func (v Value) Field(name string) (Value, bool) {
	f, ok := v.obj[name]
	return f, ok
}

func (v Value) Fields() map[string]Value {
	out := make(map[string]Value, len(v.obj))
	for k, val := range v.obj {
		out[k] = val
	}
	return out
}

// FromGo converts an ordinary Go value (nil, bool, float64/int family,
// string, []any, map[string]any) into a Value, rejecting anything else
// with ErrUnsupportedType. This is the entry point application code
// normally uses to hand opaque JSON-shaped data to the key encoder.
func FromGo(in any) (Value, error) {
	switch x := in.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Num(x), nil
	case float32:
		return Num(float64(x)), nil
	case int:
		return Num(float64(x)), nil
	case int32:
		return Num(float64(x)), nil
	case int64:
		return Num(float64(x)), nil
	case string:
		return Str(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, el := range x {
			v, err := FromGo(el)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Array(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, el := range x {
			v, err := FromGo(el)
			if err != nil {
				return Value{}, err
			}
			fields[k] = v
		}
		return Object(fields), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, in)
	}
}
