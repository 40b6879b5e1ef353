// Package mutate implements the mutation-application algebra referenced
// by spec.md section 9's design notes: a closed tagged sum describing
// how to compute a new application value from an old one. The Version
// Chain Store never imports this package — it treats Commit's mutation
// payload as opaque — this algebra exists for application code that
// wants a structured way to build that payload instead of hand-rolling
// JSON patches. No package in this module imports it.
//
// Grounded on the teacher's pkg/types.Value closed-value-kind model,
// generalized from SQL cell values to the generic map[string]any /
// []any / scalar shapes this module's Value type carries.
package mutate

import (
	"errors"
	"fmt"
)

// ErrTypeMismatch is returned by Apply when a mutation cannot be applied
// to the given value's shape (e.g. SubProperty against a non-object).
var ErrTypeMismatch = errors.New("mutate: type mismatch")

// Mutation is a single step in the algebra. Every concrete mutation type
// in this package implements it.
type Mutation interface {
	Apply(old any) (any, error)
}

// SetProperties shallow-merges fields into an object, creating the
// object if old is nil.
type SetProperties struct {
	Fields map[string]any
}

func (m SetProperties) Apply(old any) (any, error) {
	obj, ok := asObject(old)
	if !ok {
		return nil, fmt.Errorf("%w: SetProperties against %T", ErrTypeMismatch, old)
	}
	out := make(map[string]any, len(obj)+len(m.Fields))
	for k, v := range obj {
		out[k] = v
	}
	for k, v := range m.Fields {
		out[k] = v
	}
	return out, nil
}

// SubProperty recursively applies an inner Mutation to a named field of
// an object.
type SubProperty struct {
	Name  string
	Inner Mutation
}

func (m SubProperty) Apply(old any) (any, error) {
	obj, ok := asObject(old)
	if !ok {
		return nil, fmt.Errorf("%w: SubProperty against %T", ErrTypeMismatch, old)
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	updated, err := m.Inner.Apply(obj[m.Name])
	if err != nil {
		return nil, err
	}
	out[m.Name] = updated
	return out, nil
}

// ArrayValue replaces an array's element at Index, growing the array
// with nils if Index is past the current length.
type ArrayValue struct {
	Index int
	Value any
}

func (m ArrayValue) Apply(old any) (any, error) {
	arr, ok := asArray(old)
	if !ok {
		return nil, fmt.Errorf("%w: ArrayValue against %T", ErrTypeMismatch, old)
	}
	if m.Index < 0 {
		return nil, fmt.Errorf("%w: ArrayValue negative index %d", ErrTypeMismatch, m.Index)
	}
	out := make([]any, max(len(arr), m.Index+1))
	copy(out, arr)
	out[m.Index] = m.Value
	return out, nil
}

// ArrayTruncation truncates an array to Length elements.
type ArrayTruncation struct {
	Length int
}

func (m ArrayTruncation) Apply(old any) (any, error) {
	arr, ok := asArray(old)
	if !ok {
		return nil, fmt.Errorf("%w: ArrayTruncation against %T", ErrTypeMismatch, old)
	}
	if m.Length < 0 || m.Length > len(arr) {
		return nil, fmt.Errorf("%w: ArrayTruncation length %d out of range for len %d", ErrTypeMismatch, m.Length, len(arr))
	}
	out := make([]any, m.Length)
	copy(out, arr[:m.Length])
	return out, nil
}

// ArraySub recursively applies an inner Mutation to an array element.
type ArraySub struct {
	Index int
	Inner Mutation
}

func (m ArraySub) Apply(old any) (any, error) {
	arr, ok := asArray(old)
	if !ok {
		return nil, fmt.Errorf("%w: ArraySub against %T", ErrTypeMismatch, old)
	}
	if m.Index < 0 || m.Index >= len(arr) {
		return nil, fmt.Errorf("%w: ArraySub index %d out of range for len %d", ErrTypeMismatch, m.Index, len(arr))
	}
	out := make([]any, len(arr))
	copy(out, arr)
	updated, err := m.Inner.Apply(arr[m.Index])
	if err != nil {
		return nil, err
	}
	out[m.Index] = updated
	return out, nil
}

func asObject(v any) (map[string]any, bool) {
	if v == nil {
		return map[string]any{}, true
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func asArray(v any) ([]any, bool) {
	if v == nil {
		return []any{}, true
	}
	arr, ok := v.([]any)
	return arr, ok
}
