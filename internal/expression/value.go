// Package expression implements the `${{ ... }}` template language: a
// tokenizer/parser producing a small expression AST (references, boolean
// combinations, ternaries) and an evaluator that resolves that AST against
// a running workflow's context.
package expression

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueType tags the dynamic value kinds the evaluator produces.
type ValueType string

const (
	TypeNil     ValueType = "nil"
	TypeBool    ValueType = "bool"
	TypeNumber  ValueType = "number"
	TypeString  ValueType = "string"
	TypeArray   ValueType = "array"
	TypeMap     ValueType = "map"
	TypeOpaque  ValueType = "opaque"
)

// Value is a dynamically-typed value flowing through expression
// evaluation: a reference may resolve to any of these kinds.
type Value interface {
	Type() ValueType
	// Go returns the plain Go representation (string, float64, bool,
	// []interface{}, map[string]interface{}, nil, or the opaque value).
	Go() interface{}
	// String renders the canonical textual form used when a value is
	// interpolated into a mixed string.
	String() string
	// Truthy implements the truthiness rules from §4.1: empty
	// strings/arrays/maps and zero are false; nil is false.
	Truthy() bool
}

type NilValue struct{}

func (NilValue) Type() ValueType   { return TypeNil }
func (NilValue) Go() interface{}   { return nil }
func (NilValue) String() string    { return "None" }
func (NilValue) Truthy() bool      { return false }

type BoolValue struct{ Val bool }

func (v BoolValue) Type() ValueType { return TypeBool }
func (v BoolValue) Go() interface{} { return v.Val }
func (v BoolValue) String() string {
	if v.Val {
		return "True"
	}
	return "False"
}
func (v BoolValue) Truthy() bool { return v.Val }

type NumberValue struct{ Val float64 }

func (v NumberValue) Type() ValueType { return TypeNumber }
func (v NumberValue) Go() interface{} { return v.Val }
func (v NumberValue) String() string {
	if v.Val == float64(int64(v.Val)) {
		return strconv.FormatInt(int64(v.Val), 10)
	}
	return strconv.FormatFloat(v.Val, 'g', -1, 64)
}
func (v NumberValue) Truthy() bool { return v.Val != 0 }

type StringValue struct{ Val string }

func (v StringValue) Type() ValueType { return TypeString }
func (v StringValue) Go() interface{} { return v.Val }
func (v StringValue) String() string  { return v.Val }
func (v StringValue) Truthy() bool    { return v.Val != "" }

type ArrayValue struct{ Items []Value }

func (v ArrayValue) Type() ValueType { return TypeArray }
func (v ArrayValue) Go() interface{} {
	out := make([]interface{}, len(v.Items))
	for i, it := range v.Items {
		out[i] = it.Go()
	}
	return out
}
func (v ArrayValue) String() string {
	parts := make([]string, len(v.Items))
	for i, it := range v.Items {
		parts[i] = literalForm(it)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (v ArrayValue) Truthy() bool { return len(v.Items) > 0 }

type MapValue struct{ Items map[string]Value }

func (v MapValue) Type() ValueType { return TypeMap }
func (v MapValue) Go() interface{} {
	out := make(map[string]interface{}, len(v.Items))
	for k, it := range v.Items {
		out[k] = it.Go()
	}
	return out
}
func (v MapValue) String() string {
	keys := make([]string, 0, len(v.Items))
	for k := range v.Items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%q: %s", k, literalForm(v.Items[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (v MapValue) Truthy() bool { return len(v.Items) > 0 }

// OpaqueValue wraps a Go value of a shape the expression system does not
// otherwise model (e.g. a step's structured agent result object). It is
// truthy unless nil.
type OpaqueValue struct{ Val interface{} }

func (v OpaqueValue) Type() ValueType { return TypeOpaque }
func (v OpaqueValue) Go() interface{} { return v.Val }
func (v OpaqueValue) String() string  { return fmt.Sprintf("%v", v.Val) }
func (v OpaqueValue) Truthy() bool    { return v.Val != nil }

func literalForm(v Value) string {
	if s, ok := v.(StringValue); ok {
		return strconv.Quote(s.Val)
	}
	return v.String()
}

// FromGo lifts a plain Go value (as decoded from YAML/JSON, or returned by
// a step) into the Value union.
func FromGo(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return NilValue{}
	case bool:
		return BoolValue{Val: t}
	case string:
		return StringValue{Val: t}
	case int:
		return NumberValue{Val: float64(t)}
	case int64:
		return NumberValue{Val: float64(t)}
	case float64:
		return NumberValue{Val: t}
	case float32:
		return NumberValue{Val: float64(t)}
	case []interface{}:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = FromGo(it)
		}
		return ArrayValue{Items: items}
	case map[string]interface{}:
		items := make(map[string]Value, len(t))
		for k, it := range t {
			items[k] = FromGo(it)
		}
		return MapValue{Items: items}
	default:
		return OpaqueValue{Val: t}
	}
}
