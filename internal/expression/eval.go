package expression

import (
	"fmt"
)

// Context is the read surface an expression evaluates against. It is kept
// narrow and interface-shaped (rather than importing execcontext
// directly) so that any context-like type — including the iteration-local
// views built by the loop handler — can be evaluated against without a
// package cycle.
type Context interface {
	// Input returns the value at the given path within the bound inputs,
	// and whether every segment of the path resolved.
	Input(path []string) (interface{}, bool)
	// StepOutput returns a completed step's output and whether that step
	// has run yet.
	StepOutput(name string) (interface{}, bool)
	// Item returns the current loop item, if evaluation is inside a loop
	// iteration.
	Item() (interface{}, bool)
	// Index returns the current loop iteration index, if any.
	Index() (int, bool)
}

// ReferenceNotFoundError is raised when an `inputs.*` path does not
// resolve. Unlike a missing step output, this is always an error (see
// Open Question #1 in DESIGN.md).
type ReferenceNotFoundError struct {
	Path string
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("reference not found: %s", e.Path)
}

// UndefinedOutsideLoopError is raised when `item`/`index` is evaluated
// outside of a loop iteration.
type UndefinedOutsideLoopError struct {
	Ref string
}

func (e *UndefinedOutsideLoopError) Error() string {
	return fmt.Sprintf("'%s' is undefined outside of a loop iteration", e.Ref)
}

// Evaluate walks an expression AST against ctx and produces its Value.
func Evaluate(expr Expr, ctx Context) (Value, error) {
	switch e := expr.(type) {
	case *Reference:
		return evalReference(e, ctx)
	case *BoolOp:
		return evalBoolOp(e, ctx)
	case *Ternary:
		cond, err := Evaluate(e.Cond, ctx)
		if err != nil {
			return nil, err
		}
		if cond.Truthy() {
			return Evaluate(e.Then, ctx)
		}
		return Evaluate(e.Else, ctx)
	default:
		return nil, fmt.Errorf("unsupported expression node %T", expr)
	}
}

func evalBoolOp(op *BoolOp, ctx Context) (Value, error) {
	var result Value = BoolValue{Val: op.Op == "and"}
	for i, operand := range op.Operands {
		v, err := Evaluate(operand, ctx)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			result = v
		}
		if op.Op == "or" {
			if v.Truthy() {
				return v, nil
			}
			result = v
		} else { // and
			if !v.Truthy() {
				return v, nil
			}
			result = v
		}
	}
	return result, nil
}

func evalReference(ref *Reference, ctx Context) (Value, error) {
	var value Value
	switch ref.Kind {
	case RefInput:
		path := make([]string, len(ref.Path))
		for i, acc := range ref.Path {
			if acc.IsIndex {
				return nil, fmt.Errorf("inputs.%s: index accessors are not supported on inputs", joinAccessors(ref.Path))
			}
			path[i] = acc.Key
		}
		raw, ok := ctx.Input(path)
		if !ok {
			return nil, &ReferenceNotFoundError{Path: "inputs." + joinAccessors(ref.Path)}
		}
		value = FromGo(raw)

	case RefStep:
		raw, ok := ctx.StepOutput(ref.StepName)
		if !ok {
			value = NilValue{}
		} else {
			v, err := descend(FromGo(raw), ref.Path, true)
			if err != nil {
				return nil, err
			}
			value = v
		}

	case RefItem:
		raw, ok := ctx.Item()
		if !ok {
			return nil, &UndefinedOutsideLoopError{Ref: "item"}
		}
		v, err := descend(FromGo(raw), ref.Path, true)
		if err != nil {
			return nil, err
		}
		value = v

	case RefIndex:
		idx, ok := ctx.Index()
		if !ok {
			return nil, &UndefinedOutsideLoopError{Ref: "index"}
		}
		value = NumberValue{Val: float64(idx)}

	default:
		return nil, fmt.Errorf("unknown reference kind %q", ref.Kind)
	}

	if ref.Negated {
		return BoolValue{Val: !value.Truthy()}, nil
	}
	return value, nil
}

// descend walks accessors into a Value. When lenient is true (steps/item
// paths), a missing key resolves to NilValue instead of an error — the
// "missing step reference" leniency from §4.1.
func descend(v Value, path []Accessor, lenient bool) (Value, error) {
	current := v
	for _, acc := range path {
		switch t := current.(type) {
		case MapValue:
			key := acc.Key
			if acc.IsIndex {
				return nil, fmt.Errorf("cannot use an index accessor on a map")
			}
			next, ok := t.Items[key]
			if !ok {
				if lenient {
					return NilValue{}, nil
				}
				return nil, fmt.Errorf("key %q not found", key)
			}
			current = next

		case ArrayValue:
			if !acc.IsIndex {
				return nil, fmt.Errorf("cannot use a key accessor on an array")
			}
			idx := acc.Index
			if idx < 0 {
				idx += len(t.Items)
			}
			if idx < 0 || idx >= len(t.Items) {
				if lenient {
					return NilValue{}, nil
				}
				return nil, fmt.Errorf("index %d out of range", acc.Index)
			}
			current = t.Items[idx]

		case NilValue:
			if lenient {
				return NilValue{}, nil
			}
			return nil, fmt.Errorf("cannot descend into null value")

		default:
			if lenient {
				return NilValue{}, nil
			}
			return nil, fmt.Errorf("cannot descend into value of type %s", current.Type())
		}
	}
	return current, nil
}

func joinAccessors(path []Accessor) string {
	s := ""
	for _, acc := range path {
		if acc.IsIndex {
			s += fmt.Sprintf("[%d]", acc.Index)
		} else if s == "" {
			s += acc.Key
		} else {
			s += "." + acc.Key
		}
	}
	return s
}
