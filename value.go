// value.go: the runtime value union and its coercion rules.
//
// Grammar evaluation deals in exactly five kinds: bool, int, float, string,
// and shape-operation string. Kind changes are deliberate and few: the three
// scalar kinds convert freely among themselves, everything stringifies one
// way, and shape-operation strings convert to and from nothing. Ints are
// int64 at runtime; the 32-bit bound is a lexer contract, enforced where it
// is observable (digit accumulation of a literal).
package shapeml

import (
	"math"
	"strconv"
)

// Kind tags a Value.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindString
	KindShapeOps
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindShapeOps:
		return "shape operation string"
	default:
		return "unknown"
	}
}

// Value is the tagged union flowing through expressions, attribute lookups,
// and shape-operation arguments.
//
// Data holds bool | int64 | float64 | string | []*ShapeOp according to Kind.
type Value struct {
	Kind Kind
	Data any
}

func BoolVal(b bool) Value     { return Value{Kind: KindBool, Data: b} }
func IntVal(n int64) Value     { return Value{Kind: KindInt, Data: n} }
func FloatVal(f float64) Value { return Value{Kind: KindFloat, Data: f} }
func StringVal(s string) Value { return Value{Kind: KindString, Data: s} }

func ShapeOpsVal(ops []*ShapeOp) Value {
	return Value{Kind: KindShapeOps, Data: ops}
}

// Accessors assume the kind has been checked or coerced first.

func (v Value) Bool() bool      { return v.Data.(bool) }
func (v Value) Int() int64      { return v.Data.(int64) }
func (v Value) Float() float64  { return v.Data.(float64) }
func (v Value) Str() string     { return v.Data.(string) }
func (v Value) Ops() []*ShapeOp { return v.Data.([]*ShapeOp) }

// String renders the value for output (printLn, dumps, string concat).
// Strings render without quotes; floats use the shortest representation that
// round-trips, so 103.0 prints as "103".
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case KindString:
		return v.Str()
	case KindShapeOps:
		return shapeOpsString(v.Ops())
	default:
		return "<invalid>"
	}
}

// ChangeKind converts v to the requested kind. The legal moves:
//
//	bool <-> int <-> float   (bool is 0/1, float->int truncates toward zero)
//	any scalar -> string     (one way, never back)
//
// Shape-operation strings convert to and from nothing. The bool reports
// whether the conversion was legal.
func (v Value) ChangeKind(to Kind) (Value, bool) {
	if v.Kind == to {
		return v, true
	}
	switch v.Kind {
	case KindBool:
		switch to {
		case KindInt:
			return IntVal(boolToInt(v.Bool())), true
		case KindFloat:
			return FloatVal(float64(boolToInt(v.Bool()))), true
		case KindString:
			return StringVal(v.String()), true
		}
	case KindInt:
		switch to {
		case KindBool:
			return BoolVal(v.Int() != 0), true
		case KindFloat:
			return FloatVal(float64(v.Int())), true
		case KindString:
			return StringVal(v.String()), true
		}
	case KindFloat:
		switch to {
		case KindBool:
			return BoolVal(v.Float() != 0), true
		case KindInt:
			f := v.Float()
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return Value{}, false
			}
			return IntVal(int64(f)), true
		case KindString:
			return StringVal(v.String()), true
		}
	}
	return Value{}, false
}

// isNumeric includes bool, which promotes to 0/1 wherever a number is
// expected.
func (v Value) isNumeric() bool {
	return v.Kind == KindBool || v.Kind == KindInt || v.Kind == KindFloat
}

// asFloat widens any numeric kind to float64.
func (v Value) asFloat() float64 {
	switch v.Kind {
	case KindBool:
		return float64(boolToInt(v.Bool()))
	case KindInt:
		return float64(v.Int())
	default:
		return v.Float()
	}
}

// asInt narrows bool or int to int64. Floats do not qualify, integral or
// not; the caller decides whether that is an error.
func (v Value) asInt() (int64, bool) {
	switch v.Kind {
	case KindBool:
		return boolToInt(v.Bool()), true
	case KindInt:
		return v.Int(), true
	default:
		return 0, false
	}
}

// floatEqEps is the fixed tolerance for float equality everywhere: the ==
// and != operators, Value.Equal, and nothing else.
const floatEqEps = 1e-5

func floatEq(a, b float64) bool {
	return math.Abs(a-b) <= floatEqEps
}

// Equal reports semantic equality. Numeric kinds (bool included) compare
// numerically, as float with the fixed epsilon when either side is float.
// Strings compare bytewise. Shape-operation strings never compare equal;
// the operator layer rejects them before this is reached.
func (v Value) Equal(o Value) bool {
	if v.Kind == KindString || o.Kind == KindString {
		return v.Kind == KindString && o.Kind == KindString && v.Str() == o.Str()
	}
	if !v.isNumeric() || !o.isNumeric() {
		return false
	}
	if v.Kind == KindFloat || o.Kind == KindFloat {
		return floatEq(v.asFloat(), o.asFloat())
	}
	a, _ := v.asInt()
	b, _ := o.asInt()
	return a == b
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
