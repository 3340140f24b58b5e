// evaluator.go: the built-in registries and the validate-execute protocol.
//
// Every built-in is declared in a compile-time opSpec list (see the
// builtin_*.go files) and folded into one of three closed lookup tables at
// package init: shape operations, shape attributes, and functions. A
// registration names its fixed arity and the positional argument kinds, or
// opts out with ArityAny and validates on its own. Calling any built-in
// goes through callSpec: arity check, positional ChangeKind coercion, the
// optional special hook, the executor, and a finite-result check. Failures
// come back wrapped with the "Inside <kind> '<name>':" breadcrumb.
//
// Operator application over Values also lives here; it needs no session
// state, only the coercion table.
package shapeml

import (
	"fmt"
	"math"
)

// CtxKind says which registry a built-in belongs to and how its context is
// populated.
type CtxKind int

const (
	CtxShapeOp CtxKind = iota
	CtxShapeAttr
	CtxFunction
)

func (k CtxKind) String() string {
	switch k {
	case CtxShapeOp:
		return "shape operation"
	case CtxShapeAttr:
		return "shape attribute"
	default:
		return "function"
	}
}

// ArityAny marks a variadic registration: arity and kind checks are
// skipped and the special hook plus executor do their own validation.
const ArityAny = -1

type execFn func(ctx *opCtx) (Value, error)
type specialFn func(ctx *opCtx) error

// opSpec declares one built-in.
type opSpec struct {
	name     string
	arity    int
	argKinds []Kind
	special  specialFn
	exec     execFn
}

// opCtx is the context passed to every built-in executor. Functions see
// the session; shape attributes additionally see the queried shape; shape
// operations see the full derivation state.
type opCtx struct {
	ses     *Session
	deriv   *derivation
	shape   *Shape
	shapeID ShapeID
	args    []Value
	name    string
	kind    CtxKind
	at      Locator
}

func (ctx *opCtx) arg(i int) Value    { return ctx.args[i] }
func (ctx *opCtx) argF(i int) float64 { return ctx.args[i].asFloat() }
func (ctx *opCtx) argS(i int) string  { return ctx.args[i].Str() }

func (ctx *opCtx) argI(i int) int64 {
	n, _ := ctx.args[i].asInt()
	return n
}

func (ctx *opCtx) failf(format string, args ...any) error {
	return errAt(StageEval, ctx.at, format, args...)
}

/* ===========================
   registries
   =========================== */

var (
	shapeOpRegistry   = map[string]*opSpec{}
	shapeAttrRegistry = map[string]*opSpec{}
	functionRegistry  = map[string]*opSpec{}
)

func init() {
	register(shapeOpRegistry, shapeOpSpecs())
	register(shapeOpRegistry, shapeOpMeshSpecs())
	register(shapeAttrRegistry, shapeAttrSpecs())
	register(functionRegistry, functionSpecs())
}

// register folds a spec list into a lookup table. Duplicate names and
// arity/argKinds mismatches are programming errors.
func register(table map[string]*opSpec, specs []opSpec) {
	for i := range specs {
		s := &specs[i]
		if _, dup := table[s.name]; dup {
			panic("shapeml: duplicate built-in registration: " + s.name)
		}
		if s.arity >= 0 && len(s.argKinds) != s.arity {
			panic("shapeml: arity does not match argument kinds: " + s.name)
		}
		if s.exec == nil {
			panic("shapeml: built-in without executor: " + s.name)
		}
		table[s.name] = s
	}
}

// builtinKind reports whether name is taken by a built-in and by which
// registry. The grammar uses it to keep declared names disjoint from all
// built-ins.
func builtinKind(name string) (string, bool) {
	if _, ok := functionRegistry[name]; ok {
		return "built-in function", true
	}
	if _, ok := shapeAttrRegistry[name]; ok {
		return "built-in shape attribute", true
	}
	if _, ok := shapeOpRegistry[name]; ok {
		return "built-in shape operation", true
	}
	return "", false
}

// builtinNames lists every registered name once, for suggestion ranking.
func builtinNames() []string {
	names := make([]string, 0, len(functionRegistry)+len(shapeAttrRegistry)+len(shapeOpRegistry))
	for n := range functionRegistry {
		names = append(names, n)
	}
	for n := range shapeAttrRegistry {
		names = append(names, n)
	}
	for n := range shapeOpRegistry {
		names = append(names, n)
	}
	return names
}

/* ===========================
   call protocol
   =========================== */

// callSpec validates and executes one built-in call.
func callSpec(spec *opSpec, ctx *opCtx) (Value, error) {
	v, err := runSpec(spec, ctx)
	if err != nil {
		return Value{}, insideOp(err, ctx.kind, ctx.name)
	}
	return v, nil
}

func runSpec(spec *opSpec, ctx *opCtx) (Value, error) {
	if spec.arity != ArityAny {
		if len(ctx.args) != spec.arity {
			return Value{}, ctx.failf("expected %d argument(s), got %d", spec.arity, len(ctx.args))
		}
		for i, want := range spec.argKinds {
			v, ok := ctx.args[i].ChangeKind(want)
			if !ok {
				return Value{}, ctx.failf("argument %d must be %s, got %s", i+1, want, ctx.args[i].Kind)
			}
			ctx.args[i] = v
		}
	}
	if spec.special != nil {
		if err := spec.special(ctx); err != nil {
			return Value{}, err
		}
	}
	v, err := spec.exec(ctx)
	if err != nil {
		return Value{}, err
	}
	if err := checkFinite(v, ctx.at, "the result"); err != nil {
		return Value{}, err
	}
	return v, nil
}

// checkFinite rejects NaN and infinite float values.
func checkFinite(v Value, at Locator, what string) error {
	if v.Kind == KindFloat {
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errAt(StageEval, at, "%s is not a finite number", what)
		}
	}
	return nil
}

/* ===========================
   special-hook helpers
   =========================== */

// argCountIn accepts only the listed argument counts; for ArityAny specs.
func argCountIn(ctx *opCtx, counts ...int) error {
	for _, c := range counts {
		if len(ctx.args) == c {
			return nil
		}
	}
	return ctx.failf("wrong number of arguments: got %d", len(ctx.args))
}

// coerceArgs applies ChangeKind positionally; for ArityAny specs once the
// count is known.
func coerceArgs(ctx *opCtx, kinds ...Kind) error {
	for i, want := range kinds {
		if i >= len(ctx.args) {
			return nil
		}
		v, ok := ctx.args[i].ChangeKind(want)
		if !ok {
			return ctx.failf("argument %d must be %s, got %s", i+1, want, ctx.args[i].Kind)
		}
		ctx.args[i] = v
	}
	return nil
}

func argRangeF(ctx *opCtx, i int, lo, hi float64) error {
	if f := ctx.argF(i); f < lo || f > hi {
		return ctx.failf("argument %d must be in [%g, %g], got %g", i+1, lo, hi, f)
	}
	return nil
}

func argGreaterF(ctx *opCtx, i int, lo float64) error {
	if f := ctx.argF(i); f <= lo {
		return ctx.failf("argument %d must be greater than %g, got %g", i+1, lo, f)
	}
	return nil
}

func argGreaterEqI(ctx *opCtx, i int, lo int64) error {
	if n := ctx.argI(i); n < lo {
		return ctx.failf("argument %d must be at least %d, got %d", i+1, lo, n)
	}
	return nil
}

// needMesh requires a non-empty mesh on the scope stack top.
func needMesh(ctx *opCtx) error {
	if ctx.shape == nil || ctx.shape.Mesh.Empty() {
		return ctx.failf("the current shape has no mesh")
	}
	return nil
}

// needFlatMesh requires a footprint: a non-empty mesh flat in the y=0
// plane.
func needFlatMesh(ctx *opCtx) error {
	if err := needMesh(ctx); err != nil {
		return err
	}
	if !ctx.shape.Mesh.flat() {
		return ctx.failf("the current shape's mesh is not a flat footprint")
	}
	return nil
}

/* ===========================
   operators
   =========================== */

// applyBinaryOp applies a binary operator to evaluated operands. The
// operand rules: shape-operation strings are illegal everywhere; strings
// support only +, ==, and != (+ stringifies the other side); '%' is int
// only, with bool promoting and a genuine float operand a hard failure;
// everything else runs numerically with int preserved when both operands
// are int-like. Logical operators evaluate both sides; there is no short
// circuit.
func applyBinaryOp(op OpKind, l, r Value, at Locator) (Value, error) {
	if l.Kind == KindShapeOps || r.Kind == KindShapeOps {
		return Value{}, errAt(StageEval, at, "a shape operation string cannot be an operand of '%s'", op)
	}

	switch op {
	case OpEq:
		return BoolVal(l.Equal(r)), nil
	case OpNeq:
		return BoolVal(!l.Equal(r)), nil
	case OpAdd:
		if l.Kind == KindString || r.Kind == KindString {
			return StringVal(l.String() + r.String()), nil
		}
	case OpAnd, OpOr:
		lb, ok1 := l.ChangeKind(KindBool)
		rb, ok2 := r.ChangeKind(KindBool)
		if !ok1 || !ok2 {
			return Value{}, errAt(StageEval, at, "operands of '%s' must be bools", op)
		}
		if op == OpAnd {
			return BoolVal(lb.Bool() && rb.Bool()), nil
		}
		return BoolVal(lb.Bool() || rb.Bool()), nil
	case OpMod:
		a, ok1 := l.asInt()
		b, ok2 := r.asInt()
		if !ok1 || !ok2 {
			return Value{}, errAt(StageEval, at, "operands of '%%' must be ints")
		}
		if b == 0 {
			return Value{}, errAt(StageEval, at, "modulo by zero")
		}
		return IntVal(a % b), nil
	}

	if !l.isNumeric() || !r.isNumeric() {
		return Value{}, errAt(StageEval, at, "operands of '%s' must be numbers, got %s and %s", op, l.Kind, r.Kind)
	}

	switch op {
	case OpLess, OpLessEq, OpGreater, OpGreaterEq:
		a, b := l.asFloat(), r.asFloat()
		switch op {
		case OpLess:
			return BoolVal(a < b), nil
		case OpLessEq:
			return BoolVal(a <= b), nil
		case OpGreater:
			return BoolVal(a > b), nil
		default:
			return BoolVal(a >= b), nil
		}
	}

	// Arithmetic: int stays int when both sides are int-like.
	if l.Kind != KindFloat && r.Kind != KindFloat {
		a, _ := l.asInt()
		b, _ := r.asInt()
		switch op {
		case OpAdd:
			return IntVal(a + b), nil
		case OpSub:
			return IntVal(a - b), nil
		case OpMul:
			return IntVal(a * b), nil
		case OpDiv:
			if b == 0 {
				return Value{}, errAt(StageEval, at, "division by zero")
			}
			return IntVal(a / b), nil
		}
	}

	a, b := l.asFloat(), r.asFloat()
	var f float64
	switch op {
	case OpAdd:
		f = a + b
	case OpSub:
		f = a - b
	case OpMul:
		f = a * b
	case OpDiv:
		f = a / b
	default:
		return Value{}, errAt(StageEval, at, "unsupported operator '%s'", op)
	}
	v := FloatVal(f)
	if err := checkFinite(v, at, fmt.Sprintf("the result of '%s'", op)); err != nil {
		return Value{}, err
	}
	return v, nil
}

// applyUnaryOp applies ! or unary -. Negating a bool promotes it to int
// first, so -true is -1.
func applyUnaryOp(op OpKind, v Value, at Locator) (Value, error) {
	if v.Kind == KindShapeOps {
		return Value{}, errAt(StageEval, at, "a shape operation string cannot be an operand of '%s'", op)
	}
	switch op {
	case OpNot:
		b, ok := v.ChangeKind(KindBool)
		if !ok {
			return Value{}, errAt(StageEval, at, "operand of '!' must be a bool")
		}
		return BoolVal(!b.Bool()), nil
	case OpNeg:
		switch v.Kind {
		case KindFloat:
			return FloatVal(-v.Float()), nil
		case KindInt:
			return IntVal(-v.Int()), nil
		case KindBool:
			return IntVal(-boolToInt(v.Bool())), nil
		default:
			return Value{}, errAt(StageEval, at, "operand of unary '-' must be a number, got %s", v.Kind)
		}
	default:
		return Value{}, errAt(StageEval, at, "unsupported operator '%s'", op)
	}
}
