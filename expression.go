// expression.go: parsed expression nodes and shape-operation elements.
//
// Nodes are immutable after parsing. Evaluation walks them read-only
// (interpreter.go); the one transform, bound-argument substitution on a
// shape-operation string returned from a function, copies first and
// rewrites the copy. String methods print re-parseable source; explicit
// parentheses survive as ParenScope nodes, so a print/parse cycle
// reproduces the tree exactly.
package shapeml

import "strings"

// OpKind enumerates the expression operators.
type OpKind int

const (
	OpAdd OpKind = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpEq
	OpNeq
	OpAnd
	OpOr
	OpNot // unary
	OpNeg // unary
)

func (op OpKind) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpLess:
		return "<"
	case OpLessEq:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEq:
		return ">="
	case OpEq:
		return "=="
	case OpNeq:
		return "!="
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	case OpNot:
		return "!"
	case OpNeg:
		return "-"
	default:
		return "?"
	}
}

// Expr is a parsed expression node.
type Expr interface {
	Loc() Locator
	String() string
}

// Literal holds a constant value. Brace-delimited shape-operation strings
// parse into a Literal of kind shape-operation string, which is how they
// travel through constants, function bodies, and split arguments.
type Literal struct {
	Val Value
	At  Locator
}

// ParenScope records an explicit parenthesis pair from the source. It
// evaluates to its inner expression and exists solely so printing
// reproduces the original grouping.
type ParenScope struct {
	Inner Expr
	At    Locator
}

// OpExpr is a unary or binary operator application. Left is nil for the
// unary operators (OpNot, OpNeg).
type OpExpr struct {
	Op    OpKind
	Left  Expr
	Right Expr
	At    Locator
}

// NameRef is a reference to a name, optionally with call arguments. Call
// distinguishes `f()` from bare `f`. ShapeLocal is baked in by the parser
// and is true only for references written inside a rule's probability,
// condition, or successor; it gates resolution against rule parameters and
// shape attributes.
type NameRef struct {
	Name       string
	Args       []Expr
	Call       bool
	ShapeLocal bool
	At         Locator
}

func (e *Literal) Loc() Locator    { return e.At }
func (e *ParenScope) Loc() Locator { return e.At }
func (e *OpExpr) Loc() Locator     { return e.At }
func (e *NameRef) Loc() Locator    { return e.At }

func (e *Literal) String() string {
	if e.Val.Kind == KindString {
		return quoteString(e.Val.Str())
	}
	return e.Val.String()
}

func (e *ParenScope) String() string {
	return "(" + e.Inner.String() + ")"
}

func (e *OpExpr) String() string {
	if e.Left == nil {
		return e.Op.String() + e.Right.String()
	}
	return e.Left.String() + " " + e.Op.String() + " " + e.Right.String()
}

func (e *NameRef) String() string {
	if !e.Call {
		return e.Name
	}
	return e.Name + "(" + exprListString(e.Args) + ")"
}

// ShapeOp is one element of a shape-operation string: a named operation or
// successor symbol with argument expressions, a ^reference to a named
// shape-operation-string value, or one of the bare scope brackets "[" and
// "]".
type ShapeOp struct {
	Name  string
	Args  []Expr
	IsRef bool
	At    Locator
}

func (op *ShapeOp) String() string {
	var b strings.Builder
	if op.IsRef {
		b.WriteByte('^')
	}
	b.WriteString(op.Name)
	if len(op.Args) > 0 {
		b.WriteByte('(')
		b.WriteString(exprListString(op.Args))
		b.WriteByte(')')
	}
	return b.String()
}

func shapeOpsString(ops []*ShapeOp) string {
	var b strings.Builder
	b.WriteString("{")
	for _, op := range ops {
		b.WriteByte(' ')
		b.WriteString(op.String())
	}
	b.WriteString(" }")
	return b.String()
}

func exprListString(args []Expr) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// quoteString renders s as a source string literal using the lexer's escape
// set.
func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

/* ===========================
   bound-argument substitution
   =========================== */

// substShapeOps deep-copies a shape-operation string, replacing every bare
// reference to a bound argument name with a literal holding its value. Used
// when a function with arguments returns a shape-operation string: the
// returned copy must not see the frame again.
func substShapeOps(ops []*ShapeOp, bound map[string]Value) []*ShapeOp {
	out := make([]*ShapeOp, len(ops))
	for i, op := range ops {
		cp := &ShapeOp{Name: op.Name, IsRef: op.IsRef, At: op.At}
		if len(op.Args) > 0 {
			cp.Args = make([]Expr, len(op.Args))
			for j, a := range op.Args {
				cp.Args[j] = substExpr(a, bound)
			}
		}
		out[i] = cp
	}
	return out
}

func substExpr(e Expr, bound map[string]Value) Expr {
	switch n := e.(type) {
	case *Literal:
		if n.Val.Kind == KindShapeOps {
			return &Literal{Val: ShapeOpsVal(substShapeOps(n.Val.Ops(), bound)), At: n.At}
		}
		return n
	case *ParenScope:
		return &ParenScope{Inner: substExpr(n.Inner, bound), At: n.At}
	case *OpExpr:
		cp := &OpExpr{Op: n.Op, Right: substExpr(n.Right, bound), At: n.At}
		if n.Left != nil {
			cp.Left = substExpr(n.Left, bound)
		}
		return cp
	case *NameRef:
		if !n.Call {
			if v, ok := bound[n.Name]; ok {
				return &Literal{Val: v, At: n.At}
			}
			return n
		}
		cp := &NameRef{Name: n.Name, Call: true, ShapeLocal: n.ShapeLocal, At: n.At}
		cp.Args = make([]Expr, len(n.Args))
		for i, a := range n.Args {
			cp.Args[i] = substExpr(a, bound)
		}
		return cp
	default:
		return e
	}
}
