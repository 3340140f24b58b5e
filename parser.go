// parser.go: recursive descent over the token stream, one token lookahead.
//
// The parser fills a Grammar through its Add methods, so naming invariants
// live in one place. Failures come in two flavors with the same type: token
// mismatches ("expected ';', found '}'") and semantic rejections raised by
// the Add methods (duplicate names, bad predecessor). Either aborts the
// parse of the whole input.
//
// The shapeLocal flag is raised only while a rule's probability, condition,
// and successor are being parsed, and is baked into every NameRef created
// inside that window. Whether a reference may see rule parameters and shape
// attributes is decided here, once, at parse time.
//
// ParseExprInteractive runs the same parser in interactive mode, where a
// failure at the end of the input satisfies IsIncomplete.
package shapeml

import "fmt"

type parser struct {
	toks        []Token
	i           int
	g           *Grammar
	shapeLocal  bool
	lexErr      *Error
	interactive bool
}

// Parse builds a Grammar from a token stream produced by a Lexer.
func Parse(toks []Token) (*Grammar, error) {
	p := &parser{toks: toks, g: NewGrammar()}
	if err := p.stmtList(); err != nil {
		return nil, err
	}
	return p.g, nil
}

// ParseGrammarString lexes and parses src under a display name. Includes
// resolve relative to the working directory.
func ParseGrammarString(name, src string) (*Grammar, error) {
	return Parse(NewLexer(name, src).Scan())
}

// LoadGrammar reads, lexes, and parses the grammar file at path. The
// returned sources map feeds FormatErrorSnippet; it is valid even when
// parsing failed.
func LoadGrammar(path string) (*Grammar, map[string]string, error) {
	lx, err := NewLexerFile(path)
	if err != nil {
		return nil, nil, err
	}
	g, err := Parse(lx.Scan())
	return g, lx.Sources(), err
}

// ParseExprInteractive parses src as one full expression in interactive
// mode: failures caused by the input ending mid-construct satisfy
// IsIncomplete, telling a REPL to read another line instead of reporting
// the error. The parsed expression is discarded by the REPL probe, but
// returned so tests can inspect it.
func ParseExprInteractive(src string) (Expr, error) {
	lx := NewLexerInteractive(src)
	p := &parser{toks: lx.Scan(), lexErr: lx.Err(), interactive: true}
	e, err := p.expression()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, errAt(StageParse, p.peek().Loc,
			"unexpected input after expression: %s", tokenDesc(p.peek()))
	}
	return e, nil
}

/* ===========================
   token plumbing
   =========================== */

func (p *parser) peek() Token {
	if p.i >= len(p.toks) {
		return Token{Kind: TokEOF}
	}
	return p.toks[p.i]
}

func (p *parser) prev() Token { return p.toks[p.i-1] }

func (p *parser) atEnd() bool { return p.peek().Kind == TokEOF }

func (p *parser) match(kinds ...TokKind) bool {
	k := p.peek().Kind
	for _, want := range kinds {
		if k == want {
			p.i++
			return true
		}
	}
	return false
}

func (p *parser) need(kind TokKind) (Token, error) {
	t := p.peek()
	if t.Kind == TokError {
		return t, p.lexFailure()
	}
	if t.Kind != kind {
		return t, p.failAt(t, "expected %s, found %s", kind, tokenDesc(t))
	}
	p.i++
	return t, nil
}

// failAt is errAt plus the incomplete flag: when the offending token is the
// end of an interactively parsed input, more lines could still complete the
// construct.
func (p *parser) failAt(t Token, format string, args ...any) *Error {
	e := errAt(StageParse, t.Loc, format, args...)
	e.Incomplete = p.interactive && t.Kind == TokEOF
	return e
}

// lexFailure converts the terminal TokError token back into the lexer's
// diagnostic.
func (p *parser) lexFailure() error {
	if p.lexErr != nil {
		return p.lexErr
	}
	t := p.peek()
	return errAt(StageLex, t.Loc, "%s", t.Lexeme)
}

func tokenDesc(t Token) string {
	switch t.Kind {
	case TokID:
		return fmt.Sprintf("identifier '%s'", t.Lexeme)
	case TokInt, TokFloat, TokString:
		return fmt.Sprintf("%s '%s'", t.Kind, t.Lexeme)
	default:
		return t.Kind.String()
	}
}

/* ===========================
   declarations
   =========================== */

func (p *parser) stmtList() error {
	for !p.atEnd() {
		if p.peek().Kind == TokError {
			return p.lexFailure()
		}
		var err error
		switch {
		case p.match(TokParam):
			err = p.paramStmt()
		case p.match(TokConst):
			err = p.constStmt()
		case p.match(TokFunc):
			err = p.funcStmt()
		case p.match(TokRule):
			err = p.ruleStmt()
		default:
			return errAt(StageParse, p.peek().Loc,
				"expected 'param', 'const', 'func', or 'rule', found %s", tokenDesc(p.peek()))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) paramStmt() error {
	name, err := p.need(TokID)
	if err != nil {
		return err
	}
	if _, err := p.need(TokAssign); err != nil {
		return err
	}
	val, err := p.literalValue()
	if err != nil {
		return err
	}
	if _, err := p.need(TokSemicolon); err != nil {
		return err
	}
	return p.g.AddParameter(&Param{Name: name.Lexeme, Default: val, At: name.Loc})
}

// literalValue parses a parameter default: a bool, int, float, or string
// constant, with an optional sign on the numeric kinds.
func (p *parser) literalValue() (Value, error) {
	neg := p.match(TokMinus)
	t := p.peek()
	switch t.Kind {
	case TokInt:
		p.i++
		if neg {
			return IntVal(-t.Val.Int()), nil
		}
		return t.Val, nil
	case TokFloat:
		p.i++
		if neg {
			return FloatVal(-t.Val.Float()), nil
		}
		return t.Val, nil
	case TokString, TokTrue, TokFalse:
		if neg {
			return Value{}, errAt(StageParse, t.Loc, "cannot negate a %s parameter default", t.Val.Kind)
		}
		p.i++
		return t.Val, nil
	case TokError:
		return Value{}, p.lexFailure()
	default:
		return Value{}, p.failAt(t,
			"parameter default must be a bool, int, float, or string constant, found %s", tokenDesc(t))
	}
}

func (p *parser) constStmt() error {
	name, err := p.need(TokID)
	if err != nil {
		return err
	}
	if _, err := p.need(TokAssign); err != nil {
		return err
	}
	body, err := p.expression()
	if err != nil {
		return err
	}
	if _, err := p.need(TokSemicolon); err != nil {
		return err
	}
	return p.g.AddConstant(&Constant{Name: name.Lexeme, Body: body, At: name.Loc})
}

func (p *parser) funcStmt() error {
	name, err := p.need(TokID)
	if err != nil {
		return err
	}
	if _, err := p.need(TokLParen); err != nil {
		return err
	}
	args, err := p.argNames()
	if err != nil {
		return err
	}
	if _, err := p.need(TokAssign); err != nil {
		return err
	}
	body, err := p.expression()
	if err != nil {
		return err
	}
	if _, err := p.need(TokSemicolon); err != nil {
		return err
	}
	return p.g.AddFunction(&Function{Name: name.Lexeme, Args: args, Body: body, At: name.Loc})
}

// argNames parses a possibly empty name list up to and including the
// closing parenthesis.
func (p *parser) argNames() ([]string, error) {
	var args []string
	if p.match(TokRParen) {
		return args, nil
	}
	for {
		t, err := p.need(TokID)
		if err != nil {
			return nil, err
		}
		args = append(args, t.Lexeme)
		if p.match(TokRParen) {
			return args, nil
		}
		if _, err := p.need(TokComma); err != nil {
			return nil, err
		}
	}
}

func (p *parser) ruleStmt() error {
	name, err := p.need(TokID)
	if err != nil {
		return err
	}
	r := &Rule{Name: name.Lexeme, At: name.Loc}
	if p.match(TokLParen) {
		if r.Args, err = p.argNames(); err != nil {
			return err
		}
	}

	p.shapeLocal = true
	defer func() { p.shapeLocal = false }()

	if p.match(TokColon) {
		if r.Prob, err = p.expression(); err != nil {
			return err
		}
	}
	if p.match(TokColonColon) {
		if r.Cond, err = p.expression(); err != nil {
			return err
		}
	}
	if _, err := p.need(TokAssign); err != nil {
		return err
	}
	if _, err := p.need(TokLBrace); err != nil {
		return err
	}
	if r.Ops, r.End, err = p.shapeOps(); err != nil {
		return err
	}
	if _, err := p.need(TokSemicolon); err != nil {
		return err
	}
	return p.g.AddRule(r)
}

// shapeOps parses the elements of a brace-delimited shape-operation string.
// The opening brace has been consumed; the locator of the closing brace is
// returned alongside the ops.
func (p *parser) shapeOps() ([]*ShapeOp, Locator, error) {
	ops := []*ShapeOp{}
	for {
		switch {
		case p.match(TokRBrace):
			return ops, p.prev().Loc, nil
		case p.match(TokLBracket):
			ops = append(ops, &ShapeOp{Name: "[", At: p.prev().Loc})
		case p.match(TokRBracket):
			ops = append(ops, &ShapeOp{Name: "]", At: p.prev().Loc})
		case p.match(TokCaret):
			at := p.prev().Loc
			name, err := p.need(TokID)
			if err != nil {
				return nil, Locator{}, err
			}
			op := &ShapeOp{Name: name.Lexeme, IsRef: true, At: at}
			if p.match(TokLParen) {
				if op.Args, err = p.callArgs(); err != nil {
					return nil, Locator{}, err
				}
			}
			ops = append(ops, op)
		case p.match(TokID):
			t := p.prev()
			op := &ShapeOp{Name: t.Lexeme, At: t.Loc}
			if p.match(TokLParen) {
				var err error
				if op.Args, err = p.callArgs(); err != nil {
					return nil, Locator{}, err
				}
			}
			ops = append(ops, op)
		case p.peek().Kind == TokError:
			return nil, Locator{}, p.lexFailure()
		default:
			return nil, Locator{}, p.failAt(p.peek(),
				"expected shape operation or '}', found %s", tokenDesc(p.peek()))
		}
	}
}

// callArgs parses a possibly empty expression list up to and including the
// closing parenthesis.
func (p *parser) callArgs() ([]Expr, error) {
	args := []Expr{}
	if p.match(TokRParen) {
		return args, nil
	}
	for {
		a, err := p.expression()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.match(TokRParen) {
			return args, nil
		}
		if _, err := p.need(TokComma); err != nil {
			return nil, err
		}
	}
}

/* ===========================
   expressions
   =========================== */

func (p *parser) expression() (Expr, error) { return p.orExpr() }

func (p *parser) binaryChain(next func() (Expr, error), ops ...TokKind) (Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for p.match(ops...) {
		op := p.prev()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &OpExpr{Op: tokToOp(op.Kind), Left: left, Right: right, At: op.Loc}
	}
	return left, nil
}

func (p *parser) orExpr() (Expr, error) {
	return p.binaryChain(p.andExpr, TokOrOr)
}

func (p *parser) andExpr() (Expr, error) {
	return p.binaryChain(p.eqExpr, TokAndAnd)
}

func (p *parser) eqExpr() (Expr, error) {
	return p.binaryChain(p.relExpr, TokEqEq, TokBangEq)
}

func (p *parser) relExpr() (Expr, error) {
	return p.binaryChain(p.addExpr, TokLess, TokLessEq, TokGreater, TokGreaterEq)
}

func (p *parser) addExpr() (Expr, error) {
	return p.binaryChain(p.mulExpr, TokPlus, TokMinus)
}

func (p *parser) mulExpr() (Expr, error) {
	return p.binaryChain(p.unary, TokStar, TokSlash, TokPercent)
}

func (p *parser) unary() (Expr, error) {
	if p.match(TokBang, TokMinus) {
		op := p.prev()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		kind := OpNeg
		if op.Kind == TokBang {
			kind = OpNot
		}
		return &OpExpr{Op: kind, Right: operand, At: op.Loc}, nil
	}
	return p.primary()
}

func (p *parser) primary() (Expr, error) {
	t := p.peek()
	switch t.Kind {
	case TokInt, TokFloat, TokString, TokTrue, TokFalse:
		p.i++
		return &Literal{Val: t.Val, At: t.Loc}, nil
	case TokLParen:
		p.i++
		inner, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(TokRParen); err != nil {
			return nil, err
		}
		return &ParenScope{Inner: inner, At: t.Loc}, nil
	case TokLBrace:
		p.i++
		ops, _, err := p.shapeOps()
		if err != nil {
			return nil, err
		}
		return &Literal{Val: ShapeOpsVal(ops), At: t.Loc}, nil
	case TokID:
		p.i++
		ref := &NameRef{Name: t.Lexeme, ShapeLocal: p.shapeLocal, At: t.Loc}
		if p.match(TokLParen) {
			ref.Call = true
			var err error
			if ref.Args, err = p.callArgs(); err != nil {
				return nil, err
			}
		}
		return ref, nil
	case TokError:
		return nil, p.lexFailure()
	default:
		return nil, p.failAt(t, "expected expression, found %s", tokenDesc(t))
	}
}

func tokToOp(k TokKind) OpKind {
	switch k {
	case TokPlus:
		return OpAdd
	case TokMinus:
		return OpSub
	case TokStar:
		return OpMul
	case TokSlash:
		return OpDiv
	case TokPercent:
		return OpMod
	case TokLess:
		return OpLess
	case TokLessEq:
		return OpLessEq
	case TokGreater:
		return OpGreater
	case TokGreaterEq:
		return OpGreaterEq
	case TokEqEq:
		return OpEq
	case TokBangEq:
		return OpNeq
	case TokAndAnd:
		return OpAnd
	case TokOrOr:
		return OpOr
	default:
		return OpAdd
	}
}
