// grammar.go: the parsed grammar and its declaration tables.
//
// A Grammar is what the parser builds and what a Session consumes: global
// parameters, ordered constants, user functions, and production rules. The
// Add methods own the naming invariants, so every way of constructing a
// grammar (parser, tests, tools) goes through the same checks.
package shapeml

// Param is a global parameter: a literal default the driver may override
// per session.
type Param struct {
	Name    string
	Default Value
	At      Locator
}

// Constant is a named expression evaluated once at session start, in
// declaration order. Constants may reference parameters, earlier constants,
// and functions, and may evaluate to any kind including shape-operation
// strings.
type Constant struct {
	Name string
	Body Expr
	At   Locator
}

// Function is a user-defined function: a body expression over named
// arguments.
type Function struct {
	Name string
	Args []string
	Body Expr
	At   Locator
}

// Rule is one production. Prob and Cond are nil when the clause was not
// written. End is the final source line of the successor, where a scope
// stack imbalance is reported.
type Rule struct {
	Name string
	Args []string
	Prob Expr
	Cond Expr
	Ops  []*ShapeOp
	At   Locator
	End  Locator
}

// Grammar holds the declaration tables. Declared names are unique across
// all four tables (rules may repeat a predecessor among themselves) and
// must not shadow any registered built-in.
type Grammar struct {
	Params    []*Param
	Constants []*Constant
	Functions []*Function
	Rules     []*Rule

	paramIdx map[string]*Param
	constIdx map[string]*Constant
	funcIdx  map[string]*Function
	ruleIdx  map[string][]*Rule
}

func NewGrammar() *Grammar {
	return &Grammar{
		paramIdx: make(map[string]*Param),
		constIdx: make(map[string]*Constant),
		funcIdx:  make(map[string]*Function),
		ruleIdx:  make(map[string][]*Rule),
	}
}

func (g *Grammar) Param(name string) *Param       { return g.paramIdx[name] }
func (g *Grammar) Constant(name string) *Constant { return g.constIdx[name] }
func (g *Grammar) Function(name string) *Function { return g.funcIdx[name] }
func (g *Grammar) RulesFor(name string) []*Rule   { return g.ruleIdx[name] }

// usedAs reports how a declared name is already taken, if it is.
func (g *Grammar) usedAs(name string) (string, bool) {
	if kind, ok := builtinKind(name); ok {
		return kind, true
	}
	if g.paramIdx[name] != nil {
		return "parameter", true
	}
	if g.constIdx[name] != nil {
		return "constant", true
	}
	if g.funcIdx[name] != nil {
		return "function", true
	}
	if len(g.ruleIdx[name]) > 0 {
		return "rule", true
	}
	return "", false
}

func (g *Grammar) checkFresh(name string, loc Locator) error {
	if kind, taken := g.usedAs(name); taken {
		return errAt(StageParse, loc, "name '%s' is already used by a %s", name, kind)
	}
	return nil
}

func checkArgNames(args []string, what, name string, loc Locator) error {
	seen := make(map[string]bool, len(args))
	for _, a := range args {
		if seen[a] {
			return errAt(StageParse, loc, "duplicate argument name '%s' in %s '%s'", a, what, name)
		}
		seen[a] = true
	}
	return nil
}

func (g *Grammar) AddParameter(p *Param) error {
	if err := g.checkFresh(p.Name, p.At); err != nil {
		return err
	}
	g.Params = append(g.Params, p)
	g.paramIdx[p.Name] = p
	return nil
}

func (g *Grammar) AddConstant(c *Constant) error {
	if err := g.checkFresh(c.Name, c.At); err != nil {
		return err
	}
	g.Constants = append(g.Constants, c)
	g.constIdx[c.Name] = c
	return nil
}

func (g *Grammar) AddFunction(f *Function) error {
	if err := g.checkFresh(f.Name, f.At); err != nil {
		return err
	}
	if err := checkArgNames(f.Args, "function", f.Name, f.At); err != nil {
		return err
	}
	g.Functions = append(g.Functions, f)
	g.funcIdx[f.Name] = f
	return nil
}

// AddRule appends a production. Several rules may share a predecessor
// (stochastic alternatives); the predecessor must still be free of every
// other table and must not end in the terminal marker.
func (g *Grammar) AddRule(r *Rule) error {
	if isTerminalName(r.Name) {
		return errAt(StageParse, r.At, "rule predecessor '%s' must not end in '%s'", r.Name, terminalSuffix)
	}
	if kind, ok := builtinKind(r.Name); ok {
		return errAt(StageParse, r.At, "name '%s' is already used by a %s", r.Name, kind)
	}
	if g.paramIdx[r.Name] != nil || g.constIdx[r.Name] != nil || g.funcIdx[r.Name] != nil {
		kind, _ := g.usedAs(r.Name)
		return errAt(StageParse, r.At, "name '%s' is already used by a %s", r.Name, kind)
	}
	if err := checkArgNames(r.Args, "rule", r.Name, r.At); err != nil {
		return err
	}
	g.Rules = append(g.Rules, r)
	g.ruleIdx[r.Name] = append(g.ruleIdx[r.Name], r)
	return nil
}

// terminalSuffix marks successor symbols that become terminal shapes
// instead of being derived further.
const terminalSuffix = "_"

func isTerminalName(name string) bool {
	return len(name) > 0 && name[len(name)-1] == '_'
}
