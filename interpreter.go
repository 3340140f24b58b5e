// interpreter.go: sessions, expression evaluation, and the derivation
// engine.
//
// A Session binds one grammar to everything a run needs: evaluated
// constants, the seeded RNG, parameter overrides, a print target, the
// mesh cache, and the occlusion octree. Nothing lives in package globals,
// so independent sessions never see each other.
//
// Name resolution order for a reference, closest scope first:
//
//  1. the active user-function frame's arguments
//  2. shape-local only: the derived shape's rule-bound parameters, then
//     custom attributes of the scope stack top
//  3. built-in functions
//  4. shape-local only: built-in shape attributes of the stack top
//  5. global parameters and evaluated constants
//  6. user functions
//
// A name found at a step that takes no arguments rejects a call written
// with parentheses. A miss after step 6 reports the unknown name, with a
// fuzzy suggestion when something known is close.
package shapeml

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync/atomic"

	"github.com/sahilm/fuzzy"
)

// Version of the interpreter, reported by the CLI.
const Version = "0.3.0"

// Caps on the two evaluation recursions.
const (
	maxCallDepth = 20
	maxRefDepth  = 20
)

// DefaultMaxSteps bounds a derivation when the caller does not say
// otherwise. A step is one rule application.
const DefaultMaxSteps = 1000

// Config tunes a Session. Zero values mean: seed 0, no overrides, stdout,
// slog default, fresh cache, fresh octree.
type Config struct {
	Seed      int64
	Params    map[string]Value
	Out       io.Writer
	Logger    *slog.Logger
	MeshCache *MeshCache
	Octree    *Octree
}

// Session is one grammar bound to one run's state.
type Session struct {
	grammar *Grammar
	rng     *rand.Rand
	out     io.Writer
	log     *slog.Logger
	cache   *MeshCache
	octree  *Octree

	params map[string]Value
	consts map[string]Value

	callDepth int
	cancel    atomic.Bool
}

// NewSession applies parameter overrides and evaluates the grammar's
// constants in declaration order. An unknown override name is a warning,
// not an error; a failing constant aborts construction with the
// constant's name in the breadcrumb.
func NewSession(g *Grammar, cfg Config) (*Session, error) {
	ses := &Session{
		grammar: g,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		out:     cfg.Out,
		log:     cfg.Logger,
		cache:   cfg.MeshCache,
		octree:  cfg.Octree,
		params:  make(map[string]Value),
		consts:  make(map[string]Value),
	}
	if ses.out == nil {
		ses.out = os.Stdout
	}
	if ses.log == nil {
		ses.log = slog.Default()
	}
	if ses.cache == nil {
		ses.cache = NewMeshCache()
	}
	if ses.octree == nil {
		ses.octree = NewOctree()
	}

	for _, p := range g.Params {
		ses.params[p.Name] = p.Default
	}
	for name, v := range cfg.Params {
		if _, ok := ses.params[name]; !ok {
			ses.warn("unknown parameter override", slog.String("name", name))
			continue
		}
		ses.params[name] = v
	}
	for _, c := range g.Constants {
		v, err := ses.evalExpr(c.Body, &evalEnv{})
		if err != nil {
			return nil, wrapInside(err, fmt.Sprintf("Inside constant '%s':", c.Name))
		}
		ses.consts[c.Name] = v
	}
	return ses, nil
}

func (ses *Session) Grammar() *Grammar { return ses.grammar }
func (ses *Session) Octree() *Octree   { return ses.octree }

// Cancel requests that a running Derive stop at the next generation
// boundary. Safe to call from any goroutine.
func (ses *Session) Cancel() { ses.cancel.Store(true) }

func (ses *Session) warn(msg string, args ...any) {
	ses.log.Warn(msg, args...)
}

// EvalString parses and evaluates a single expression against the
// session's globals. Shape-local names are not in scope; the REPL and
// tests go through here.
func (ses *Session) EvalString(src string) (Value, error) {
	p := &parser{toks: NewLexer("<input>", src).Scan(), g: ses.grammar}
	e, err := p.expression()
	if err != nil {
		return Value{}, err
	}
	if !p.atEnd() {
		return Value{}, errAt(StageParse, p.peek().Loc, "unexpected input after expression: %s", tokenDesc(p.peek()))
	}
	return ses.evalExpr(e, &evalEnv{})
}

/* ===========================
   expression evaluation
   =========================== */

// frame is one user-function activation.
type frame struct {
	fn   *Function
	args map[string]Value
}

// evalEnv carries what a reference may see: the current function frame
// and, when evaluating inside a rule, the derivation state.
type evalEnv struct {
	frame *frame
	deriv *derivation
}

func (ses *Session) evalExpr(e Expr, env *evalEnv) (Value, error) {
	switch n := e.(type) {
	case *Literal:
		return n.Val, nil
	case *ParenScope:
		return ses.evalExpr(n.Inner, env)
	case *OpExpr:
		if n.Left == nil {
			v, err := ses.evalExpr(n.Right, env)
			if err != nil {
				return Value{}, err
			}
			return applyUnaryOp(n.Op, v, n.At)
		}
		l, err := ses.evalExpr(n.Left, env)
		if err != nil {
			return Value{}, err
		}
		r, err := ses.evalExpr(n.Right, env)
		if err != nil {
			return Value{}, err
		}
		return applyBinaryOp(n.Op, l, r, n.At)
	case *NameRef:
		return ses.resolveName(n, env)
	default:
		return Value{}, errAt(StageEval, e.Loc(), "cannot evaluate expression")
	}
}

func (ses *Session) evalArgs(exprs []Expr, env *evalEnv) ([]Value, error) {
	args := make([]Value, len(exprs))
	for i, e := range exprs {
		v, err := ses.evalExpr(e, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (ses *Session) resolveName(ref *NameRef, env *evalEnv) (Value, error) {
	// 1. Function frame arguments.
	if env.frame != nil {
		if v, ok := env.frame.args[ref.Name]; ok {
			return plainValue(ref, v)
		}
	}

	// 2. Rule-bound parameters, then custom attributes of the stack top.
	if ref.ShapeLocal && env.deriv != nil {
		if v, ok := env.deriv.boundParam(ref.Name); ok {
			return plainValue(ref, v)
		}
		if v, ok := env.deriv.top().Attrs.get(ref.Name); ok {
			return plainValue(ref, v)
		}
	}

	// 3. Built-in functions.
	if spec, ok := functionRegistry[ref.Name]; ok {
		args, err := ses.evalArgs(ref.Args, env)
		if err != nil {
			return Value{}, err
		}
		return callSpec(spec, ses.builtinCtx(CtxFunction, ref.Name, args, ref.At, env.deriv))
	}

	// 4. Built-in shape attributes of the stack top.
	if ref.ShapeLocal && env.deriv != nil {
		if spec, ok := shapeAttrRegistry[ref.Name]; ok {
			args, err := ses.evalArgs(ref.Args, env)
			if err != nil {
				return Value{}, err
			}
			return callSpec(spec, ses.builtinCtx(CtxShapeAttr, ref.Name, args, ref.At, env.deriv))
		}
	}

	// 5. Global parameters and evaluated constants.
	if v, ok := ses.params[ref.Name]; ok {
		return plainValue(ref, v)
	}
	if v, ok := ses.consts[ref.Name]; ok {
		return plainValue(ref, v)
	}

	// 6. User functions.
	if fn := ses.grammar.Function(ref.Name); fn != nil {
		return ses.callFunction(fn, ref, env)
	}

	return Value{}, ses.unknownName(ref)
}

// plainValue guards non-callable resolutions against call syntax.
func plainValue(ref *NameRef, v Value) (Value, error) {
	if ref.Call {
		return Value{}, errAt(StageEval, ref.At, "'%s' is not a function", ref.Name)
	}
	return v, nil
}

func (ses *Session) builtinCtx(kind CtxKind, name string, args []Value, at Locator, d *derivation) *opCtx {
	ctx := &opCtx{ses: ses, deriv: d, args: args, name: name, kind: kind, at: at}
	if d != nil {
		ctx.shapeID = d.topID()
		ctx.shape = d.top()
	}
	return ctx
}

func (ses *Session) callFunction(fn *Function, ref *NameRef, env *evalEnv) (Value, error) {
	if len(ref.Args) != len(fn.Args) {
		return Value{}, errAt(StageEval, ref.At,
			"function '%s' expects %d argument(s), got %d", fn.Name, len(fn.Args), len(ref.Args))
	}
	args, err := ses.evalArgs(ref.Args, env)
	if err != nil {
		return Value{}, err
	}
	if ses.callDepth >= maxCallDepth {
		return Value{}, errAt(StageEval, ref.At,
			"the function call to '%s' reached the max recursion depth (%d).", fn.Name, maxCallDepth)
	}
	ses.callDepth++
	defer func() { ses.callDepth-- }()

	f := &frame{fn: fn, args: make(map[string]Value, len(fn.Args))}
	for i, name := range fn.Args {
		f.args[name] = args[i]
	}
	v, err := ses.evalExpr(fn.Body, &evalEnv{frame: f, deriv: env.deriv})
	if err != nil {
		return Value{}, insideFunction(err, fn.Name)
	}
	if err := checkFinite(v, ref.At, fmt.Sprintf("the result of function '%s'", fn.Name)); err != nil {
		return Value{}, err
	}
	// A shape-operation string leaving an argumented function gets its
	// bound arguments baked in; the frame is gone once the call returns.
	if v.Kind == KindShapeOps && len(f.args) > 0 {
		v = ShapeOpsVal(substShapeOps(v.Ops(), f.args))
	}
	return v, nil
}

func (ses *Session) unknownName(ref *NameRef) error {
	msg := fmt.Sprintf("no variable with that name: '%s'", ref.Name)
	if best, ok := ses.suggestName(ref.Name); ok {
		msg += fmt.Sprintf(" (did you mean '%s'?)", best)
	}
	return errAt(StageEval, ref.At, "%s", msg)
}

// suggestName fuzzy-ranks the unknown name against everything resolvable.
func (ses *Session) suggestName(name string) (string, bool) {
	cands := builtinNames()
	for n := range ses.params {
		cands = append(cands, n)
	}
	for n := range ses.consts {
		cands = append(cands, n)
	}
	for _, f := range ses.grammar.Functions {
		cands = append(cands, f.Name)
	}
	for _, r := range ses.grammar.Rules {
		cands = append(cands, r.Name)
	}
	sort.Strings(cands)
	matches := fuzzy.Find(name, cands)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Str, true
}

/* ===========================
   derivation
   =========================== */

// derivation is the working state while one shape's rule runs.
type derivation struct {
	tree     *ShapeTree
	shape    *Shape  // the shape being rewritten
	shapeID  ShapeID
	rule     *Rule
	stack    []ShapeID // scope stack, top last
	next     []ShapeID // successors queued for the next generation
	refDepth int
}

func (d *derivation) topID() ShapeID { return d.stack[len(d.stack)-1] }
func (d *derivation) top() *Shape    { return d.tree.Get(d.topID()) }

// push duplicates the stack top; pop discards back down to it. pop
// reports false when it would drop the entry scope.
func (d *derivation) push() {
	id, _ := d.tree.CreateOffspring(d.topID())
	d.stack = append(d.stack, id)
}

func (d *derivation) pop() bool {
	if len(d.stack) <= 1 {
		return false
	}
	d.stack = d.stack[:len(d.stack)-1]
	return true
}

// boundParam resolves a name among the derived shape's rule-bound
// parameters: positional values bound at creation, named by the selected
// rule's argument list.
func (d *derivation) boundParam(name string) (Value, bool) {
	if d.rule == nil {
		return Value{}, false
	}
	for i, argName := range d.rule.Args {
		if argName == name && i < len(d.shape.Params) {
			return d.shape.Params[i], true
		}
	}
	return Value{}, false
}

// Derive builds the shape tree from a root named axiom. maxSteps <= 0
// means DefaultMaxSteps; hitting the cap is a warning that leaves the
// remaining shapes unexpanded, not an error. The first evaluation failure
// aborts the derivation.
func (ses *Session) Derive(axiom string, maxSteps int) (*ShapeTree, ShapeID, error) {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	ses.cancel.Store(false)
	tree := NewShapeTree()
	rootID, _ := tree.NewShape(axiom)

	current := []ShapeID{rootID}
	steps := 0
	for round := 0; len(current) > 0; round++ {
		if ses.cancel.Load() {
			ses.warn("derivation canceled", slog.Int("round", round))
			break
		}
		var nextGen []ShapeID
		for _, id := range current {
			if steps >= maxSteps {
				ses.warn("derivation step limit reached",
					slog.Int("max_steps", maxSteps),
					slog.Int("unexpanded", len(current)+len(nextGen)))
				return tree, rootID, nil
			}
			steps++
			produced, err := ses.deriveShape(tree, id)
			if err != nil {
				return tree, rootID, err
			}
			nextGen = append(nextGen, produced...)
		}
		current = nextGen
	}
	return tree, rootID, nil
}

// deriveShape selects and applies one rule for one shape, returning the
// successors that want another generation.
func (ses *Session) deriveShape(tree *ShapeTree, id ShapeID) ([]ShapeID, error) {
	s := tree.Get(id)
	rule, err := ses.selectRule(tree, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		ses.warn("no rule found", slog.String("shape", s.Name))
		return nil, nil
	}
	s.Rule = rule

	d := &derivation{tree: tree, shape: s, shapeID: id, rule: rule}
	wid, w := tree.CreateOffspring(id)
	w.Depth = s.Depth + 1
	d.stack = []ShapeID{wid}

	if err := ses.applyShapeOps(d, rule.Ops); err != nil {
		return nil, wrapInside(err, fmt.Sprintf("Inside rule '%s':", rule.Name))
	}
	if len(d.stack) != 1 {
		return nil, errAt(StageEval, rule.End, "unbalanced scope push/pop in rule '%s'", rule.Name)
	}
	return d.next, nil
}

// selectRule picks the production for a shape: rules with the shape's
// exact parameter count, then those whose condition holds, then one
// survivor by probability weight. A single survivor is taken as is with
// no random draw, so one-candidate selection never disturbs the RNG
// stream. Negative weights clamp to zero; an all-zero total falls back to
// a uniform draw.
func (ses *Session) selectRule(tree *ShapeTree, id ShapeID) (*Rule, error) {
	s := tree.Get(id)
	var byArity []*Rule
	for _, r := range ses.grammar.RulesFor(s.Name) {
		if len(r.Args) == len(s.Params) {
			byArity = append(byArity, r)
		}
	}
	if len(byArity) == 0 {
		return nil, nil
	}

	condEnv := func(r *Rule) *evalEnv {
		return &evalEnv{deriv: &derivation{
			tree: tree, shape: s, shapeID: id, rule: r, stack: []ShapeID{id},
		}}
	}

	var candidates []*Rule
	for _, r := range byArity {
		if r.Cond == nil {
			candidates = append(candidates, r)
			continue
		}
		v, err := ses.evalExpr(r.Cond, condEnv(r))
		if err != nil {
			return nil, wrapInside(err, fmt.Sprintf("Inside condition of rule '%s':", r.Name))
		}
		b, ok := v.ChangeKind(KindBool)
		if !ok {
			return nil, errAt(StageEval, r.Cond.Loc(),
				"the condition of rule '%s' must evaluate to a bool, got %s", r.Name, v.Kind)
		}
		if b.Bool() {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	weights := make([]float64, len(candidates))
	total := 0.0
	for i, r := range candidates {
		w := 1.0
		if r.Prob != nil {
			v, err := ses.evalExpr(r.Prob, condEnv(r))
			if err != nil {
				return nil, wrapInside(err, fmt.Sprintf("Inside probability of rule '%s':", r.Name))
			}
			f, ok := v.ChangeKind(KindFloat)
			if !ok {
				return nil, errAt(StageEval, r.Prob.Loc(),
					"the probability of rule '%s' must evaluate to a number, got %s", r.Name, v.Kind)
			}
			w = f.Float()
			if w < 0 {
				w = 0
			}
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return candidates[ses.rng.Intn(len(candidates))], nil
	}
	draw := ses.rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if draw < acc {
			return candidates[i], nil
		}
	}
	return candidates[len(candidates)-1], nil
}

/* ===========================
   shape-operation strings
   =========================== */

// applyShapeOps runs one shape-operation string against the derivation
// state: registered operations validate and execute, ^references resolve
// to a shape-operation-string value and recurse, and any other name
// spawns a successor shape from the stack top.
func (ses *Session) applyShapeOps(d *derivation, ops []*ShapeOp) error {
	for _, op := range ops {
		if err := ses.applyShapeOp(d, op); err != nil {
			return err
		}
	}
	return nil
}

func (ses *Session) applyShapeOp(d *derivation, op *ShapeOp) error {
	if op.IsRef {
		return ses.applyReference(d, op)
	}
	if spec, ok := shapeOpRegistry[op.Name]; ok {
		args, err := ses.evalArgs(op.Args, &evalEnv{deriv: d})
		if err != nil {
			return err
		}
		_, err = callSpec(spec, ses.builtinCtx(CtxShapeOp, op.Name, args, op.At, d))
		return err
	}
	return ses.spawnSuccessor(d, op)
}

func (ses *Session) applyReference(d *derivation, op *ShapeOp) error {
	if d.refDepth >= maxRefDepth {
		return errAt(StageEval, op.At,
			"the reference to '%s' reached the max recursion depth (%d).", op.Name, maxRefDepth)
	}
	ref := &NameRef{
		Name:       op.Name,
		Args:       op.Args,
		Call:       op.Args != nil,
		ShapeLocal: true,
		At:         op.At,
	}
	v, err := ses.resolveName(ref, &evalEnv{deriv: d})
	if err != nil {
		return insideReference(err, op.Name)
	}
	if v.Kind != KindShapeOps {
		return errAt(StageEval, op.At,
			"'%s' does not name a shape operation string, got %s", op.Name, v.Kind)
	}
	d.refDepth++
	err = ses.applyShapeOps(d, v.Ops())
	d.refDepth--
	if err != nil {
		return insideReference(err, op.Name)
	}
	return nil
}

// spawnSuccessor creates a successor shape as an offspring of the stack
// top, binds its parameters from the evaluated arguments, attaches it
// under the derived shape, and either marks it terminal or queues it for
// the next generation.
func (ses *Session) spawnSuccessor(d *derivation, op *ShapeOp) error {
	args, err := ses.evalArgs(op.Args, &evalEnv{deriv: d})
	if err != nil {
		return err
	}
	id, s := d.tree.CreateOffspring(d.topID())
	s.Name = op.Name
	s.Params = args
	d.tree.Append(d.shapeID, id)

	if isTerminalName(op.Name) {
		s.Terminal = true
		if len(args) > 0 {
			ses.warn("terminal shape ignores its arguments", slog.String("shape", op.Name))
		}
		if s.Mesh.Empty() {
			ses.warn("terminal shape has no mesh", slog.String("shape", op.Name))
		}
		return nil
	}
	d.next = append(d.next, id)
	return nil
}
