// printer.go: grammar printing.
//
// Print emits source that parses back into an equal grammar: parameters,
// constants, functions, then rules, one declaration per line with a blank
// line between the groups. Expression printing lives on the nodes
// themselves (expression.go); this file only owns statement layout.
package shapeml

import (
	"fmt"
	"io"
	"strings"
)

// Print writes the grammar as re-parseable source.
func (g *Grammar) Print(w io.Writer) error {
	pw := &printWriter{w: w}

	for _, p := range g.Params {
		pw.linef("param %s = %s;", p.Name, (&Literal{Val: p.Default}).String())
	}
	pw.gap(len(g.Constants) > 0)
	for _, c := range g.Constants {
		pw.linef("const %s = %s;", c.Name, c.Body.String())
	}
	pw.gap(len(g.Functions) > 0)
	for _, f := range g.Functions {
		pw.linef("func %s(%s) = %s;", f.Name, strings.Join(f.Args, ", "), f.Body.String())
	}
	pw.gap(len(g.Rules) > 0)
	for _, r := range g.Rules {
		pw.linef("%s;", ruleHead(r)+" = "+shapeOpsString(r.Ops))
	}
	return pw.err
}

func (g *Grammar) String() string {
	var b strings.Builder
	g.Print(&b)
	return b.String()
}

func ruleHead(r *Rule) string {
	var b strings.Builder
	b.WriteString("rule ")
	b.WriteString(r.Name)
	if len(r.Args) > 0 {
		b.WriteByte('(')
		b.WriteString(strings.Join(r.Args, ", "))
		b.WriteByte(')')
	}
	if r.Prob != nil {
		b.WriteString(" : ")
		b.WriteString(r.Prob.String())
	}
	if r.Cond != nil {
		b.WriteString(" :: ")
		b.WriteString(r.Cond.String())
	}
	return b.String()
}

type printWriter struct {
	w      io.Writer
	err    error
	anyOut bool
}

func (pw *printWriter) linef(format string, args ...any) {
	if pw.err != nil {
		return
	}
	_, pw.err = fmt.Fprintf(pw.w, format+"\n", args...)
	pw.anyOut = true
}

// gap prints the blank line between declaration groups, but only when both
// sides of the gap exist.
func (pw *printWriter) gap(nextGroup bool) {
	if pw.err != nil || !pw.anyOut || !nextGroup {
		return
	}
	_, pw.err = fmt.Fprintln(pw.w)
}
