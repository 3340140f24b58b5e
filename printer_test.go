package shapeml

import "testing"

func Test_Printer_CanonicalLayout(t *testing.T) {
	g := mustGrammar(t, `
param width=2.5;
param label =  "a\nb" ;

const area = width*width;
func grow( x ) = x+1;
rule Axiom : 1 :: width > 1 = { s(width, 1.0, width) cube Mass } ;
rule Mass = {};
`)
	want := `param width = 2.5;
param label = "a\nb";

const area = width * width;

func grow(x) = x + 1;

rule Axiom : 1 :: width > 1 = { s(width, 1, width) cube Mass };
rule Mass = { };
`
	if got := g.String(); got != want {
		t.Fatalf("canonical form wrong:\n--- got ---\n%s--- want ---\n%s", got, want)
	}
}

// Canonical output must reparse into a grammar whose canonical output is
// identical. Printing normalizes forms that stay semantically equal, so the
// comparison runs on the second print, not the input.
func Test_Printer_RoundTrip_Fixpoint(t *testing.T) {
	srcs := []string{
		`rule A = { cube } ;`,
		`param p = -3; rule A(w) : p :: w >= 0.0 = { [ tx(w) ^Deco ] A(w - 1) } ;
		 const deco = { color("#ff0000") sphere } ;`,
		`func f(a, b) = (a + b) * -a; const c = f(1, 2) % 3 != 0 && !false;`,
		`const s = "quote \" backslash \\ tab \t";`,
		`rule R = { box(1.0, 2.5, 3) } ;`,
	}
	for _, src := range srcs {
		first := mustGrammar(t, src).String()
		second := mustGrammar(t, first).String()
		if first != second {
			t.Fatalf("not a fixpoint:\n--- first ---\n%s--- second ---\n%s", first, second)
		}
	}
}

func Test_Printer_GroupGaps(t *testing.T) {
	g := mustGrammar(t, `rule A = { cube } ;`)
	if got, want := g.String(), "rule A = { cube };\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	g = mustGrammar(t, `const one = 1; func id(x) = x;`)
	if got, want := g.String(), "const one = 1;\n\nfunc id(x) = x;\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
