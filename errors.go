// errors.go: the diagnostic type, breadcrumb wrapping, and snippet rendering.
//
// Every failure surfaced by the lexer, the parser, or the evaluator is a
// *Error carrying a message and a Locator (file + 1-based line). Evaluation
// boundaries prepend breadcrumbs ("Inside function 'f': ...") so a failure
// deep inside a derivation reads as a path from the rule down to the fault.
// Warnings are not errors; they go through the session logger and never
// abort anything.
package shapeml

import (
	"errors"
	"fmt"
	"strings"
)

// Stage says which phase produced a diagnostic. It only affects the header
// of the rendered message.
type Stage int

const (
	StageLex Stage = iota
	StageParse
	StageEval
)

func (s Stage) String() string {
	switch s {
	case StageLex:
		return "LEX ERROR"
	case StageParse:
		return "PARSE ERROR"
	default:
		return "EVAL ERROR"
	}
}

// Locator pins a diagnostic to a source line. File is an interned pointer
// into the lexer's file table; every token of one file aliases the same
// string, so copying a Locator is two words.
type Locator struct {
	File *string
	Line int
}

func (l Locator) FileName() string {
	if l.File == nil {
		return ""
	}
	return *l.File
}

func (l Locator) String() string {
	if l.File == nil {
		return fmt.Sprintf("line %d", l.Line)
	}
	return fmt.Sprintf("%s:%d", *l.File, l.Line)
}

// Error is the single diagnostic kind used across lexing, parsing, and
// evaluation. Incomplete is set only by interactive parsing, for failures
// where the input ran out mid-construct and more lines could still complete
// it.
type Error struct {
	Stage      Stage
	Msg        string
	Loc        Locator
	Incomplete bool
}

func (e *Error) Error() string {
	if e.Loc.Line <= 0 {
		return fmt.Sprintf("%s: %s", e.Stage, e.Msg)
	}
	return fmt.Sprintf("%s at %s: %s", e.Stage, e.Loc, e.Msg)
}

func errAt(stage Stage, loc Locator, format string, args ...any) *Error {
	return &Error{Stage: stage, Msg: fmt.Sprintf(format, args...), Loc: loc}
}

// IsIncomplete reports whether err is an interactive parse failure that more
// input could still complete. A REPL keeps reading continuation lines while
// this holds instead of reporting the error.
func IsIncomplete(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Incomplete
}

// wrapInside prepends a breadcrumb to an *Error message, keeping the
// innermost Locator. Anything that is not a *Error passes through untouched.
func wrapInside(err error, crumb string) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	return &Error{Stage: e.Stage, Msg: crumb + " " + e.Msg, Loc: e.Loc, Incomplete: e.Incomplete}
}

func insideFunction(err error, name string) error {
	return wrapInside(err, fmt.Sprintf("Inside function '%s':", name))
}

func insideOp(err error, kind CtxKind, name string) error {
	return wrapInside(err, fmt.Sprintf("Inside %s '%s':", kind, name))
}

func insideReference(err error, name string) error {
	return wrapInside(err, fmt.Sprintf("Inside reference to '%s':", name))
}

// FormatErrorSnippet renders err together with a few numbered source lines
// when err is a *Error whose file is present in sources (as collected by
// Lexer.Sources). Other errors render as err.Error(). Locators carry no
// column, so no caret is drawn under the line.
func FormatErrorSnippet(err error, sources map[string]string) string {
	e, ok := err.(*Error)
	if !ok || e.Loc.File == nil || e.Loc.Line <= 0 {
		return err.Error()
	}
	src, ok := sources[*e.Loc.File]
	if !ok {
		return err.Error()
	}
	lines := strings.Split(src, "\n")
	if len(lines) == 0 {
		return err.Error()
	}
	line := e.Loc.Line
	if line > len(lines) {
		line = len(lines)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", e.Error())
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lines[line-1])
	if line < len(lines) {
		fmt.Fprintf(&b, "%4d | %s\n", line+1, lines[line])
	}
	return b.String()
}
