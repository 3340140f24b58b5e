// lexer.go: byte-level tokenizer with an include file stack.
//
// The lexer consumes grammar source and produces a flat token slice. It never
// returns an error: the first failure appends a single TokError token whose
// Lexeme is the message, and scanning stops there. `#include "path"`
// directives push the named file onto a stack capped at maxIncludeDepth;
// reaching end of an included file pops back to the including one, so the
// token stream reads as if the include had been pasted in place. File names
// are interned once and shared by every Locator pointing into that file.
package shapeml

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/readahead"
)

// TokKind is the kind of a lexed token.
type TokKind int

const (
	TokEOF TokKind = iota
	TokError

	TokID
	TokInt
	TokFloat
	TokString

	// Keywords
	TokParam
	TokConst
	TokFunc
	TokRule
	TokTrue
	TokFalse

	// Punctuation
	TokLParen     // "("
	TokRParen     // ")"
	TokLBrace     // "{"
	TokRBrace     // "}"
	TokLBracket   // "["
	TokRBracket   // "]"
	TokComma      // ","
	TokSemicolon  // ";"
	TokColon      // ":"
	TokColonColon // "::"
	TokAssign     // "="
	TokCaret      // "^"

	// Operators
	TokPlus      // "+"
	TokMinus     // "-"
	TokStar      // "*"
	TokSlash     // "/"
	TokPercent   // "%"
	TokBang      // "!"
	TokLess      // "<"
	TokLessEq    // "<="
	TokGreater   // ">"
	TokGreaterEq // ">="
	TokEqEq      // "=="
	TokBangEq    // "!="
	TokAndAnd    // "&&"
	TokOrOr      // "||"
)

var tokKindNames = map[TokKind]string{
	TokEOF:        "end of file",
	TokError:      "error",
	TokID:         "identifier",
	TokInt:        "int constant",
	TokFloat:      "float constant",
	TokString:     "string constant",
	TokParam:      "'param'",
	TokConst:      "'const'",
	TokFunc:       "'func'",
	TokRule:       "'rule'",
	TokTrue:       "'true'",
	TokFalse:      "'false'",
	TokLParen:     "'('",
	TokRParen:     "')'",
	TokLBrace:     "'{'",
	TokRBrace:     "'}'",
	TokLBracket:   "'['",
	TokRBracket:   "']'",
	TokComma:      "','",
	TokSemicolon:  "';'",
	TokColon:      "':'",
	TokColonColon: "'::'",
	TokAssign:     "'='",
	TokCaret:      "'^'",
	TokPlus:       "'+'",
	TokMinus:      "'-'",
	TokStar:       "'*'",
	TokSlash:      "'/'",
	TokPercent:    "'%'",
	TokBang:       "'!'",
	TokLess:       "'<'",
	TokLessEq:     "'<='",
	TokGreater:    "'>'",
	TokGreaterEq:  "'>='",
	TokEqEq:       "'=='",
	TokBangEq:     "'!='",
	TokAndAnd:     "'&&'",
	TokOrOr:       "'||'",
}

func (k TokKind) String() string {
	if s, ok := tokKindNames[k]; ok {
		return s
	}
	return "unknown token"
}

var keywords = map[string]TokKind{
	"param": TokParam,
	"const": TokConst,
	"func":  TokFunc,
	"rule":  TokRule,
	"true":  TokTrue,
	"false": TokFalse,
}

// Token is one lexed token. Val is filled for int/float/string/bool
// constants. For TokError, Lexeme holds the failure message.
type Token struct {
	Kind   TokKind
	Lexeme string
	Val    Value
	Loc    Locator
}

// maxIncludeDepth bounds the include file stack, the root file included.
const maxIncludeDepth = 20

// lexFile is one entry of the include stack.
type lexFile struct {
	name *string
	dir  string
	src  string
	cur  int
	line int
}

// Lexer tokenizes a root source plus everything it includes.
type Lexer struct {
	files       []*lexFile
	interned    map[string]*string
	sources     map[string]string
	tokens      []Token
	failed      bool
	err         *Error
	interactive bool
}

// NewLexer lexes src under the given display name. Includes resolve
// relative to the process working directory.
func NewLexer(name, src string) *Lexer {
	lx := &Lexer{
		interned: make(map[string]*string),
		sources:  make(map[string]string),
	}
	lx.push(name, ".", src)
	return lx
}

// NewLexerInteractive is NewLexer for REPL input. Constructs cut off by the
// end of the source fail with the incomplete flag set, so the caller can
// read continuation lines instead of reporting the error.
func NewLexerInteractive(src string) *Lexer {
	lx := NewLexer("<input>", src)
	lx.interactive = true
	return lx
}

// NewLexerFile opens and lexes the grammar file at path. Failure to open
// the root file is an ordinary error; everything after that surfaces as a
// TokError token.
func NewLexerFile(path string) (*Lexer, error) {
	src, err := readSourceFile(path)
	if err != nil {
		return nil, err
	}
	lx := &Lexer{
		interned: make(map[string]*string),
		sources:  make(map[string]string),
	}
	lx.push(path, filepath.Dir(path), src)
	return lx, nil
}

// Sources returns file name to source text for every file the lexer read,
// for diagnostic snippet rendering.
func (lx *Lexer) Sources() map[string]string {
	return lx.sources
}

// Err returns the failure that stopped the scan, nil when none. It carries
// the same message as the TokError token plus the incomplete flag.
func (lx *Lexer) Err() *Error {
	return lx.err
}

// Scan tokenizes everything. The returned slice ends in either TokEOF or a
// single TokError.
func (lx *Lexer) Scan() []Token {
	for !lx.failed {
		f := lx.top()
		if f == nil {
			break
		}
		if f.cur >= len(f.src) {
			lx.files = lx.files[:len(lx.files)-1]
			continue
		}
		lx.scanToken(f)
	}
	if !lx.failed {
		loc := Locator{Line: 1}
		if n := len(lx.tokens); n > 0 {
			loc = lx.tokens[n-1].Loc
		}
		lx.tokens = append(lx.tokens, Token{Kind: TokEOF, Loc: loc})
	}
	return lx.tokens
}

/* ===========================
   scanning
   =========================== */

func (lx *Lexer) top() *lexFile {
	if len(lx.files) == 0 {
		return nil
	}
	return lx.files[len(lx.files)-1]
}

func (lx *Lexer) push(name, dir, src string) {
	p, ok := lx.interned[name]
	if !ok {
		s := name
		p = &s
		lx.interned[name] = p
		lx.sources[name] = src
	}
	lx.files = append(lx.files, &lexFile{name: p, dir: dir, src: src, cur: 0, line: 1})
}

func (f *lexFile) loc() Locator {
	return Locator{File: f.name, Line: f.line}
}

func (f *lexFile) peek() byte {
	if f.cur >= len(f.src) {
		return 0
	}
	return f.src[f.cur]
}

func (f *lexFile) peekNext() byte {
	if f.cur+1 >= len(f.src) {
		return 0
	}
	return f.src[f.cur+1]
}

func (lx *Lexer) add(kind TokKind, lexeme string, val Value, loc Locator) {
	lx.tokens = append(lx.tokens, Token{Kind: kind, Lexeme: lexeme, Val: val, Loc: loc})
}

// fail appends the terminal TokError token and stops the scan.
func (lx *Lexer) fail(loc Locator, format string, args ...any) {
	e := errAt(StageLex, loc, format, args...)
	lx.tokens = append(lx.tokens, Token{Kind: TokError, Lexeme: e.Msg, Loc: loc})
	lx.failed = true
	lx.err = e
}

// failIncomplete is fail for constructs cut off by the end of the source.
// Interactive scans mark these recoverable.
func (lx *Lexer) failIncomplete(loc Locator, format string, args ...any) {
	lx.fail(loc, format, args...)
	lx.err.Incomplete = lx.interactive
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isAlphaNum(c byte) bool { return isAlpha(c) || isDigit(c) }

func (lx *Lexer) scanToken(f *lexFile) {
	c := f.src[f.cur]
	switch {
	case c == ' ' || c == '\t' || c == '\r':
		f.cur++
	case c == '\n':
		f.cur++
		f.line++
	case c == '/' && f.peekNext() == '/':
		for f.cur < len(f.src) && f.src[f.cur] != '\n' {
			f.cur++
		}
	case c == '/' && f.peekNext() == '*':
		lx.scanBlockComment(f)
	case c == '#':
		lx.scanDirective(f)
	case c == '"':
		loc := f.loc()
		s, ok := lx.scanStringBody(f)
		if ok {
			lx.add(TokString, s, StringVal(s), loc)
		}
	case isDigit(c):
		lx.scanNumber(f)
	case isAlpha(c):
		lx.scanIdentifier(f)
	default:
		lx.scanOperator(f)
	}
}

func (lx *Lexer) scanBlockComment(f *lexFile) {
	loc := f.loc()
	f.cur += 2
	for f.cur < len(f.src) {
		if f.src[f.cur] == '*' && f.peekNext() == '/' {
			f.cur += 2
			return
		}
		if f.src[f.cur] == '\n' {
			f.line++
		}
		f.cur++
	}
	lx.failIncomplete(loc, "unterminated block comment")
}

func (lx *Lexer) scanOperator(f *lexFile) {
	loc := f.loc()
	c := f.src[f.cur]
	two := func(kind TokKind, lexeme string) {
		f.cur += 2
		lx.add(kind, lexeme, Value{}, loc)
	}
	one := func(kind TokKind) {
		lx.add(kind, string(c), Value{}, loc)
		f.cur++
	}
	switch c {
	case '(':
		one(TokLParen)
	case ')':
		one(TokRParen)
	case '{':
		one(TokLBrace)
	case '}':
		one(TokRBrace)
	case '[':
		one(TokLBracket)
	case ']':
		one(TokRBracket)
	case ',':
		one(TokComma)
	case ';':
		one(TokSemicolon)
	case '^':
		one(TokCaret)
	case '+':
		one(TokPlus)
	case '-':
		one(TokMinus)
	case '*':
		one(TokStar)
	case '/':
		one(TokSlash)
	case '%':
		one(TokPercent)
	case ':':
		if f.peekNext() == ':' {
			two(TokColonColon, "::")
		} else {
			one(TokColon)
		}
	case '=':
		if f.peekNext() == '=' {
			two(TokEqEq, "==")
		} else {
			one(TokAssign)
		}
	case '!':
		if f.peekNext() == '=' {
			two(TokBangEq, "!=")
		} else {
			one(TokBang)
		}
	case '<':
		if f.peekNext() == '=' {
			two(TokLessEq, "<=")
		} else {
			one(TokLess)
		}
	case '>':
		if f.peekNext() == '=' {
			two(TokGreaterEq, ">=")
		} else {
			one(TokGreater)
		}
	case '&':
		if f.peekNext() == '&' {
			two(TokAndAnd, "&&")
		} else {
			lx.fail(loc, "unexpected character '&', did you mean '&&'?")
		}
	case '|':
		if f.peekNext() == '|' {
			two(TokOrOr, "||")
		} else {
			lx.fail(loc, "unexpected character '|', did you mean '||'?")
		}
	default:
		lx.fail(loc, "unexpected character '%c'", c)
	}
}

// scanNumber scans an int or float constant. Int accumulation checks the
// 32-bit bound digit by digit; floats require at least one digit after the
// dot and have no exponent form.
func (lx *Lexer) scanNumber(f *lexFile) {
	loc := f.loc()
	start := f.cur
	var n int64
	for f.cur < len(f.src) && isDigit(f.src[f.cur]) {
		n = n*10 + int64(f.src[f.cur]-'0')
		if n > math.MaxInt32 {
			lx.fail(loc, "int constant out of range: '%s'", scanDigitsAhead(f, start))
			return
		}
		f.cur++
	}
	if f.peek() != '.' || !isDigit(f.peekNext()) {
		if f.peek() == '.' {
			lx.fail(loc, "float constant misses digits after '.'")
			return
		}
		lx.add(TokInt, f.src[start:f.cur], IntVal(n), loc)
		return
	}
	f.cur++ // '.'
	for f.cur < len(f.src) && isDigit(f.src[f.cur]) {
		f.cur++
	}
	lexeme := f.src[start:f.cur]
	v, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		lx.fail(loc, "invalid float constant: '%s'", lexeme)
		return
	}
	lx.add(TokFloat, lexeme, FloatVal(v), loc)
}

// scanDigitsAhead returns the full digit run for an overflow message even
// though scanning stopped mid-run.
func scanDigitsAhead(f *lexFile, start int) string {
	end := f.cur
	for end < len(f.src) && isDigit(f.src[end]) {
		end++
	}
	return f.src[start:end]
}

// scanStringBody consumes a double-quoted string and returns its decoded
// value. The escape set is exactly \" \\ \n \t; any other escape, any raw
// control byte, and end of file are failures.
func (lx *Lexer) scanStringBody(f *lexFile) (string, bool) {
	loc := f.loc()
	f.cur++ // opening quote
	var b []byte
	for f.cur < len(f.src) {
		c := f.src[f.cur]
		switch {
		case c == '"':
			f.cur++
			return string(b), true
		case c == '\\':
			if f.cur+1 >= len(f.src) {
				lx.failIncomplete(loc, "unterminated string constant")
				return "", false
			}
			esc := f.src[f.cur+1]
			switch esc {
			case '"':
				b = append(b, '"')
			case '\\':
				b = append(b, '\\')
			case 'n':
				b = append(b, '\n')
			case 't':
				b = append(b, '\t')
			default:
				lx.fail(loc, "illegal escape sequence '\\%c' in string constant", esc)
				return "", false
			}
			f.cur += 2
		case c < 0x20:
			lx.fail(loc, "illegal character in string constant")
			return "", false
		default:
			b = append(b, c)
			f.cur++
		}
	}
	lx.failIncomplete(loc, "unterminated string constant")
	return "", false
}

func (lx *Lexer) scanIdentifier(f *lexFile) {
	loc := f.loc()
	start := f.cur
	for f.cur < len(f.src) && isAlphaNum(f.src[f.cur]) {
		f.cur++
	}
	name := f.src[start:f.cur]
	if kind, ok := keywords[name]; ok {
		switch kind {
		case TokTrue:
			lx.add(kind, name, BoolVal(true), loc)
		case TokFalse:
			lx.add(kind, name, BoolVal(false), loc)
		default:
			lx.add(kind, name, Value{}, loc)
		}
		return
	}
	lx.add(TokID, name, Value{}, loc)
}

// scanDirective handles '#'. The only directive is include, it must start
// at the very beginning of a line, and nothing but the quoted path may
// follow it on that line.
func (lx *Lexer) scanDirective(f *lexFile) {
	loc := f.loc()
	if f.cur > 0 && f.src[f.cur-1] != '\n' {
		lx.fail(loc, "'#' is only allowed at the beginning of a line")
		return
	}
	f.cur++
	start := f.cur
	for f.cur < len(f.src) && isAlpha(f.src[f.cur]) {
		f.cur++
	}
	word := f.src[start:f.cur]
	if word != "include" {
		lx.fail(loc, "unknown directive '#%s'", word)
		return
	}
	for f.peek() == ' ' || f.peek() == '\t' {
		f.cur++
	}
	if f.peek() != '"' {
		lx.fail(loc, "expected file path string after '#include'")
		return
	}
	path, ok := lx.scanStringBody(f)
	if !ok {
		return
	}
	for f.peek() == ' ' || f.peek() == '\t' || f.peek() == '\r' {
		f.cur++
	}
	if f.cur < len(f.src) && f.src[f.cur] != '\n' {
		lx.fail(loc, "unexpected input after '#include' path")
		return
	}
	lx.pushInclude(f, loc, path)
}

func (lx *Lexer) pushInclude(from *lexFile, loc Locator, path string) {
	if len(lx.files) >= maxIncludeDepth {
		lx.fail(loc, "includes are nested too deeply (max %d)", maxIncludeDepth)
		return
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(from.dir, path)
	}
	src, err := readSourceFile(full)
	if err != nil {
		lx.fail(loc, "cannot read include file '%s': %v", path, err)
		return
	}
	lx.push(full, filepath.Dir(full), src)
}

// readSourceFile reads a grammar file through an async read-ahead wrapper.
func readSourceFile(path string) (string, error) {
	fd, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fd.Close()
	ra := readahead.NewReader(fd)
	defer ra.Close()
	data, err := io.ReadAll(ra)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
