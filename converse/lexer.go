package converse

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/arloliu/go-converse/internal/queue"
)

const eof rune = -1

// token is a lexeme of a message definition line.
type token struct {
	typ tokenType
	val string
	pos int
}

type tokenType int

const (
	tokenEOF         tokenType = iota
	tokenError                 // lexing error, val holds the message
	tokenMessageType           // R, F, E or S
	tokenHex                   // hex digit pairs without the optional 0x prefix
	tokenText                  // quoted text without the quotes
	tokenExclude               // '~'
	tokenVarName               // '$' NAME, val holds NAME
	tokenLeftParen             // '('
	tokenRightParen            // ')'
	tokenVarType               // BYTE, DYNAMICBYTE, STRING, CHECKSUM8, CHECKSUM16
	tokenSize                  // '[' digits ']', val holds the digits
	tokenComma                 // ','
	tokenTarget                // resize target name
)

func (t tokenType) String() string {
	switch t {
	case tokenEOF:
		return "end of line"
	case tokenError:
		return "error"
	case tokenMessageType:
		return "message type"
	case tokenHex:
		return "hex literal"
	case tokenText:
		return "quoted text"
	case tokenExclude:
		return "'~'"
	case tokenVarName:
		return "variable"
	case tokenLeftParen:
		return "'('"
	case tokenRightParen:
		return "')'"
	case tokenVarType:
		return "variable type"
	case tokenSize:
		return "size"
	case tokenComma:
		return "','"
	case tokenTarget:
		return "resize target"
	}

	return fmt.Sprintf("token(%d)", int(t))
}

// lexer scans one message line into tokens.
type lexer struct {
	input  string
	state  stateFn
	pos    int
	start  int
	width  int
	tokens queue.Queue[token]
}

// stateFn is a lexer state returning the next state.
type stateFn func(*lexer) stateFn

func newLexer(input string) *lexer {
	return &lexer{
		input:  input,
		state:  lexMessageType,
		tokens: queue.NewSliceQueue[token](8),
	}
}

func (l *lexer) next() rune {
	if l.pos >= len(l.input) {
		l.width = 0
		return eof
	}

	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.width = w
	l.pos += w

	return r
}

func (l *lexer) back() {
	l.pos -= l.width
}

func (l *lexer) peek() rune {
	r := l.next()
	l.back()

	return r
}

func (l *lexer) ignore() {
	l.start = l.pos
}

func (l *lexer) emit(t tokenType) {
	l.emitValue(t, l.input[l.start:l.pos])
}

func (l *lexer) emitValue(t tokenType, val string) {
	l.tokens.Enqueue(token{typ: t, val: val, pos: l.start})
	l.start = l.pos
}

func (l *lexer) accept(valid string) bool {
	if strings.ContainsRune(valid, l.next()) {
		return true
	}
	l.back()

	return false
}

func (l *lexer) acceptRun(valid string) int {
	n := 0
	for strings.ContainsRune(valid, l.next()) {
		n++
	}
	l.back()

	return n
}

func (l *lexer) acceptFunc(fn func(rune) bool) int {
	n := 0
	for {
		r := l.next()
		if r == eof || !fn(r) {
			l.back()
			return n
		}
		n++
	}
}

func (l *lexer) skipSpace() {
	l.acceptRun(" \t\r\n")
	l.ignore()
}

// errorf emits an error token and stops the lexer.
func (l *lexer) errorf(format string, args ...any) stateFn {
	l.tokens.Enqueue(token{typ: tokenError, val: fmt.Sprintf(format, args...), pos: l.pos})
	return nil
}

// nextToken returns the next token, running states until one is available.
// After an error or the end of input it keeps returning tokenEOF.
func (l *lexer) nextToken() token {
	for l.tokens.IsEmpty() {
		if l.state == nil {
			return token{typ: tokenEOF, pos: l.pos}
		}
		l.state = l.state(l)
	}

	t, _ := l.tokens.Dequeue()

	return t
}

// peekToken returns the next token without consuming it.
func (l *lexer) peekToken() token {
	for l.tokens.IsEmpty() {
		if l.state == nil {
			return token{typ: tokenEOF, pos: l.pos}
		}
		l.state = l.state(l)
	}

	t, _ := l.tokens.Peek()

	return t
}

const hexDigits = "0123456789abcdefABCDEF"

func isNameRune(r rune) bool {
	return r == '_' || r == '%' || r == '-' || r == '.' ||
		('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}

// lexMessageType scans the leading message type letter.
func lexMessageType(l *lexer) stateFn {
	l.skipSpace()

	r := l.next()
	if r == eof {
		return l.errorf("empty message")
	}
	if !strings.ContainsRune("RFESrfes", r) {
		return l.errorf("unknown message type %q", r)
	}
	if p := l.peek(); p != eof && !isSpace(p) {
		return l.errorf("message type must be followed by a space")
	}
	l.emitValue(tokenMessageType, strings.ToUpper(string(r)))

	return lexElements
}

// lexElements scans the space separated element tokens.
func lexElements(l *lexer) stateFn {
	l.skipSpace()

	switch r := l.peek(); {
	case r == eof:
		l.emitValue(tokenEOF, "")
		return nil
	case r == '~':
		l.next()
		l.emit(tokenExclude)
		return lexExcluded
	case r == '\'':
		return lexQuotedText
	case r == '$':
		return lexVariable
	case strings.ContainsRune(hexDigits, r):
		return lexHex
	default:
		return l.errorf("unexpected character %q", r)
	}
}

// lexExcluded scans the literal following '~'.
func lexExcluded(l *lexer) stateFn {
	switch r := l.peek(); {
	case r == '\'':
		return lexQuotedText
	case strings.ContainsRune(hexDigits, r):
		return lexHex
	default:
		return l.errorf("'~' must be followed by a hex or text literal")
	}
}

// lexQuotedText scans 'text'. The opening quote is known to be present.
func lexQuotedText(l *lexer) stateFn {
	l.next()
	l.ignore()

	i := strings.IndexByte(l.input[l.pos:], '\'')
	if i < 0 {
		return l.errorf("unterminated quoted text")
	}
	l.pos += i
	l.emit(tokenText)
	l.pos++
	l.ignore()

	if p := l.peek(); p != eof && !isSpace(p) {
		return l.errorf("quoted text must be followed by a space")
	}

	return lexElements
}

// lexHex scans hex digit pairs with an optional 0x prefix.
func lexHex(l *lexer) stateFn {
	if strings.HasPrefix(l.input[l.pos:], "0x") || strings.HasPrefix(l.input[l.pos:], "0X") {
		l.pos += 2
		l.ignore()
	}

	n := l.acceptRun(hexDigits)
	if p := l.peek(); p != eof && !isSpace(p) {
		return l.errorf("invalid hex literal %q", l.input[l.start:l.pos+l.width])
	}
	if n == 0 || n%2 != 0 {
		return l.errorf("hex literal %q must have an even number of digits", l.input[l.start:l.pos])
	}
	l.emit(tokenHex)

	return lexElements
}

// lexVariable scans $NAME and an optional (TYPE[SIZE],TARGET) declaration.
func lexVariable(l *lexer) stateFn {
	l.next()
	l.ignore()

	if l.acceptFunc(isNameRune) == 0 {
		return l.errorf("missing variable name after '$'")
	}
	l.emit(tokenVarName)

	switch p := l.peek(); {
	case p == '(':
		return lexVarSpec
	case p == eof || isSpace(p):
		return lexElements
	default:
		return l.errorf("unexpected character %q after variable name", p)
	}
}

// lexVarSpec scans (TYPE[SIZE],TARGET). The '(' is known to be present.
func lexVarSpec(l *lexer) stateFn {
	l.next()
	l.emit(tokenLeftParen)
	l.skipSpace()

	if l.acceptFunc(isNameRune) == 0 {
		return l.errorf("missing variable type")
	}
	l.emitValue(tokenVarType, strings.ToUpper(l.input[l.start:l.pos]))
	l.skipSpace()

	if l.accept("[") {
		l.ignore()
		if l.acceptRun("0123456789") == 0 {
			return l.errorf("invalid variable size")
		}
		l.emit(tokenSize)
		if !l.accept("]") {
			return l.errorf("missing ']' after variable size")
		}
		l.ignore()
		l.skipSpace()
	}

	if l.accept(",") {
		l.emit(tokenComma)
		l.skipSpace()
		if l.acceptFunc(isNameRune) == 0 {
			return l.errorf("missing resize target name")
		}
		l.emit(tokenTarget)
		l.skipSpace()
	}

	if !l.accept(")") {
		if l.peek() == eof {
			return l.errorf("missing ')' in variable declaration")
		}
		return l.errorf("unexpected character %q in variable declaration", l.peek())
	}
	l.emit(tokenRightParen)

	if p := l.peek(); p != eof && !isSpace(p) {
		return l.errorf("variable declaration must be followed by a space")
	}

	return lexElements
}
