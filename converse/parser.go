package converse

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// parser turns message lines into Messages for one conversation.
//
// Variables declared while parsing are kept pending until the whole conversation
// parses, so a failed conversation leaves the session untouched.
type parser struct {
	c       *Converse
	conv    *Conversation
	pending []Variable
}

type pendingTarget struct {
	source *ByteVar
	target string
	pos    int
}

func newParser(c *Converse, conv *Conversation) *parser {
	return &parser{c: c, conv: conv}
}

// ParseMessage parses a single message line for conv. Variables it declares are
// registered with the session immediately.
func ParseMessage(c *Converse, conv *Conversation, line string) (*Message, error) {
	p := newParser(c, conv)
	m, err := p.parseLine(line)
	if err != nil {
		return nil, err
	}
	if err := p.commit(); err != nil {
		return nil, err
	}

	return m, nil
}

func (p *parser) commit() error {
	for _, v := range p.pending {
		if err := p.c.DeclareVariable(v); err != nil {
			return err
		}
	}
	p.pending = nil

	return nil
}

func (p *parser) errorAt(pos int, err error, format string, args ...any) *ParseError {
	return &ParseError{
		Conversation: p.conv.Name(),
		Pos:          pos,
		Msg:          fmt.Sprintf(format, args...),
		Err:          err,
	}
}

// lookup resolves a variable visible from the conversation being parsed.
func (p *parser) lookup(name string) Variable {
	for _, v := range p.pending {
		if v.base().matches(name, p.conv.Name()) {
			return v
		}
	}

	v, err := p.c.SessionVariable(name, p.conv.Name())
	if err != nil {
		return nil
	}

	return v
}

func (p *parser) parseLine(line string) (*Message, error) {
	l := newLexer(line)

	t := l.nextToken()
	if t.typ == tokenError {
		return nil, p.errorAt(t.pos, ErrSyntax, "%s", t.val)
	}
	typ := messageTypeFromCode(t.val)

	var (
		elements []Element
		targets  []pendingTarget
	)

	for {
		t = l.nextToken()
		switch t.typ {
		case tokenEOF:
			if err := p.resolveTargets(targets); err != nil {
				return nil, err
			}
			if err := p.checkDynamic(typ, elements); err != nil {
				return nil, err
			}

			return NewMessage(p.c, p.conv, typ, line, elements...), nil

		case tokenError:
			return nil, p.errorAt(t.pos, ErrSyntax, "%s", t.val)

		case tokenExclude:
			lit := l.nextToken()
			el, err := p.literal(lit, true)
			if err != nil {
				return nil, err
			}
			elements = append(elements, el)

		case tokenHex, tokenText:
			el, err := p.literal(t, false)
			if err != nil {
				return nil, err
			}
			elements = append(elements, el)

		case tokenVarName:
			el, target, err := p.variable(l, t)
			if err != nil {
				return nil, err
			}
			if target != nil {
				targets = append(targets, *target)
			}
			elements = append(elements, el)

		default:
			return nil, p.errorAt(t.pos, ErrSyntax, "unexpected %s", t.typ)
		}
	}
}

func (p *parser) literal(t token, exclude bool) (*Literal, error) {
	switch t.typ {
	case tokenHex:
		raw, err := hex.DecodeString(t.val)
		if err != nil {
			return nil, p.errorAt(t.pos, ErrSyntax, "invalid hex literal %q", t.val)
		}
		return NewLiteral(raw, exclude), nil
	case tokenText:
		return NewLiteral([]byte(t.val), exclude), nil
	case tokenError:
		return nil, p.errorAt(t.pos, ErrSyntax, "%s", t.val)
	}

	return nil, p.errorAt(t.pos, ErrSyntax, "expected literal, got %s", t.typ)
}

// variable parses a $NAME reference with its optional declaration.
func (p *parser) variable(l *lexer, nameTok token) (*UseVariable, *pendingTarget, error) {
	name := nameTok.val

	if l.peekToken().typ != tokenLeftParen {
		v := p.lookup(name)
		if v == nil {
			return nil, nil, p.errorAt(nameTok.pos, ErrVariableNotFound, "variable %q is not declared", name)
		}

		return NewUseVariable(v, ChecksumNone), nil, nil
	}
	l.nextToken() // '('

	typTok := l.nextToken()
	if typTok.typ != tokenVarType {
		return nil, nil, p.syntaxFrom(typTok, "expected variable type")
	}

	size := 0
	sizeSet := false
	t := l.nextToken()
	if t.typ == tokenSize {
		n, err := strconv.Atoi(t.val)
		if err != nil {
			return nil, nil, p.errorAt(t.pos, ErrSyntax, "invalid size %q", t.val)
		}
		size, sizeSet = n, true
		t = l.nextToken()
	}

	targetName := ""
	targetPos := 0
	if t.typ == tokenComma {
		t = l.nextToken()
		if t.typ != tokenTarget {
			return nil, nil, p.syntaxFrom(t, "expected resize target")
		}
		targetName, targetPos = t.val, t.pos
		t = l.nextToken()
	}

	if t.typ != tokenRightParen {
		return nil, nil, p.syntaxFrom(t, "expected ')'")
	}

	v, kind, err := p.declare(name, typTok, size, sizeSet)
	if err != nil {
		return nil, nil, err
	}

	var target *pendingTarget
	if targetName != "" {
		bv, ok := v.(*ByteVar)
		if !ok || kind != ChecksumNone {
			return nil, nil, p.errorAt(targetPos, ErrSyntax, "only BYTE variables can resize %q", targetName)
		}
		target = &pendingTarget{source: bv, target: targetName, pos: targetPos}
	}

	return NewUseVariable(v, kind), target, nil
}

func (p *parser) syntaxFrom(t token, msg string) *ParseError {
	if t.typ == tokenError {
		return p.errorAt(t.pos, ErrSyntax, "%s", t.val)
	}

	return p.errorAt(t.pos, ErrSyntax, "%s, got %s", msg, t.typ)
}

// declare returns the variable for a typed reference, creating it on first use.
func (p *parser) declare(name string, typTok token, size int, sizeSet bool) (Variable, ChecksumKind, error) {
	var opts []VarOption
	if p.c.isConversationScoped(name) {
		opts = append(opts, InConversation(p.conv.Name()))
	}

	existing := p.lookup(name)

	var (
		v    Variable
		kind ChecksumKind
	)

	switch typTok.val {
	case "BYTE":
		if existing != nil {
			if _, ok := existing.(*ByteVar); !ok {
				return nil, 0, p.incompatible(typTok, existing)
			}
			return existing, ChecksumNone, nil
		}
		v = NewByteVar(name, size, opts...)

	case "CHECKSUM8", "CHECKSUM16":
		kind = Checksum8
		if typTok.val == "CHECKSUM16" {
			kind = Checksum16
		}
		if sizeSet && size != kind.Width() {
			return nil, 0, p.errorAt(typTok.pos, ErrSyntax, "%s is %d bytes wide, got size %d", typTok.val, kind.Width(), size)
		}
		if existing != nil {
			bv, ok := existing.(*ByteVar)
			if !ok || bv.Len() != kind.Width() {
				return nil, 0, p.incompatible(typTok, existing)
			}
			return existing, kind, nil
		}
		v = NewByteVar(name, kind.Width(), opts...)

	case "DYNAMICBYTE":
		if existing != nil {
			if _, ok := existing.(*DynamicByteVar); !ok {
				return nil, 0, p.incompatible(typTok, existing)
			}
			return existing, ChecksumNone, nil
		}
		if size <= 0 {
			size = p.c.cfg.maxVariableSize
		}
		v = NewDynamicByteVar(name, size, opts...)

	case "STRING":
		if existing != nil {
			if _, ok := existing.(*StringVar); !ok {
				return nil, 0, p.incompatible(typTok, existing)
			}
			return existing, ChecksumNone, nil
		}
		v = NewStringVar(name, size, opts...)

	default:
		return nil, 0, p.errorAt(typTok.pos, ErrSyntax, "unknown variable type %q", typTok.val)
	}

	if bv, ok := v.(*ByteVar); ok {
		bv.SetEndian(p.c.cfg.endian16, p.c.cfg.endian32)
		bv.SetMaxSize(p.c.cfg.maxVariableSize)
	}
	p.pending = append(p.pending, v)

	return v, kind, nil
}

func (p *parser) incompatible(typTok token, existing Variable) *ParseError {
	return p.errorAt(typTok.pos, ErrSyntax, "variable %q redeclared as %s, already %s",
		existing.Name(), typTok.val, variableKind(existing))
}

func (p *parser) resolveTargets(targets []pendingTarget) error {
	for _, t := range targets {
		v := p.lookup(t.target)
		if v == nil {
			return p.errorAt(t.pos, ErrVariableNotFound, "resize target %q is not declared", t.target)
		}
		bv, ok := v.(*ByteVar)
		if !ok {
			return p.errorAt(t.pos, ErrSyntax, "resize target %q must be a BYTE variable", t.target)
		}
		t.source.AddResizeTarget(bv)
	}

	return nil
}

// checkDynamic requires every received dynamic payload to be followed by a
// literal delimiter.
func (p *parser) checkDynamic(typ MessageType, elements []Element) error {
	if typ == MessageSend {
		return nil
	}

	for i, el := range elements {
		u, ok := el.(*UseVariable)
		if !ok || !u.isDynamic() {
			continue
		}
		if i+1 >= len(elements) {
			return p.errorAt(0, ErrSyntax, "dynamic variable %q must be followed by a literal delimiter", u.variable.Name())
		}
		if _, ok := elements[i+1].(*Literal); !ok {
			return p.errorAt(0, ErrSyntax, "dynamic variable %q must be followed by a literal delimiter", u.variable.Name())
		}
	}

	return nil
}

func variableKind(v Variable) string {
	switch v.(type) {
	case *ByteVar:
		return "BYTE"
	case *DynamicByteVar:
		return "DYNAMICBYTE"
	case *StringVar:
		return "STRING"
	}

	return "unknown"
}

func messageTypeFromCode(code string) MessageType {
	switch strings.ToUpper(code) {
	case "R":
		return MessageRead
	case "F":
		return MessageFind
	case "E":
		return MessageExtract
	case "S":
		return MessageSend
	}

	return MessageUnknown
}

// IsParseError reports whether err came from a malformed definition.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
