package converse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddConversation_Elements(t *testing.T) {
	c, _ := newTestConverse(t)

	conv, err := c.AddConversation("Read",
		"S 0x01 03 ~'AB' $ADDR(BYTE[2]) $CS(CHECKSUM8)",
		"r $LEN(BYTE[1],DATA) $DATA(BYTE) $CS",
		"F '<msg>'",
		"E $%PAYLOAD(DYNAMICBYTE[64]) '</msg>'",
	)
	require.NoError(t, err)
	require.Len(t, conv.Messages(), 4)

	send := conv.Messages()[0]
	assert.Equal(t, MessageSend, send.Type())
	els := send.Elements()
	require.Len(t, els, 5)

	lit, ok := els[0].(*Literal)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01}, lit.Bytes())
	assert.False(t, lit.ExcludeFromChecksum())

	lit, ok = els[2].(*Literal)
	require.True(t, ok)
	assert.Equal(t, []byte("AB"), lit.Bytes())
	assert.True(t, lit.ExcludeFromChecksum())

	addr, ok := els[3].(*UseVariable)
	require.True(t, ok)
	assert.Equal(t, "ADDR", addr.Variable().Name())
	assert.Equal(t, ChecksumNone, addr.Checksum())

	cs, ok := els[4].(*UseVariable)
	require.True(t, ok)
	assert.Equal(t, Checksum8, cs.Checksum())
	assert.True(t, cs.ExcludeFromChecksum())

	read := conv.Messages()[1]
	assert.Equal(t, MessageRead, read.Type())
	lenVar, ok := read.Elements()[0].(*UseVariable).Variable().(*ByteVar)
	require.True(t, ok)
	require.Len(t, lenVar.ResizeTargets(), 1)
	assert.Equal(t, "DATA", lenVar.ResizeTargets()[0].Name())

	// bare reference reuses the declared checksum variable
	assert.Same(t, cs.Variable(), read.Elements()[2].(*UseVariable).Variable())

	assert.Equal(t, MessageFind, conv.Messages()[2].Type())
	assert.Equal(t, MessageExtractDynamic, conv.Messages()[3].Type())

	payload, err := c.SessionVariable("%payload", "read")
	require.NoError(t, err)
	assert.Equal(t, ScopeConversation, payload.Scope())
	assert.Equal(t, "Read", payload.Conversation())

	_, err = c.SessionVariable("%PAYLOAD", "")
	require.ErrorIs(t, err, ErrVariableNotFound)

	addrVar, err := c.SessionVariable("addr", "")
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, addrVar.Scope())
}

func TestAddConversation_ExtractWithLeadingLiteral(t *testing.T) {
	c, _ := newTestConverse(t)

	conv, err := c.AddConversation("Frame", "E '<msg>' $BODY(DYNAMICBYTE) '</msg>'")
	require.NoError(t, err)
	assert.Equal(t, MessageExtractDynamic, conv.Messages()[0].Type())

	conv, err = c.AddConversation("Plain", "E 01 $V(BYTE[1])")
	require.NoError(t, err)
	assert.Equal(t, MessageExtract, conv.Messages()[0].Type())
}

func TestAddConversation_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"empty", "", ErrSyntax},
		{"unknown type", "X 01", ErrSyntax},
		{"type glued", "S01", ErrSyntax},
		{"odd hex", "S 012", ErrSyntax},
		{"bad hex", "S 0G", ErrSyntax},
		{"unterminated text", "S 'abc", ErrSyntax},
		{"missing paren", "S $A(BYTE[1]", ErrSyntax},
		{"missing bracket", "S $A(BYTE[1)", ErrSyntax},
		{"bad size", "S $A(BYTE[x])", ErrSyntax},
		{"unknown var type", "S $A(WORD[2])", ErrSyntax},
		{"nested paren", "S $A((BYTE))", ErrSyntax},
		{"dangling tilde", "S ~ 01", ErrSyntax},
		{"tilde variable", "S ~$A(BYTE)", ErrSyntax},
		{"undeclared", "S $NOPE", ErrVariableNotFound},
		{"undeclared target", "R $L(BYTE[1],NOPE)", ErrVariableNotFound},
		{"target not byte", "R $L(BYTE[1],S) $S(STRING[2])", ErrSyntax},
		{"checksum size", "S 01 $C(CHECKSUM16[1])", ErrSyntax},
		{"dynamic no delimiter", "E $P(DYNAMICBYTE[8])", ErrSyntax},
		{"dynamic before variable", "E $P(DYNAMICBYTE[8]) $Q(BYTE[1])", ErrSyntax},
		{"redeclare", "S $A(BYTE[1]) $A(STRING[1])", ErrSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestConverse(t)

			_, err := c.AddConversation("Conv", "S 00", tt.line)
			require.Error(t, err)
			require.ErrorIs(t, err, tt.want)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, 2, pe.Line)
			assert.Equal(t, "Conv", pe.Conversation)
			assert.True(t, IsParseError(err))

			_, err = c.Conversation("Conv")
			require.ErrorIs(t, err, ErrConversationNotFound)
			assert.Empty(t, c.Variables())
		})
	}
}

func TestAddConversation_Duplicate(t *testing.T) {
	c, _ := newTestConverse(t)

	_, err := c.AddConversation("Init", "S 01")
	require.NoError(t, err)
	_, err = c.AddConversation("INIT", "S 02")
	require.ErrorIs(t, err, ErrDuplicateConversation)
}

func TestParseMessage_SharedGlobals(t *testing.T) {
	c, _ := newTestConverse(t)

	a, err := c.AddConversation("A", "S $ADDR(BYTE[1])")
	require.NoError(t, err)
	b, err := c.AddConversation("B", "S 05 $ADDR")
	require.NoError(t, err)

	va := a.Messages()[0].Elements()[0].(*UseVariable).Variable()
	vb := b.Messages()[0].Elements()[1].(*UseVariable).Variable()
	assert.Same(t, va, vb)

	m, err := ParseMessage(c, b, "S $NEW(STRING[3])")
	require.NoError(t, err)
	assert.Equal(t, MessageSend, m.Type())
	_, err = c.SessionVariable("new", "")
	require.NoError(t, err)
}

func TestConversationScopePrefixes(t *testing.T) {
	c, _ := newTestConverse(t, WithConversationScopePrefixes("%", "LOCAL_"))

	_, err := c.AddConversation("A", "S $LOCAL_X(BYTE[1]) $%Y(BYTE[1]) $G(BYTE[1])")
	require.NoError(t, err)

	for _, v := range c.Variables() {
		switch v.Name() {
		case "G":
			assert.Equal(t, ScopeGlobal, v.Scope())
		default:
			assert.Equal(t, ScopeConversation, v.Scope(), v.Name())
		}
	}
}
