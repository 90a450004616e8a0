package converse

import "github.com/arloliu/go-converse/internal/util"

// ChecksumKind selects whether a variable slot carries a computed checksum.
type ChecksumKind int

const (
	ChecksumNone ChecksumKind = iota
	Checksum8
	Checksum16
)

// Width returns the wire size of the checksum, 0 for ChecksumNone.
func (k ChecksumKind) Width() int {
	switch k {
	case Checksum8:
		return 1
	case Checksum16:
		return 2
	}

	return 0
}

// Element is one part of a message. The concrete types are *Literal and *UseVariable.
type Element interface {
	// Bytes returns the element's current wire bytes.
	Bytes() []byte
	// ExcludeFromChecksum reports whether the element is left out of checksums.
	ExcludeFromChecksum() bool

	isElement()
}

// Literal is fixed message content.
type Literal struct {
	raw     []byte
	exclude bool
}

// NewLiteral creates a literal element.
func NewLiteral(raw []byte, excludeFromChecksum bool) *Literal {
	return &Literal{raw: util.CloneSlice(raw, 0), exclude: excludeFromChecksum}
}

func (l *Literal) Bytes() []byte             { return util.CloneSlice(l.raw, 0) }
func (l *Literal) ExcludeFromChecksum() bool { return l.exclude }
func (*Literal) isElement()                  {}

// UseVariable is a message slot bound to a variable, optionally carrying a checksum.
type UseVariable struct {
	variable Variable
	checksum ChecksumKind
}

// NewUseVariable creates a variable slot.
func NewUseVariable(v Variable, kind ChecksumKind) *UseVariable {
	return &UseVariable{variable: v, checksum: kind}
}

func (u *UseVariable) Variable() Variable     { return u.variable }
func (u *UseVariable) Checksum() ChecksumKind { return u.checksum }
func (u *UseVariable) Bytes() []byte          { return u.variable.Bytes() }

// ExcludeFromChecksum is true for checksum slots; a checksum never covers itself.
func (u *UseVariable) ExcludeFromChecksum() bool { return u.checksum != ChecksumNone }

func (*UseVariable) isElement() {}

func (u *UseVariable) isDynamic() bool {
	_, ok := u.variable.(*DynamicByteVar)
	return ok
}

// wireLen is the number of bytes the slot occupies in a received message.
func (u *UseVariable) wireLen() int {
	if w := u.checksum.Width(); w > 0 {
		return w
	}

	return u.variable.Len()
}

var (
	_ Element = (*Literal)(nil)
	_ Element = (*UseVariable)(nil)
)
