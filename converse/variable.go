package converse

import (
	"fmt"
	"strings"

	"github.com/arloliu/go-converse/endian"
	"github.com/arloliu/go-converse/internal/util"
)

// Scope is the visibility of a variable within a session.
type Scope int

const (
	// ScopeGlobal variables are shared by every conversation of a session.
	ScopeGlobal Scope = iota
	// ScopeConversation variables belong to a single conversation; other
	// conversations may declare a distinct variable with the same name.
	ScopeConversation
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeConversation:
		return "conversation"
	}

	return fmt.Sprintf("Scope(%d)", int(s))
}

// Variable is a named, mutable value referenced by message elements.
// The concrete types are *ByteVar, *DynamicByteVar and *StringVar.
type Variable interface {
	// Name returns the variable name as declared.
	Name() string
	// Scope returns the variable's visibility.
	Scope() Scope
	// Conversation returns the owning conversation name for conversation scoped
	// variables, and "" for global ones.
	Conversation() string
	// Bytes returns a copy of the current value.
	Bytes() []byte
	// Len returns the number of bytes the variable occupies on the wire.
	Len() int
	// SetBytes replaces the value with b[start : start+length].
	SetBytes(b []byte, start, length int) error

	base() *varBase
}

// VarOption configures a variable at construction.
type VarOption func(*varBase)

// InConversation scopes a variable to the named conversation.
func InConversation(conversation string) VarOption {
	return func(v *varBase) {
		v.scope = ScopeConversation
		v.conversation = conversation
	}
}

type varBase struct {
	name         string
	scope        Scope
	conversation string
}

func newVarBase(name string, opts []VarOption) varBase {
	v := varBase{name: name}
	for _, opt := range opts {
		opt(&v)
	}

	return v
}

func (v *varBase) Name() string         { return v.name }
func (v *varBase) Scope() Scope         { return v.scope }
func (v *varBase) Conversation() string { return v.conversation }
func (v *varBase) base() *varBase       { return v }

// matches reports whether this variable answers a lookup of name from conversation.
func (v *varBase) matches(name, conversation string) bool {
	if !strings.EqualFold(v.name, name) {
		return false
	}
	if v.scope == ScopeConversation {
		return strings.EqualFold(v.conversation, conversation)
	}

	return true
}

func checkSource(b []byte, start, length int) error {
	if start < 0 || length < 0 || start+length > len(b) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortSource, length, start, len(b))
	}

	return nil
}

// ByteVar is a byte buffer variable, either fixed size or growable.
//
// A ByteVar can drive the size of other ByteVars: after every SetBytes its value
// is read as an unsigned length (1, 2 or 4 bytes wide) and each resize target is
// resized to it. This models length prefixed payloads. A length above the
// target's maximum size rejects the whole SetBytes.
type ByteVar struct {
	varBase
	fixedSize     int
	maxSize       int
	value         []byte
	resizeTargets []*ByteVar
	endian16      *endian.Converter
	endian32      *endian.Converter
}

// NewByteVar creates a byte variable. A size of 0 makes it growable.
func NewByteVar(name string, size int, opts ...VarOption) *ByteVar {
	if size < 0 {
		size = 0
	}

	return &ByteVar{
		varBase:   newVarBase(name, opts),
		fixedSize: size,
		maxSize:   max(size, DefaultDynamicMaxSize),
		value:     make([]byte, size),
		endian16:  endian.MustConverter(endian.Big16),
		endian32:  endian.MustConverter(endian.Big32),
	}
}

// FixedSize returns the declared size, 0 for a growable variable.
func (v *ByteVar) FixedSize() int { return v.fixedSize }

// MaxSize returns the largest length the variable can be resized to.
func (v *ByteVar) MaxSize() int { return v.maxSize }

// SetMaxSize bounds Resize. It never drops below the declared size.
func (v *ByteVar) SetMaxSize(n int) {
	v.maxSize = max(n, v.fixedSize, len(v.value))
}

func (v *ByteVar) Bytes() []byte { return util.CloneSlice(v.value, 0) }
func (v *ByteVar) Len() int      { return len(v.value) }

// SetBytes copies length bytes from b[start:]. A growable variable takes the new
// length; a fixed size one requires length to equal its size.
func (v *ByteVar) SetBytes(b []byte, start, length int) error {
	if err := checkSource(b, start, length); err != nil {
		return err
	}
	if v.fixedSize > 0 && length != v.fixedSize {
		return fmt.Errorf("%w: %s holds %d bytes, got %d", ErrSizeMismatch, v.name, v.fixedSize, length)
	}

	value := util.CloneSlice(b[start:start+length], 0)
	if err := v.checkTargets(value); err != nil {
		return err
	}
	v.value = value
	v.propagateSize()

	return nil
}

// Resize sets the variable length to n, keeping the leading bytes.
func (v *ByteVar) Resize(n int) error {
	if n < 0 {
		n = 0
	}
	if n > v.maxSize {
		return fmt.Errorf("%w: %s holds at most %d bytes, resize to %d", ErrPayloadTooLarge, v.name, v.maxSize, n)
	}
	if v.fixedSize > 0 {
		v.fixedSize = n
	}
	if n == 0 {
		v.value = []byte{}
		return nil
	}
	v.value = util.CloneSlice(v.value, n)

	return nil
}

// AddResizeTarget registers t to be resized from this variable's value.
func (v *ByteVar) AddResizeTarget(t *ByteVar) {
	v.resizeTargets = append(v.resizeTargets, t)
}

// ResizeTargets returns the registered resize targets.
func (v *ByteVar) ResizeTargets() []*ByteVar {
	return util.CloneSlice(v.resizeTargets, 0)
}

// SetEndian sets the converters used to read length prefixes.
func (v *ByteVar) SetEndian(e16, e32 *endian.Converter) {
	if e16 != nil {
		v.endian16 = e16
	}
	if e32 != nil {
		v.endian32 = e32
	}
}

// Uint returns the value as an unsigned integer for widths 1, 2 and 4.
func (v *ByteVar) Uint() (uint32, bool) {
	return v.uintOf(v.value)
}

func (v *ByteVar) uintOf(b []byte) (uint32, bool) {
	switch len(b) {
	case 1:
		return uint32(b[0]), true
	case 2:
		n, err := v.endian16.Uint16(b, 0)
		return uint32(n), err == nil
	case 4:
		n, err := v.endian32.Uint32(b, 0)
		return n, err == nil
	}

	return 0, false
}

// checkTargets rejects a length prefix that exceeds any resize target.
func (v *ByteVar) checkTargets(value []byte) error {
	if len(v.resizeTargets) == 0 {
		return nil
	}

	n, ok := v.uintOf(value)
	if !ok {
		return nil
	}
	for _, t := range v.resizeTargets {
		if uint64(n) > uint64(t.maxSize) {
			return fmt.Errorf("%w: %s length %d exceeds %s maximum of %d bytes",
				ErrPayloadTooLarge, v.name, n, t.name, t.maxSize)
		}
	}

	return nil
}

func (v *ByteVar) propagateSize() {
	if len(v.resizeTargets) == 0 {
		return
	}

	n, ok := v.Uint()
	if !ok {
		return
	}
	for _, t := range v.resizeTargets {
		_ = t.Resize(int(n)) // bounded by checkTargets
	}
}

// DynamicByteVar holds a payload whose length is only known once it has been
// received, bounded by a maximum size.
type DynamicByteVar struct {
	varBase
	maxSize int
	value   []byte
}

// DefaultDynamicMaxSize bounds a DYNAMICBYTE variable declared without a size.
const DefaultDynamicMaxSize = 4096

// NewDynamicByteVar creates a dynamic variable holding at most maxSize bytes.
func NewDynamicByteVar(name string, maxSize int, opts ...VarOption) *DynamicByteVar {
	if maxSize <= 0 {
		maxSize = DefaultDynamicMaxSize
	}

	return &DynamicByteVar{varBase: newVarBase(name, opts), maxSize: maxSize}
}

// MaxSize returns the size bound.
func (v *DynamicByteVar) MaxSize() int { return v.maxSize }

func (v *DynamicByteVar) Bytes() []byte { return util.CloneSlice(v.value, 0) }
func (v *DynamicByteVar) Len() int      { return len(v.value) }

// SetBytes replaces the payload with b[start : start+length].
func (v *DynamicByteVar) SetBytes(b []byte, start, length int) error {
	if err := checkSource(b, start, length); err != nil {
		return err
	}
	if length > v.maxSize {
		return fmt.Errorf("%w: %s holds at most %d bytes, got %d", ErrPayloadTooLarge, v.name, v.maxSize, length)
	}
	v.value = util.CloneSlice(b[start:start+length], 0)

	return nil
}

// StringVar holds text. With a size it occupies exactly that many bytes on the
// wire, space padded.
type StringVar struct {
	varBase
	size  int
	value string
}

// NewStringVar creates a string variable; size 0 means the text length.
func NewStringVar(name string, size int, opts ...VarOption) *StringVar {
	if size < 0 {
		size = 0
	}

	return &StringVar{varBase: newVarBase(name, opts), size: size}
}

// Value returns the text with any padding removed.
func (v *StringVar) Value() string { return v.value }

// SetValue replaces the text.
func (v *StringVar) SetValue(s string) error {
	if v.size > 0 && len(s) > v.size {
		return fmt.Errorf("%w: %s holds at most %d bytes, got %d", ErrPayloadTooLarge, v.name, v.size, len(s))
	}
	v.value = s

	return nil
}

func (v *StringVar) Bytes() []byte {
	if v.size == 0 {
		return []byte(v.value)
	}

	out := make([]byte, v.size)
	n := copy(out, v.value)
	for i := n; i < v.size; i++ {
		out[i] = ' '
	}

	return out
}

func (v *StringVar) Len() int {
	if v.size > 0 {
		return v.size
	}

	return len(v.value)
}

// SetBytes stores the text in b[start : start+length], trimming padding.
func (v *StringVar) SetBytes(b []byte, start, length int) error {
	if err := checkSource(b, start, length); err != nil {
		return err
	}

	return v.SetValue(strings.TrimRight(string(b[start:start+length]), " \x00"))
}

var (
	_ Variable = (*ByteVar)(nil)
	_ Variable = (*DynamicByteVar)(nil)
	_ Variable = (*StringVar)(nil)
)
