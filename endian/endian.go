package endian

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidMap is returned when an external byte map is not a permutation of [0..size).
	ErrInvalidMap = errors.New("endian: invalid byte map")
	// ErrShortBuffer is returned when a buffer is too short for the requested conversion.
	ErrShortBuffer = errors.New("endian: buffer too short")
)

// Predefined external byte maps.
var (
	Big16       = []int{1, 0}
	Little16    = []int{0, 1}
	Big32       = []int{3, 2, 1, 0}
	Little32    = []int{0, 1, 2, 3}
	BigLittle32 = []int{1, 0, 3, 2}
	Big64       = []int{7, 6, 5, 4, 3, 2, 1, 0}
	Little64    = []int{0, 1, 2, 3, 4, 5, 6, 7}
)

// Converter remaps bytes between an external (wire) order and the internal
// little-endian significance order.
type Converter struct {
	size                int
	externalMap         []int
	translationRequired bool
}

// NewConverter creates a converter for the given external byte map.
// The map length selects the integer size and must be 2, 4 or 8.
func NewConverter(externalMap []int) (*Converter, error) {
	size := len(externalMap)
	if size != 2 && size != 4 && size != 8 {
		return nil, fmt.Errorf("%w: size %d, want 2, 4 or 8", ErrInvalidMap, size)
	}

	seen := make([]bool, size)
	translate := false
	for i, pos := range externalMap {
		if pos < 0 || pos >= size || seen[pos] {
			return nil, fmt.Errorf("%w: %v is not a permutation of [0..%d)", ErrInvalidMap, externalMap, size)
		}
		seen[pos] = true
		if pos != i {
			translate = true
		}
	}

	m := make([]int, size)
	copy(m, externalMap)

	return &Converter{size: size, externalMap: m, translationRequired: translate}, nil
}

// MustConverter is like NewConverter but panics on an invalid map.
// It is intended for the package level predefined maps.
func MustConverter(externalMap []int) *Converter {
	c, err := NewConverter(externalMap)
	if err != nil {
		panic(err)
	}
	return c
}

// ByName returns a converter for a named byte order: "big", "little" or, for
// 32-bit values, "big-little" (big-endian words in little-endian word order).
func ByName(name string, size int) (*Converter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == "big" && size == 2:
		return NewConverter(Big16)
	case name == "little" && size == 2:
		return NewConverter(Little16)
	case name == "big" && size == 4:
		return NewConverter(Big32)
	case name == "little" && size == 4:
		return NewConverter(Little32)
	case (name == "big-little" || name == "biglittle") && size == 4:
		return NewConverter(BigLittle32)
	case name == "big" && size == 8:
		return NewConverter(Big64)
	case name == "little" && size == 8:
		return NewConverter(Little64)
	}

	return nil, fmt.Errorf("%w: unknown byte order %q for size %d", ErrInvalidMap, name, size)
}

// Size returns the integer width in bytes.
func (c *Converter) Size() int { return c.size }

// ExternalMap returns a copy of the external byte map.
func (c *Converter) ExternalMap() []int {
	m := make([]int, c.size)
	copy(m, c.externalMap)
	return m
}

// TranslationRequired reports whether the wire order differs from the internal order.
func (c *Converter) TranslationRequired() bool { return c.translationRequired }

// ExternalToInternal reorders size wire bytes into internal order.
func (c *Converter) ExternalToInternal(b []byte) ([]byte, error) {
	if len(b) < c.size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortBuffer, len(b), c.size)
	}

	out := make([]byte, c.size)
	if !c.translationRequired {
		copy(out, b[:c.size])
		return out, nil
	}
	for i, pos := range c.externalMap {
		out[pos] = b[i]
	}

	return out, nil
}

// InternalToExternal reorders size internal bytes into wire order.
func (c *Converter) InternalToExternal(b []byte) ([]byte, error) {
	if len(b) < c.size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortBuffer, len(b), c.size)
	}

	out := make([]byte, c.size)
	if !c.translationRequired {
		copy(out, b[:c.size])
		return out, nil
	}
	for i, pos := range c.externalMap {
		out[i] = b[pos]
	}

	return out, nil
}

func (c *Converter) internalAt(b []byte, offset int, width int) ([]byte, error) {
	if c.size != width {
		return nil, fmt.Errorf("%w: converter size %d used for %d-byte value", ErrInvalidMap, c.size, width)
	}
	if offset < 0 || offset+width > len(b) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, width, offset, len(b))
	}

	return c.ExternalToInternal(b[offset : offset+width])
}

func (c *Converter) putExternal(b []byte, offset int, internal []byte) error {
	if offset < 0 || offset+c.size > len(b) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, c.size, offset, len(b))
	}
	ext, err := c.InternalToExternal(internal)
	if err != nil {
		return err
	}
	copy(b[offset:], ext)

	return nil
}

// Uint16 decodes a 16-bit unsigned value at offset.
func (c *Converter) Uint16(b []byte, offset int) (uint16, error) {
	in, err := c.internalAt(b, offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(in), nil
}

// Int16 decodes a 16-bit signed value at offset.
func (c *Converter) Int16(b []byte, offset int) (int16, error) {
	v, err := c.Uint16(b, offset)
	return int16(v), err //nolint:gosec // two's complement reinterpretation
}

// Uint32 decodes a 32-bit unsigned value at offset.
func (c *Converter) Uint32(b []byte, offset int) (uint32, error) {
	in, err := c.internalAt(b, offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(in), nil
}

// Int32 decodes a 32-bit signed value at offset.
func (c *Converter) Int32(b []byte, offset int) (int32, error) {
	v, err := c.Uint32(b, offset)
	return int32(v), err //nolint:gosec // two's complement reinterpretation
}

// Uint64 decodes a 64-bit unsigned value at offset.
func (c *Converter) Uint64(b []byte, offset int) (uint64, error) {
	in, err := c.internalAt(b, offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(in), nil
}

// PutUint16 encodes v at offset in wire order.
func (c *Converter) PutUint16(b []byte, offset int, v uint16) error {
	if c.size != 2 {
		return fmt.Errorf("%w: converter size %d used for 2-byte value", ErrInvalidMap, c.size)
	}
	var in [2]byte
	binary.LittleEndian.PutUint16(in[:], v)
	return c.putExternal(b, offset, in[:])
}

// PutInt16 encodes v at offset in wire order.
func (c *Converter) PutInt16(b []byte, offset int, v int16) error {
	return c.PutUint16(b, offset, uint16(v)) //nolint:gosec // two's complement reinterpretation
}

// PutUint32 encodes v at offset in wire order.
func (c *Converter) PutUint32(b []byte, offset int, v uint32) error {
	if c.size != 4 {
		return fmt.Errorf("%w: converter size %d used for 4-byte value", ErrInvalidMap, c.size)
	}
	var in [4]byte
	binary.LittleEndian.PutUint32(in[:], v)
	return c.putExternal(b, offset, in[:])
}

// PutInt32 encodes v at offset in wire order.
func (c *Converter) PutInt32(b []byte, offset int, v int32) error {
	return c.PutUint32(b, offset, uint32(v)) //nolint:gosec // two's complement reinterpretation
}

// PutUint64 encodes v at offset in wire order.
func (c *Converter) PutUint64(b []byte, offset int, v uint64) error {
	if c.size != 8 {
		return fmt.Errorf("%w: converter size %d used for 8-byte value", ErrInvalidMap, c.size)
	}
	var in [8]byte
	binary.LittleEndian.PutUint64(in[:], v)
	return c.putExternal(b, offset, in[:])
}
