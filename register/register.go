package register

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/arloliu/go-converse/converse"
	"github.com/arloliu/go-converse/logger"
)

var (
	// ErrUnsupportedType is returned for an unknown wire type, string encoding
	// or a value of the wrong kind for the register.
	ErrUnsupportedType = errors.New("register: unsupported type")
	// ErrOutOfRange is returned when a value does not fit the register or the
	// register does not fit the buffer.
	ErrOutOfRange = errors.New("register: value out of range")
	// ErrInvalidSpec is returned by constructors for an inconsistent Spec.
	ErrInvalidSpec = errors.New("register: invalid spec")
	// ErrNoValue is returned by StoreItemValue when neither a producer nor a
	// current value is available.
	ErrNoValue = errors.New("register: no value to store")
)

// Addressing selects where a register reads and writes its bytes.
//
// Exactly one of MappedToRegisterData, BoundToVariable or FixedValue.
type Addressing interface {
	isAddressing()
}

// MappedToRegisterData addresses Size bytes at Offset inside the block buffer.
type MappedToRegisterData struct {
	Offset int
}

// BoundToVariable addresses the bytes of a conversation variable.
type BoundToVariable struct {
	Variable converse.Variable
}

// FixedValue is a register whose value never comes from the wire.
type FixedValue struct {
	Value Value
}

func (MappedToRegisterData) isAddressing() {}
func (BoundToVariable) isAddressing()      {}
func (FixedValue) isAddressing()           {}

// Flags marks registers whose values carry device state.
type Flags uint8

const (
	AlarmFlag Flags = 1 << iota
	ErrorFlag
	StatusFlag
)

// Has reports whether all bits of x are set.
func (f Flags) Has(x Flags) bool { return f&x == x && x != 0 }

func (f Flags) String() string {
	var parts []string
	if f.Has(AlarmFlag) {
		parts = append(parts, "alarm")
	}
	if f.Has(ErrorFlag) {
		parts = append(parts, "error")
	}
	if f.Has(StatusFlag) {
		parts = append(parts, "status")
	}

	return strings.Join(parts, "|")
}

// ParseFlags parses a list of flag names (alarm, error, status).
func ParseFlags(names []string) (Flags, error) {
	var f Flags
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "alarm":
			f |= AlarmFlag
		case "error":
			f |= ErrorFlag
		case "status":
			f |= StatusFlag
		case "":
		default:
			return 0, fmt.Errorf("%w: flag %q", ErrInvalidSpec, name)
		}
	}

	return f, nil
}

// Spec holds the properties common to every register.
//
// Size 0 lets the register type pick its natural size.
type Spec struct {
	Name       string
	Size       int
	Addressing Addressing
	Flags      Flags
	Values     ValueList
}

// Consumer receives every value decoded by GetItemValue.
type Consumer interface {
	ConsumeValue(reg Register, v Value)
}

// Producer supplies the value encoded by StoreItemValue. Returning false
// falls back to the register's current value.
type Producer interface {
	ProduceValue(reg Register) (Value, bool)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(reg Register, v Value)

func (f ConsumerFunc) ConsumeValue(reg Register, v Value) { f(reg, v) }

// ProducerFunc adapts a function to Producer.
type ProducerFunc func(reg Register) (Value, bool)

func (f ProducerFunc) ProduceValue(reg Register) (Value, bool) { return f(reg) }

// Register is implemented by *Number, *String and *Bytes.
type Register interface {
	Name() string
	Size() int
	Addressing() Addressing
	Flags() Flags
	Values() ValueList

	// GetItemValue decodes the register from buf (or its bound/fixed source),
	// records it as the current value and forwards it to the consumer.
	GetItemValue(buf []byte) (Value, error)
	// StoreItemValue encodes the produced or current value into buf (or the
	// bound variable).
	StoreItemValue(buf []byte) error

	// Current returns the last decoded or assigned value, nil if none.
	Current() Value
	// SetValue assigns the current value used by StoreItemValue.
	SetValue(v Value) error

	SetConsumer(c Consumer)
	SetProducer(p Producer)

	base() *regBase
}

type regBase struct {
	self     Register
	spec     Spec
	logger   logger.Logger
	mu       sync.Mutex
	current  Value
	consumer Consumer
	producer Producer
}

func (r *regBase) init(self Register, spec Spec, naturalSize int, l logger.Logger) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSpec)
	}
	switch a := spec.Addressing.(type) {
	case nil:
		return fmt.Errorf("%w: register %q has no addressing", ErrInvalidSpec, spec.Name)
	case MappedToRegisterData:
		if a.Offset < 0 {
			return fmt.Errorf("%w: register %q has negative offset", ErrInvalidSpec, spec.Name)
		}
	case BoundToVariable:
		if a.Variable == nil {
			return fmt.Errorf("%w: register %q bound to nil variable", ErrInvalidSpec, spec.Name)
		}
	case FixedValue:
		if a.Value == nil {
			return fmt.Errorf("%w: register %q has no fixed value", ErrInvalidSpec, spec.Name)
		}
	}

	if spec.Size < 0 {
		return fmt.Errorf("%w: register %q has negative size", ErrInvalidSpec, spec.Name)
	}
	if spec.Size == 0 {
		spec.Size = naturalSize
	}
	if _, ok := spec.Addressing.(MappedToRegisterData); ok && spec.Size == 0 {
		return fmt.Errorf("%w: register %q needs a size", ErrInvalidSpec, spec.Name)
	}

	r.self = self
	r.spec = spec
	r.logger = l.With("register", spec.Name)

	return nil
}

func (r *regBase) Name() string           { return r.spec.Name }
func (r *regBase) Size() int              { return r.spec.Size }
func (r *regBase) Addressing() Addressing { return r.spec.Addressing }
func (r *regBase) Flags() Flags           { return r.spec.Flags }
func (r *regBase) Values() ValueList      { return r.spec.Values }
func (r *regBase) base() *regBase         { return r }

func (r *regBase) Current() Value {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.current
}

func (r *regBase) SetConsumer(c Consumer) {
	r.mu.Lock()
	r.consumer = c
	r.mu.Unlock()
}

func (r *regBase) SetProducer(p Producer) {
	r.mu.Lock()
	r.producer = p
	r.mu.Unlock()
}

func (r *regBase) setCurrent(v Value) {
	r.mu.Lock()
	r.current = v
	r.mu.Unlock()
}

// fixed returns the fixed value of the register, if it has one.
func (r *regBase) fixed() (Value, bool) {
	fv, ok := r.spec.Addressing.(FixedValue)
	if !ok {
		return nil, false
	}

	return fv.Value, true
}

// source returns the raw bytes of the register, or ok=false for a fixed value.
func (r *regBase) source(buf []byte) ([]byte, bool, error) {
	switch a := r.spec.Addressing.(type) {
	case MappedToRegisterData:
		end := a.Offset + r.spec.Size
		if end > len(buf) {
			return nil, false, fmt.Errorf("%w: register %q needs bytes [%d:%d], buffer has %d",
				ErrOutOfRange, r.spec.Name, a.Offset, end, len(buf))
		}

		return buf[a.Offset:end], true, nil
	case BoundToVariable:
		b := a.Variable.Bytes()
		if r.spec.Size == 0 {
			return b, true, nil
		}
		if len(b) < r.spec.Size {
			return nil, false, fmt.Errorf("%w: register %q needs %d bytes, variable %q has %d",
				ErrOutOfRange, r.spec.Name, r.spec.Size, a.Variable.Name(), len(b))
		}

		return b[:r.spec.Size], true, nil
	default:
		return nil, false, nil
	}
}

// sink writes encoded bytes to the register's location.
func (r *regBase) sink(buf []byte, data []byte) error {
	switch a := r.spec.Addressing.(type) {
	case MappedToRegisterData:
		end := a.Offset + len(data)
		if end > len(buf) {
			return fmt.Errorf("%w: register %q needs bytes [%d:%d], buffer has %d",
				ErrOutOfRange, r.spec.Name, a.Offset, end, len(buf))
		}
		copy(buf[a.Offset:end], data)

		return nil
	case BoundToVariable:
		return a.Variable.SetBytes(data, 0, len(data))
	default:
		// fixed values have nowhere to go
		return nil
	}
}

// publish records v and forwards it to the consumer.
func (r *regBase) publish(v Value) {
	r.mu.Lock()
	r.current = v
	c := r.consumer
	r.mu.Unlock()

	if c != nil {
		c.ConsumeValue(r.self, v)
	}
}

// produce returns the value to encode.
func (r *regBase) produce() (Value, error) {
	r.mu.Lock()
	p := r.producer
	cur := r.current
	r.mu.Unlock()

	if p != nil {
		if v, ok := p.ProduceValue(r.self); ok && v != nil {
			return v, nil
		}
	}
	if cur != nil {
		return cur, nil
	}
	if v, ok := r.fixed(); ok {
		return v, nil
	}

	return nil, fmt.Errorf("%w: register %q", ErrNoValue, r.spec.Name)
}
