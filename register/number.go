package register

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/arloliu/go-converse/endian"
)

// ErrDecode is returned when wire bytes cannot be interpreted as the register type.
var ErrDecode = errors.New("register: cannot decode value")

// NumberType is the wire representation of a numeric register.
type NumberType int

const (
	TypeByte NumberType = iota
	TypeUint16
	// TypeUint16Exp is a 16-bit magnitude followed by an exponent byte.
	TypeUint16Exp
	TypeUint32
	TypeSint16
	// TypeSint16Exp is a signed 16-bit magnitude followed by an exponent byte.
	TypeSint16Exp
	TypeSint32
	TypeBCD
	// TypeString is a decimal number written as text.
	TypeString
)

var numberTypeNames = [...]string{
	TypeByte:      "byte",
	TypeUint16:    "uint16",
	TypeUint16Exp: "uint16_exp",
	TypeUint32:    "uint32",
	TypeSint16:    "sint16",
	TypeSint16Exp: "sint16_exp",
	TypeSint32:    "sint32",
	TypeBCD:       "bcd",
	TypeString:    "string",
}

var numberTypeSizes = [...]int{
	TypeByte:      1,
	TypeUint16:    2,
	TypeUint16Exp: 3,
	TypeUint32:    4,
	TypeSint16:    2,
	TypeSint16Exp: 3,
	TypeSint32:    4,
}

func (t NumberType) String() string {
	if t < 0 || int(t) >= len(numberTypeNames) {
		return "unknown"
	}

	return numberTypeNames[t]
}

// ParseNumberType parses a wire type name such as "uint16_exp".
func ParseNumberType(name string) (NumberType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range numberTypeNames {
		if n == name {
			return NumberType(i), nil
		}
	}

	return 0, fmt.Errorf("%w: number type %q", ErrUnsupportedType, name)
}

// exponent codes of the _exp types, as powers of ten
var exponentPowers = map[byte]int{
	0: 0, 1: 1, 2: 2, 3: 3, 4: 4, 5: 5, 6: 6, 7: 7, 8: 8, 9: 9, 10: 10,
	255: -1, 254: -2, 253: -3,
}

func exponentCode(power int) byte {
	if power < 0 {
		return byte(256 + power)
	}

	return byte(power)
}

// exact representations are tried in this order, rounded ones finest first
var (
	exactPowers   = []int{0, -1, -2, -3, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	roundedPowers = []int{-3, -2, -1, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
)

func applyPower(mag float64, power int) float64 {
	if power < 0 {
		return mag / math.Pow10(-power)
	}

	return mag * math.Pow10(power)
}

// Number is a numeric register.
type Number struct {
	regBase
	typ       NumberType
	scale     float64
	endian16  *endian.Converter
	endian32  *endian.Converter
	signedBCD bool
}

var _ Register = (*Number)(nil)

// NewNumber creates a numeric register of the given wire type.
//
// Fixed-width types default Spec.Size to their natural width and reject any
// other size. TypeBCD and TypeString need an explicit size unless the
// register is bound to a variable or fixed.
func NewNumber(spec Spec, typ NumberType, opts ...Option) (*Number, error) {
	if typ < 0 || int(typ) >= len(numberTypeNames) {
		return nil, fmt.Errorf("%w: number type %d", ErrUnsupportedType, typ)
	}
	cfg, err := newRegConfig(opts)
	if err != nil {
		return nil, err
	}

	natural := 0
	if int(typ) < len(numberTypeSizes) {
		natural = numberTypeSizes[typ]
	}
	if natural > 0 && spec.Size != 0 && spec.Size != natural {
		return nil, fmt.Errorf("%w: %s register %q must be %d bytes, got %d",
			ErrInvalidSpec, typ, spec.Name, natural, spec.Size)
	}

	n := &Number{
		typ:       typ,
		scale:     cfg.scale,
		endian16:  cfg.endian16,
		endian32:  cfg.endian32,
		signedBCD: cfg.signedBCD,
	}
	if err := n.init(n, spec, natural, cfg.logger); err != nil {
		return nil, err
	}
	if fv, ok := n.fixed(); ok {
		if _, ok := fv.(NumberValue); !ok {
			return nil, fmt.Errorf("%w: fixed value of %q is %T", ErrUnsupportedType, spec.Name, fv)
		}
	}

	return n, nil
}

// Type returns the wire type.
func (n *Number) Type() NumberType { return n.typ }

// Scale returns the scale factor.
func (n *Number) Scale() float64 { return n.scale }

// SetValue assigns the current value; it must be a NumberValue.
func (n *Number) SetValue(v Value) error {
	if _, ok := v.(NumberValue); !ok {
		return fmt.Errorf("%w: register %q expects a number, got %T", ErrUnsupportedType, n.spec.Name, v)
	}
	n.setCurrent(v)

	return nil
}

// GetItemValue implements Register.
func (n *Number) GetItemValue(buf []byte) (Value, error) {
	raw, ok, err := n.source(buf)
	if err != nil {
		return nil, err
	}

	var v Value
	if !ok {
		v, _ = n.fixed()
	} else {
		f, err := n.BytesToDecimal(raw)
		if err != nil {
			return nil, err
		}
		v = NumberValue(f)
	}
	n.publish(v)

	return v, nil
}

// StoreItemValue implements Register.
func (n *Number) StoreItemValue(buf []byte) error {
	v, err := n.produce()
	if err != nil {
		return err
	}
	nv, ok := v.(NumberValue)
	if !ok {
		return fmt.Errorf("%w: register %q expects a number, got %T", ErrUnsupportedType, n.spec.Name, v)
	}
	if _, fixed := n.fixed(); fixed {
		return nil
	}

	data, err := n.DecimalToBytes(float64(nv))
	if err != nil {
		return err
	}

	return n.sink(buf, data)
}

// BytesToDecimal decodes raw wire bytes and applies the scale factor.
func (n *Number) BytesToDecimal(b []byte) (float64, error) {
	if len(b) < numberTypeSizeOf(n.typ) {
		return 0, fmt.Errorf("%w: %s register %q got %d bytes", ErrOutOfRange, n.typ, n.spec.Name, len(b))
	}

	var v float64
	switch n.typ {
	case TypeByte:
		v = float64(b[0])
	case TypeUint16:
		u, err := n.endian16.Uint16(b, 0)
		if err != nil {
			return 0, err
		}
		v = float64(u)
	case TypeSint16:
		i, err := n.endian16.Int16(b, 0)
		if err != nil {
			return 0, err
		}
		v = float64(i)
	case TypeUint16Exp:
		u, err := n.endian16.Uint16(b, 0)
		if err != nil {
			return 0, err
		}
		v = n.withExponent(float64(u), b[2])
	case TypeSint16Exp:
		i, err := n.endian16.Int16(b, 0)
		if err != nil {
			return 0, err
		}
		v = n.withExponent(float64(i), b[2])
	case TypeUint32:
		u, err := n.endian32.Uint32(b, 0)
		if err != nil {
			return 0, err
		}
		v = float64(u)
	case TypeSint32:
		i, err := n.endian32.Int32(b, 0)
		if err != nil {
			return 0, err
		}
		v = float64(i)
	case TypeBCD:
		i, err := endian.DecimalFromBCD(b)
		if err != nil {
			return 0, err
		}
		v = float64(i)
	case TypeString:
		text := strings.TrimSpace(strings.TrimRight(string(b), "\x00"))
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: register %q text %q is not a number", ErrDecode, n.spec.Name, text)
		}
		v = f
	}

	return v * n.scale, nil
}

// DecimalToBytes divides out the scale factor and encodes v to wire bytes.
func (n *Number) DecimalToBytes(v float64) ([]byte, error) {
	raw := v / n.scale
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return nil, fmt.Errorf("%w: register %q value %v", ErrOutOfRange, n.spec.Name, v)
	}

	switch n.typ {
	case TypeByte:
		r, err := n.integral(raw, 0, math.MaxUint8)
		if err != nil {
			return nil, err
		}

		return []byte{byte(r)}, nil
	case TypeUint16:
		r, err := n.integral(raw, 0, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 2)

		return b, n.endian16.PutUint16(b, 0, uint16(r))
	case TypeSint16:
		r, err := n.integral(raw, math.MinInt16, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 2)

		return b, n.endian16.PutInt16(b, 0, int16(r))
	case TypeUint16Exp, TypeSint16Exp:
		return n.encodeExp(raw)
	case TypeUint32:
		r, err := n.integral(raw, 0, math.MaxUint32)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 4)

		return b, n.endian32.PutUint32(b, 0, uint32(r))
	case TypeSint32:
		r, err := n.integral(raw, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 4)

		return b, n.endian32.PutInt32(b, 0, int32(r))
	case TypeBCD:
		return endian.BCDFromDecimal(int64(math.Round(raw)), n.spec.Size, n.signedBCD)
	case TypeString:
		text := strconv.FormatFloat(raw, 'f', -1, 64)
		if n.spec.Size == 0 {
			return []byte(text), nil
		}
		if len(text) > n.spec.Size {
			return nil, fmt.Errorf("%w: register %q text %q exceeds %d bytes", ErrOutOfRange, n.spec.Name, text, n.spec.Size)
		}

		return []byte(text + strings.Repeat(" ", n.spec.Size-len(text))), nil
	}

	return nil, fmt.Errorf("%w: number type %d", ErrUnsupportedType, n.typ)
}

func (n *Number) withExponent(mag float64, code byte) float64 {
	power, ok := exponentPowers[code]
	if !ok {
		n.logger.Warn("invalid exponent, value treated as 0", "exponent", code, "magnitude", mag)
		return 0
	}

	return applyPower(mag, power)
}

func (n *Number) encodeExp(raw float64) ([]byte, error) {
	lo, hi := 0.0, float64(math.MaxUint16)
	if n.typ == TypeSint16Exp {
		lo, hi = math.MinInt16, math.MaxInt16
	}

	power, mag, ok := pickExponent(raw, lo, hi)
	if !ok {
		return nil, fmt.Errorf("%w: register %q value %v cannot be encoded as %s", ErrOutOfRange, n.spec.Name, raw, n.typ)
	}

	b := make([]byte, 3)
	var err error
	if n.typ == TypeSint16Exp {
		err = n.endian16.PutInt16(b, 0, int16(mag))
	} else {
		err = n.endian16.PutUint16(b, 0, uint16(mag))
	}
	b[2] = exponentCode(power)

	return b, err
}

// pickExponent returns the first exponent that represents raw exactly within
// [lo, hi], falling back to the finest exponent that fits after rounding.
// A non-zero value never rounds to zero.
func pickExponent(raw, lo, hi float64) (int, int64, bool) {
	for _, p := range exactPowers {
		m := applyPower(raw, -p)
		r := math.Round(m)
		if r >= lo && r <= hi && math.Abs(m-r) <= 1e-9*math.Max(1, math.Abs(m)) {
			return p, int64(r), true
		}
	}
	for _, p := range roundedPowers {
		r := math.Round(applyPower(raw, -p))
		if r >= lo && r <= hi && (r != 0 || raw == 0) {
			return p, int64(r), true
		}
	}

	return 0, 0, false
}

func (n *Number) integral(raw, lo, hi float64) (int64, error) {
	r := math.Round(raw)
	if r < lo || r > hi {
		return 0, fmt.Errorf("%w: register %q value %v outside [%v, %v]", ErrOutOfRange, n.spec.Name, raw, lo, hi)
	}

	return int64(r), nil
}

func numberTypeSizeOf(t NumberType) int {
	if t < 0 || int(t) >= len(numberTypeSizes) {
		return 1
	}

	return numberTypeSizes[t]
}
