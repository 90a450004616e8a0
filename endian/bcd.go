package endian

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidBCD is returned when a nibble is not a decimal digit or sign.
	ErrInvalidBCD = errors.New("endian: invalid BCD digit")
	// ErrBCDOverflow is returned when a value has more digits than the field holds.
	ErrBCDOverflow = errors.New("endian: value does not fit BCD field")
	// ErrBCDSign is returned when a negative value is encoded without a sign nibble.
	ErrBCDSign = errors.New("endian: negative value requires sign nibble")
)

const (
	bcdPositive = 0xC
	bcdNegative = 0xD
)

// DecimalFromBCD decodes packed BCD, most significant nibble first.
// A leading 0xC or 0xD nibble is read as a positive or negative sign.
// Digits beyond the int64 range are rejected with ErrBCDOverflow.
func DecimalFromBCD(b []byte) (int64, error) {
	var v int64
	neg := false
	for i := 0; i < len(b)*2; i++ {
		nib := b[i/2] >> 4
		if i%2 == 1 {
			nib = b[i/2] & 0x0F
		}

		if i == 0 && (nib == bcdPositive || nib == bcdNegative) {
			neg = nib == bcdNegative
			continue
		}
		if nib > 9 {
			return 0, fmt.Errorf("%w: nibble 0x%X at position %d", ErrInvalidBCD, nib, i)
		}
		if v > (math.MaxInt64-int64(nib))/10 {
			return 0, fmt.Errorf("%w: %d bytes exceed int64", ErrBCDOverflow, len(b))
		}
		v = v*10 + int64(nib)
	}
	if neg {
		v = -v
	}

	return v, nil
}

// BCDFromDecimal packs v into size bytes of BCD. When includeSign is set the
// first nibble carries the sign and 2*size-1 digits remain for the value.
// Values that do not fit are rejected, never truncated.
func BCDFromDecimal(v int64, size int, includeSign bool) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrBCDOverflow, size)
	}
	if v < 0 && !includeSign {
		return nil, fmt.Errorf("%w: %d", ErrBCDSign, v)
	}

	neg := v < 0
	mag := uint64(v)
	if neg {
		mag = uint64(-(v + 1)) + 1
	}

	digits := size * 2
	if includeSign {
		digits--
	}

	out := make([]byte, size)
	for i := size*2 - 1; i >= size*2-digits; i-- {
		d := byte(mag % 10)
		mag /= 10
		if i%2 == 1 {
			out[i/2] |= d
		} else {
			out[i/2] |= d << 4
		}
	}
	if mag != 0 {
		return nil, fmt.Errorf("%w: %d in %d bytes", ErrBCDOverflow, v, size)
	}

	if includeSign {
		sign := byte(bcdPositive)
		if neg {
			sign = bcdNegative
		}
		out[0] |= sign << 4
	}

	return out, nil
}
