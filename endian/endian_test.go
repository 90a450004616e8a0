package endian

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConverter_Validation(t *testing.T) {
	tests := []struct {
		name string
		m    []int
	}{
		{"size 3", []int{0, 1, 2}},
		{"empty", nil},
		{"duplicate", []int{0, 0}},
		{"out of range", []int{0, 4, 1, 2}},
		{"negative", []int{-1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConverter(tt.m)
			require.ErrorIs(t, err, ErrInvalidMap)
		})
	}
}

func TestConverter_RoundTrip(t *testing.T) {
	maps := [][]int{Big16, Little16, Big32, Little32, BigLittle32, Big64, Little64}
	for _, m := range maps {
		c := MustConverter(m)
		wire := make([]byte, c.Size())
		for i := range wire {
			wire[i] = byte(0x10 + i)
		}

		internal, err := c.ExternalToInternal(wire)
		require.NoError(t, err)
		back, err := c.InternalToExternal(internal)
		require.NoError(t, err)
		assert.Equal(t, wire, back, "map %v", m)
	}
}

func TestConverter_Values(t *testing.T) {
	big := MustConverter(Big16)
	v, err := big.Uint16([]byte{0x12, 0x34}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v)

	little := MustConverter(Little16)
	v, err = little.Uint16([]byte{0x12, 0x34}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x3412), v)
	assert.False(t, little.TranslationRequired())
	assert.True(t, big.TranslationRequired())

	swapped := MustConverter(BigLittle32)
	u32, err := swapped.Uint32([]byte{0x00, 0x01, 0x02, 0x03}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x02030001), u32)

	buf := make([]byte, 4)
	require.NoError(t, swapped.PutUint32(buf, 0, 0x02030001))
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0x03}, buf)

	s16, err := big.Int16([]byte{0x00, 0xFF, 0xFE}, 1)
	require.NoError(t, err)
	assert.Equal(t, int16(-2), s16)

	b64 := MustConverter(Big64)
	buf = make([]byte, 8)
	require.NoError(t, b64.PutUint64(buf, 0, 0x0102030405060708))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buf)
}

func TestConverter_Bounds(t *testing.T) {
	c := MustConverter(Big16)

	_, err := c.Uint16([]byte{0x01}, 0)
	require.ErrorIs(t, err, ErrShortBuffer)
	_, err = c.Uint16([]byte{0x01, 0x02}, 1)
	require.ErrorIs(t, err, ErrShortBuffer)
	require.ErrorIs(t, c.PutUint16(make([]byte, 2), 1, 5), ErrShortBuffer)

	_, err = c.Uint32([]byte{1, 2, 3, 4}, 0)
	require.ErrorIs(t, err, ErrInvalidMap)
}

func TestByName(t *testing.T) {
	c, err := ByName("Big", 2)
	require.NoError(t, err)
	assert.Equal(t, Big16, c.ExternalMap())

	c, err = ByName("big-little", 4)
	require.NoError(t, err)
	assert.Equal(t, BigLittle32, c.ExternalMap())

	_, err = ByName("middle", 2)
	require.ErrorIs(t, err, ErrInvalidMap)
}

func TestBCD(t *testing.T) {
	b, err := BCDFromDecimal(1234, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, b)

	b, err = BCDFromDecimal(-2, 1, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xD2}, b)

	b, err = BCDFromDecimal(-12, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xD0, 0x12}, b)

	b, err = BCDFromDecimal(7, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC0, 0x07}, b)

	_, err = BCDFromDecimal(-12, 1, true)
	require.ErrorIs(t, err, ErrBCDOverflow)
	_, err = BCDFromDecimal(123, 1, false)
	require.ErrorIs(t, err, ErrBCDOverflow)
	_, err = BCDFromDecimal(-1, 2, false)
	require.ErrorIs(t, err, ErrBCDSign)

	for _, v := range []int64{0, 9, 42, 9999, -999} {
		enc, err := BCDFromDecimal(v, 2, v < 0)
		require.NoError(t, err)
		dec, err := DecimalFromBCD(enc)
		require.NoError(t, err)
		assert.Equal(t, v, dec)
	}

	_, err = DecimalFromBCD([]byte{0x1A})
	require.ErrorIs(t, err, ErrInvalidBCD)

	hi, err := DecimalFromBCD([]byte{0x09, 0x22, 0x33, 0x72, 0x03, 0x68, 0x54, 0x77, 0x58, 0x07})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), hi)
	lo, err := DecimalFromBCD([]byte{0xD9, 0x22, 0x33, 0x72, 0x03, 0x68, 0x54, 0x77, 0x58, 0x07})
	require.NoError(t, err)
	assert.Equal(t, int64(-math.MaxInt64), lo)

	_, err = DecimalFromBCD([]byte{0x09, 0x22, 0x33, 0x72, 0x03, 0x68, 0x54, 0x77, 0x58, 0x08})
	require.ErrorIs(t, err, ErrBCDOverflow)
	_, err = DecimalFromBCD(bytes.Repeat([]byte{0x99}, 10))
	require.ErrorIs(t, err, ErrBCDOverflow)
	_, err = DecimalFromBCD(bytes.Repeat([]byte{0x99}, 12))
	require.ErrorIs(t, err, ErrBCDOverflow)
}
