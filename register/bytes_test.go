package register

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytes_GetAndStore(t *testing.T) {
	r, err := NewBytes(mapped("serial", 1, 4))
	require.NoError(t, err)

	buf := []byte{0x00, 0xDE, 0xAD, 0xBE, 0xEF, 0x00}
	v, err := r.GetItemValue(buf)
	require.NoError(t, err)
	require.Equal(t, BytesValue{0xDE, 0xAD, 0xBE, 0xEF}, v)

	// decoded values do not alias the block buffer
	buf[1] = 0x11
	require.Equal(t, BytesValue{0xDE, 0xAD, 0xBE, 0xEF}, r.Current())

	require.NoError(t, r.SetValue(BytesValue{0x01, 0x02}))
	require.NoError(t, r.StoreItemValue(buf))
	require.Equal(t, []byte{0x00, 0x01, 0x02, 0x00, 0x00, 0x00}, buf)

	require.NoError(t, r.SetValue(BytesValue{1, 2, 3, 4, 5}))
	require.ErrorIs(t, r.StoreItemValue(buf), ErrOutOfRange)
}

func TestBytes_Fixed(t *testing.T) {
	r, err := NewBytes(Spec{Name: "magic", Addressing: FixedValue{Value: BytesValue{0x7E}}})
	require.NoError(t, err)

	v, err := r.GetItemValue(nil)
	require.NoError(t, err)
	require.Equal(t, BytesValue{0x7E}, v)

	_, err = NewBytes(Spec{Name: "magic", Addressing: FixedValue{Value: NumberValue(1)}})
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestFlags(t *testing.T) {
	f, err := ParseFlags([]string{"Alarm", " status "})
	require.NoError(t, err)
	require.True(t, f.Has(AlarmFlag))
	require.True(t, f.Has(StatusFlag))
	require.False(t, f.Has(ErrorFlag))
	require.Equal(t, "alarm|status", f.String())

	_, err = ParseFlags([]string{"warning"})
	require.ErrorIs(t, err, ErrInvalidSpec)
}
