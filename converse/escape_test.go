package converse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeBytes(t *testing.T) {
	got := EscapeBytes([]byte{0x01, 0xFD, 0xFE, 0x11, 0x12, 0x13, 0x7D, 0x02})
	assert.Equal(t, []byte{
		0x01,
		0x7D, 0xDD,
		0x7D, 0xDE,
		0x7D, 0x31,
		0x7D, 0x32,
		0x7D, 0x33,
		0x7D, 0x5D,
		0x02,
	}, got)
}

func TestEscape_RoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	inputs := [][]byte{
		nil,
		{0x7D},
		{0x7D, 0x5D},
		{0xFD, 0xFE, 0x11, 0x12, 0x13},
		all,
	}
	for _, in := range inputs {
		out, err := UnescapeBytes(EscapeBytes(in))
		require.NoError(t, err)
		assert.Equal(t, len(in), len(out))
		if len(in) > 0 {
			assert.Equal(t, in, out)
		}
	}
}

func TestUnescapeBytes_TrailingEscape(t *testing.T) {
	_, err := UnescapeBytes([]byte{0x01, 0x7D})
	require.ErrorIs(t, err, ErrBadEscape)
}
