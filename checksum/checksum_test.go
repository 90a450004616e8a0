package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allStrategies(t *testing.T) []Strategy {
	t.Helper()

	var out []Strategy
	for _, name := range []string{"sum8", "sum16", "modbus", "crc16", "crc16-xmodem", "crc16-kermit"} {
		s, err := ByName(name)
		require.NoError(t, err)
		out = append(out, s)
	}

	return out
}

func TestSum(t *testing.T) {
	parts := [][]byte{{0xFF, 0x01}, {0x80}}
	assert.Equal(t, uint16(0x80), Sum8{}.CheckSum16(parts))
	assert.Equal(t, uint16(0x180), Sum16{}.CheckSum16(parts))
	assert.Equal(t, uint16(0), None{}.CheckSum16(parts))
}

func TestModbusCRC16_KnownVector(t *testing.T) {
	// standard check value for "123456789"
	s := ModbusCRC16()
	assert.Equal(t, uint16(0x4B37), s.CheckSum16([][]byte{[]byte("123456789")}))
	assert.Equal(t, "modbus", s.Name())
}

func TestCRC16_PartsEqualConcatenation(t *testing.T) {
	for _, s := range allStrategies(t) {
		split := s.CheckSum16([][]byte{[]byte("1234"), nil, []byte("56789")})
		whole := s.CheckSum16([][]byte{[]byte("123456789")})
		assert.Equal(t, whole, split, s.Name())
	}
}

func TestStrategy_Determinism(t *testing.T) {
	included := [][]byte{{0x01, 0x03, 0x00, 0x10}, {0x00, 0x02}}
	for _, s := range allStrategies(t) {
		first := s.CheckSum16(included)
		assert.Equal(t, first, s.CheckSum16(included), s.Name())

		changed := [][]byte{{0x01, 0x03, 0x00, 0x11}, {0x00, 0x02}}
		assert.NotEqual(t, first, s.CheckSum16(changed), s.Name())
	}
}

func TestByName_Unknown(t *testing.T) {
	s, err := ByName("")
	require.NoError(t, err)
	assert.Equal(t, "none", s.Name())

	_, err = ByName("md5")
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestLow8(t *testing.T) {
	assert.Equal(t, byte(0x34), Low8(0x1234))
}
