// Package checksum provides the pluggable checksum strategies used by protocol
// messages. A strategy works over the ordered list of checksum-eligible parts of a
// message rather than a pre-concatenated buffer.
package checksum

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sigurn/crc16"
)

// ErrUnknownStrategy is returned by ByName for an unrecognised strategy name.
var ErrUnknownStrategy = errors.New("checksum: unknown strategy")

// Strategy computes a 16-bit checksum over an ordered list of byte parts.
// 8-bit checksums use the low byte of the result.
type Strategy interface {
	CheckSum16(parts [][]byte) uint16
	Name() string
}

// None always returns zero.
type None struct{}

var _ Strategy = None{}

func (None) CheckSum16([][]byte) uint16 { return 0 }
func (None) Name() string               { return "none" }

// Sum8 is an 8-bit running sum; the result carries only the low byte.
type Sum8 struct{}

var _ Strategy = Sum8{}

// CheckSum16 returns the modulo-256 sum of all bytes.
func (Sum8) CheckSum16(parts [][]byte) uint16 {
	var sum byte
	for _, p := range parts {
		for _, v := range p {
			sum += v
		}
	}

	return uint16(sum)
}

func (Sum8) Name() string { return "sum8" }

// Sum16 is the arithmetic sum of all unsigned byte values truncated to 16 bits,
// the block checksum used by SECS-I style framing.
type Sum16 struct{}

var _ Strategy = Sum16{}

// CheckSum16 returns the modulo-65536 sum of all bytes.
func (Sum16) CheckSum16(parts [][]byte) uint16 {
	var sum uint32
	for _, p := range parts {
		for _, v := range p {
			sum += uint32(v)
		}
	}

	return uint16(sum & 0xFFFF) //nolint:gosec // intentional truncation
}

func (Sum16) Name() string { return "sum16" }

// CRC16 is a table driven CRC-16 over the parts.
type CRC16 struct {
	name  string
	table *crc16.Table
}

var _ Strategy = (*CRC16)(nil)

// NewCRC16 builds a CRC-16 strategy for the given parameters.
func NewCRC16(params crc16.Params) *CRC16 {
	name := params.Name
	if name == "" {
		name = "crc16"
	}

	return &CRC16{name: name, table: crc16.MakeTable(params)}
}

// ModbusCRC16 returns the CRC-16/MODBUS strategy.
func ModbusCRC16() *CRC16 {
	c := NewCRC16(crc16.CRC16_MODBUS)
	c.name = "modbus"

	return c
}

// CheckSum16 feeds every part through the CRC in order.
func (c *CRC16) CheckSum16(parts [][]byte) uint16 {
	crc := crc16.Init(c.table)
	for _, p := range parts {
		crc = crc16.Update(crc, p, c.table)
	}

	return crc16.Complete(crc, c.table)
}

func (c *CRC16) Name() string { return c.name }

// ByName resolves a strategy name from a protocol definition.
// The empty name selects None.
func ByName(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return None{}, nil
	case "sum8":
		return Sum8{}, nil
	case "sum16":
		return Sum16{}, nil
	case "modbus", "crc16-modbus":
		return ModbusCRC16(), nil
	case "crc16", "crc16-ccitt":
		c := NewCRC16(crc16.CRC16_CCITT_FALSE)
		c.name = "crc16"
		return c, nil
	case "crc16-xmodem":
		c := NewCRC16(crc16.CRC16_XMODEM)
		c.name = "crc16-xmodem"
		return c, nil
	case "crc16-kermit":
		c := NewCRC16(crc16.CRC16_KERMIT)
		c.name = "crc16-kermit"
		return c, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Low8 returns the 8-bit form of a 16-bit checksum.
func Low8(v uint16) byte {
	return byte(v & 0xFF) //nolint:gosec // low byte only
}
