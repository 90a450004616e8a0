package register

import (
	"fmt"
	"math"

	"github.com/arloliu/go-converse/endian"
	"github.com/arloliu/go-converse/logger"
)

// Option configures a register. Options that do not apply to a register
// type are ignored by it.
type Option interface {
	apply(*regConfig) error
}

type optFunc func(*regConfig) error

func (f optFunc) apply(c *regConfig) error { return f(c) }

type regConfig struct {
	scale     float64
	endian16  *endian.Converter
	endian32  *endian.Converter
	signedBCD bool
	logger    logger.Logger
}

func newRegConfig(opts []Option) (*regConfig, error) {
	cfg := &regConfig{
		scale:    1,
		endian16: endian.MustConverter(endian.Big16),
		endian32: endian.MustConverter(endian.Big32),
		logger:   logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// WithScale sets the linear factor applied after decoding and divided out
// before encoding. The default is 1.
func WithScale(factor float64) Option {
	return optFunc(func(c *regConfig) error {
		if factor == 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
			return fmt.Errorf("%w: scale factor %v", ErrInvalidSpec, factor)
		}
		c.scale = factor

		return nil
	})
}

// WithEndian16 sets the byte order of 16-bit wire values. The default is big endian.
func WithEndian16(conv *endian.Converter) Option {
	return optFunc(func(c *regConfig) error {
		if conv == nil || conv.Size() != 2 {
			return fmt.Errorf("%w: endian16 requires a 2-byte converter", ErrInvalidSpec)
		}
		c.endian16 = conv

		return nil
	})
}

// WithEndian32 sets the byte order of 32-bit wire values. The default is big endian.
func WithEndian32(conv *endian.Converter) Option {
	return optFunc(func(c *regConfig) error {
		if conv == nil || conv.Size() != 4 {
			return fmt.Errorf("%w: endian32 requires a 4-byte converter", ErrInvalidSpec)
		}
		c.endian32 = conv

		return nil
	})
}

// WithSignedBCD reserves the leading nibble of encoded BCD values for a sign.
func WithSignedBCD(signed bool) Option {
	return optFunc(func(c *regConfig) error {
		c.signedBCD = signed
		return nil
	})
}

// WithLogger sets the logger used for decode diagnostics.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(c *regConfig) error {
		if l == nil {
			return fmt.Errorf("%w: nil logger", ErrInvalidSpec)
		}
		c.logger = l

		return nil
	})
}
