package converse

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-converse/checksum"
	"github.com/arloliu/go-converse/endian"
	"github.com/arloliu/go-converse/logger"
)

// Session policy defaults.
const (
	DefaultTimeout  = 5 * time.Second
	DefaultSendGap  = 1200 * time.Millisecond
	NoTimeout       = time.Duration(0)
	MaxSendGap      = time.Minute
	MaxTimeout      = 10 * time.Minute
	DefaultPrefixes = "%PAYLOAD"
)

type config struct {
	sendGap          time.Duration
	defaultTimeout   time.Duration
	checksum         checksum.Strategy
	endian16         *endian.Converter
	endian32         *endian.Converter
	checksumEndian16 *endian.Converter
	scopePrefixes    []string
	maxVariableSize  int
	escape           bool
	logger           logger.Logger
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		sendGap:          DefaultSendGap,
		defaultTimeout:   DefaultTimeout,
		checksum:         checksum.None{},
		endian16:         endian.MustConverter(endian.Big16),
		endian32:         endian.MustConverter(endian.Big32),
		checksumEndian16: endian.MustConverter(endian.Big16),
		scopePrefixes:    []string{DefaultPrefixes},
		maxVariableSize:  DefaultDynamicMaxSize,
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option configures a Converse session.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithSendGap sets the minimum time between two sends of the session.
func WithSendGap(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < 0 || d > MaxSendGap {
			return fmt.Errorf("converse: send gap %s out of range [0, %s]", d, MaxSendGap)
		}
		cfg.sendGap = d

		return nil
	})
}

// WithDefaultTimeout sets the per-message receive timeout. NoTimeout waits
// without deadline.
func WithDefaultTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < 0 || d > MaxTimeout {
			return fmt.Errorf("converse: timeout %s out of range [0, %s]", d, MaxTimeout)
		}
		cfg.defaultTimeout = d

		return nil
	})
}

// WithChecksum sets the checksum strategy.
func WithChecksum(s checksum.Strategy) Option {
	return optFunc(func(cfg *config) error {
		if s == nil {
			return errors.New("converse: nil checksum strategy")
		}
		cfg.checksum = s

		return nil
	})
}

// WithEndian16 sets the byte order of 16-bit values such as length prefixes.
func WithEndian16(c *endian.Converter) Option {
	return optFunc(func(cfg *config) error {
		if c == nil || c.Size() != 2 {
			return errors.New("converse: endian16 requires a 2-byte converter")
		}
		cfg.endian16 = c

		return nil
	})
}

// WithEndian32 sets the byte order of 32-bit values.
func WithEndian32(c *endian.Converter) Option {
	return optFunc(func(cfg *config) error {
		if c == nil || c.Size() != 4 {
			return errors.New("converse: endian32 requires a 4-byte converter")
		}
		cfg.endian32 = c

		return nil
	})
}

// WithChecksumEndian16 sets the byte order of 16-bit checksums on the wire.
func WithChecksumEndian16(c *endian.Converter) Option {
	return optFunc(func(cfg *config) error {
		if c == nil || c.Size() != 2 {
			return errors.New("converse: checksum endian requires a 2-byte converter")
		}
		cfg.checksumEndian16 = c

		return nil
	})
}

// WithConversationScopePrefixes sets the variable name prefixes that make a
// declaration conversation scoped. An empty list scopes every variable globally.
func WithConversationScopePrefixes(prefixes ...string) Option {
	return optFunc(func(cfg *config) error {
		cfg.scopePrefixes = append([]string(nil), prefixes...)
		return nil
	})
}

// WithMaxVariableSize bounds the length a length prefix may resize a BYTE
// variable to, and the capacity of DYNAMICBYTE variables declared without a
// size. Defaults to DefaultDynamicMaxSize.
func WithMaxVariableSize(n int) Option {
	return optFunc(func(cfg *config) error {
		if n <= 0 {
			return fmt.Errorf("converse: max variable size %d must be positive", n)
		}
		cfg.maxVariableSize = n

		return nil
	})
}

// WithEscaping byte-stuffs every sent element except '~' literals with
// EscapeBytes, and unstuffs them on receive.
func WithEscaping(enabled bool) Option {
	return optFunc(func(cfg *config) error {
		cfg.escape = enabled
		return nil
	})
}

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}
