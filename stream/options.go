package stream

import (
	"fmt"
	"time"

	"github.com/arloliu/go-converse/logger"
	"github.com/tarm/serial"
)

// Default option values.
const (
	DefaultBaudRate          = 9600
	DefaultDialTimeout       = 3 * time.Second
	DefaultReadChunkSize     = 256
	DefaultSerialReadTimeout = 100 * time.Millisecond

	MaxReadChunkSize = 64 * 1024
)

type config struct {
	baudRate          int
	parity            serial.Parity
	stopBits          serial.StopBits
	dialTimeout       time.Duration
	readChunkSize     int
	serialReadTimeout time.Duration
	logger            logger.Logger
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		baudRate:          DefaultBaudRate,
		parity:            serial.ParityNone,
		stopBits:          serial.Stop1,
		dialTimeout:       DefaultDialTimeout,
		readChunkSize:     DefaultReadChunkSize,
		serialReadTimeout: DefaultSerialReadTimeout,
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option configures a Stream.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithBaudRate sets the serial line speed.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *config) error {
		if baud <= 0 {
			return fmt.Errorf("stream: invalid baud rate %d", baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithParity sets the serial parity from its conventional letter: N, O, E, M or S.
func WithParity(parity string) Option {
	return optFunc(func(cfg *config) error {
		switch parity {
		case "", "N", "n", "none":
			cfg.parity = serial.ParityNone
		case "O", "o", "odd":
			cfg.parity = serial.ParityOdd
		case "E", "e", "even":
			cfg.parity = serial.ParityEven
		case "M", "m", "mark":
			cfg.parity = serial.ParityMark
		case "S", "s", "space":
			cfg.parity = serial.ParitySpace
		default:
			return fmt.Errorf("stream: invalid parity %q", parity)
		}

		return nil
	})
}

// WithStopBits sets the number of serial stop bits, 1 or 2.
func WithStopBits(bits int) Option {
	return optFunc(func(cfg *config) error {
		switch bits {
		case 1:
			cfg.stopBits = serial.Stop1
		case 2:
			cfg.stopBits = serial.Stop2
		default:
			return fmt.Errorf("stream: invalid stop bits %d", bits)
		}

		return nil
	})
}

// WithDialTimeout sets the TCP connect timeout.
func WithDialTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return fmt.Errorf("stream: invalid dial timeout %s", d)
		}
		cfg.dialTimeout = d

		return nil
	})
}

// WithReadChunkSize sets the size of each read issued by the background reader.
func WithReadChunkSize(n int) Option {
	return optFunc(func(cfg *config) error {
		if n <= 0 || n > MaxReadChunkSize {
			return fmt.Errorf("stream: read chunk size %d out of range [1, %d]", n, MaxReadChunkSize)
		}
		cfg.readChunkSize = n

		return nil
	})
}

// WithLogger sets the logger used by the stream.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}
