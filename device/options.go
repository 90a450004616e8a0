package device

import (
	"errors"
	"time"

	"github.com/arloliu/go-converse/logger"
)

const (
	// DefaultRetryCount is the number of extra attempts after a timed out conversation.
	DefaultRetryCount = 2
	// MaxRetryCount bounds WithRetryCount.
	MaxRetryCount = 20
	// DefaultPollInterval is the default time between poll cycles of one device.
	DefaultPollInterval = 30 * time.Second
	// MinPollInterval bounds WithPollInterval.
	MinPollInterval = 100 * time.Millisecond
)

// Option configures an Algorithm.
type Option interface {
	apply(*Algorithm) error
}

type optFunc func(*Algorithm) error

func (f optFunc) apply(a *Algorithm) error { return f(a) }

// WithRetryCount sets how many additional attempts follow a timed out
// conversation, between 0 and MaxRetryCount.
func WithRetryCount(n int) Option {
	return optFunc(func(a *Algorithm) error {
		if n < 0 || n > MaxRetryCount {
			return errors.New("device: retry count out of range")
		}
		a.retryCount = n

		return nil
	})
}

// WithLogger sets the logger of the Algorithm.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(a *Algorithm) error {
		if l == nil {
			return errors.New("device: nil logger")
		}
		a.logger = l

		return nil
	})
}

// WithName sets the device name reported in snapshots and log entries.
func WithName(name string) Option {
	return optFunc(func(a *Algorithm) error {
		if name == "" {
			return errors.New("device: empty name")
		}
		a.name = name

		return nil
	})
}

// WithBlocks adds blocks at construction time.
func WithBlocks(blocks ...*Block) Option {
	return optFunc(func(a *Algorithm) error {
		for _, b := range blocks {
			if err := a.addBlock(b); err != nil {
				return err
			}
		}

		return nil
	})
}

// PollerOption configures a Poller.
type PollerOption interface {
	applyPoller(*Poller) error
}

type pollerOptFunc func(*Poller) error

func (f pollerOptFunc) applyPoller(p *Poller) error { return f(p) }

// WithPollInterval sets the time between poll cycles of one device.
func WithPollInterval(d time.Duration) PollerOption {
	return pollerOptFunc(func(p *Poller) error {
		if d < MinPollInterval {
			return errors.New("device: poll interval too short")
		}
		p.interval = d

		return nil
	})
}

// WithPollerLogger sets the logger of the Poller.
func WithPollerLogger(l logger.Logger) PollerOption {
	return pollerOptFunc(func(p *Poller) error {
		if l == nil {
			return errors.New("device: nil logger")
		}
		p.logger = l

		return nil
	})
}

// WithSnapshotHandler registers a function called after every successful block read.
func WithSnapshotHandler(fn func(*Snapshot)) PollerOption {
	return pollerOptFunc(func(p *Poller) error {
		p.onSnapshot = fn
		return nil
	})
}
