package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-converse/internal/pool"
	"github.com/arloliu/go-converse/internal/util"
	"github.com/arloliu/go-converse/logger"
	"github.com/tarm/serial"
)

var (
	// ErrClosed is returned when the stream has been closed or the peer went away.
	ErrClosed = errors.New("stream: closed")
	// ErrWrite is returned when bytes could not be written to the device.
	ErrWrite = errors.New("stream: write failed")
	// ErrNotReopenable is returned by Reopen on a stream created by New.
	ErrNotReopenable = errors.New("stream: link cannot be reopened")
)

// IsLinkError reports whether err means the underlying link is gone, as
// opposed to a timeout or a protocol mismatch.
func IsLinkError(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, ErrWrite)
}

// DialFunc establishes the underlying link of a stream.
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// Reopener is implemented by streams that can re-establish a dropped link.
type Reopener interface {
	Reopen(ctx context.Context) error
}

// MatchInfo describes the outcome of a buffered read or search.
type MatchInfo struct {
	Matched        bool
	Timeout        bool
	BytesRead      int
	BytesSkipped   int
	TotalBytesRead int
}

// DeviceStream is the transport consumed by protocol conversations.
type DeviceStream interface {
	// Write sends all of p to the device.
	Write(p []byte) error
	// ReadFromBuffer waits until at least minLen bytes are buffered and returns up
	// to maxLen of them. A timeout <= 0 waits without deadline.
	ReadFromBuffer(minLen, maxLen int, timeout time.Duration) ([]byte, MatchInfo, error)
	// FindInBuffer searches for pattern, discarding at most maxSkip leading bytes
	// (maxSkip < 0 means unlimited). The skipped bytes are returned. When consume is
	// set the pattern itself is removed from the buffer as well.
	FindInBuffer(pattern []byte, maxSkip int, consume bool, timeout time.Duration) (MatchInfo, []byte, error)
	// PurgeStreamBuffers discards all buffered input.
	PurgeStreamBuffers()
}

type flusher interface {
	Flush() error
}

// Stream is a DeviceStream over any io.ReadWriteCloser.
type Stream struct {
	cfg    *config
	dial   DialFunc
	logger logger.Logger

	// eofIsIdle treats io.EOF as "no data within the read timeout", which is how
	// serial ports configured with a read timeout report silence.
	eofIsIdle bool

	// reopenMu serialises Reopen and Close.
	reopenMu sync.Mutex

	mu      sync.Mutex
	rwc     io.ReadWriteCloser
	buf     []byte
	changed chan struct{}
	total   int
	readErr error

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

var (
	_ DeviceStream = (*Stream)(nil)
	_ Reopener     = (*Stream)(nil)
)

// New wraps rwc and starts the background reader.
func New(rwc io.ReadWriteCloser, opts ...Option) (*Stream, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return newStream(rwc, nil, cfg, false), nil
}

// Dial opens a link with dial and keeps dial for Reopen.
func Dial(ctx context.Context, dial DialFunc, opts ...Option) (*Stream, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return dialStream(ctx, dial, cfg, false)
}

func dialStream(ctx context.Context, dial DialFunc, cfg *config, eofIsIdle bool) (*Stream, error) {
	rwc, err := dial(ctx)
	if err != nil {
		return nil, err
	}

	return newStream(rwc, dial, cfg, eofIsIdle), nil
}

func newStream(rwc io.ReadWriteCloser, dial DialFunc, cfg *config, eofIsIdle bool) *Stream {
	s := &Stream{
		rwc:       rwc,
		dial:      dial,
		cfg:       cfg,
		logger:    cfg.logger,
		eofIsIdle: eofIsIdle,
		changed:   make(chan struct{}),
		closed:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.readLoop(rwc)

	return s
}

// Open opens a TCP or serial link.
func Open(ctx context.Context, link string, opts ...Option) (*Stream, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	for _, prefix := range []string{"socket://", "tcp://"} {
		if addr, ok := strings.CutPrefix(link, prefix); ok {
			return dialStream(ctx, tcpDialer(addr, cfg), cfg, false)
		}
	}

	return dialStream(ctx, serialDialer(link, cfg), cfg, true)
}

func tcpDialer(addr string, cfg *config) DialFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		dialer := net.Dialer{Timeout: cfg.dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("stream: dial %s: %w", addr, err)
		}
		cfg.logger.Debug("stream: tcp link opened", "address", addr)

		return conn, nil
	}
}

func serialDialer(link string, cfg *config) DialFunc {
	return func(context.Context) (io.ReadWriteCloser, error) {
		port, err := serial.OpenPort(&serial.Config{
			Name:        link,
			Baud:        cfg.baudRate,
			ReadTimeout: cfg.serialReadTimeout,
			Size:        8,
			Parity:      cfg.parity,
			StopBits:    cfg.stopBits,
		})
		if err != nil {
			return nil, fmt.Errorf("stream: open serial %s: %w", link, err)
		}
		cfg.logger.Debug("stream: serial link opened", "port", link, "baud", cfg.baudRate)

		return port, nil
	}
}

// Close stops the background reader and closes the underlying link.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)

		s.reopenMu.Lock()
		defer s.reopenMu.Unlock()

		err = s.link().Close()
		s.wg.Wait()
	})

	return err
}

// Reopen replaces the link with a freshly dialed one, using the link and
// options given to Open or Dial. Buffered input is discarded. A stream
// closed by Close stays closed.
func (s *Stream) Reopen(ctx context.Context) error {
	if s.dial == nil {
		return ErrNotReopenable
	}

	s.reopenMu.Lock()
	defer s.reopenMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}

	// stop the current reader before swapping links
	_ = s.link().Close()
	s.wg.Wait()

	rwc, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.rwc = rwc
	s.buf = nil
	s.readErr = nil
	s.signalLocked()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(rwc)
	s.logger.Info("stream: link reopened")

	return nil
}

// Broken reports whether the link failed and the stream was not closed by Close.
func (s *Stream) Broken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readErr != nil && !s.isClosed()
}

func (s *Stream) link() io.ReadWriteCloser {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rwc
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Stream) readLoop(rwc io.ReadWriteCloser) {
	defer s.wg.Done()

	chunk := make([]byte, s.cfg.readChunkSize)
	for {
		n, err := rwc.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf = append(s.buf, chunk[:n]...)
			s.total += n
			s.signalLocked()
			s.mu.Unlock()
		}

		if err == nil || (s.eofIsIdle && errors.Is(err, io.EOF) && !s.isClosed()) {
			continue
		}

		if !s.isClosed() {
			s.logger.Debug("stream: reader stopped", "error", err)
		}

		s.mu.Lock()
		s.readErr = fmt.Errorf("%w: %w", ErrClosed, err)
		s.signalLocked()
		s.mu.Unlock()

		return
	}
}

// signalLocked wakes every waiter; s.mu must be held.
func (s *Stream) signalLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Write sends all bytes of p.
func (s *Stream) Write(p []byte) error {
	s.mu.Lock()
	rwc, err := s.rwc, s.errLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for written := 0; written < len(p); {
		n, err := rwc.Write(p[written:])
		written += n
		if err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}
	s.logger.Debug("stream: sent", "bytes", util.HexDump(p))

	return nil
}

// ReadFromBuffer waits for minLen buffered bytes and consumes up to maxLen.
// On timeout the bytes that did arrive are consumed and returned with
// MatchInfo.Timeout set.
func (s *Stream) ReadFromBuffer(minLen, maxLen int, timeout time.Duration) ([]byte, MatchInfo, error) {
	if maxLen < minLen {
		maxLen = minLen
	}

	deadline := pool.NewDeadline(timeout)
	defer deadline.Release()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if len(s.buf) >= minLen {
			out := s.takeLocked(min(len(s.buf), maxLen))
			return out, MatchInfo{Matched: true, BytesRead: len(out), TotalBytesRead: s.total}, nil
		}

		if err := s.errLocked(); err != nil {
			out := s.takeLocked(len(s.buf))
			return out, MatchInfo{BytesRead: len(out), TotalBytesRead: s.total}, err
		}

		if !s.waitLocked(deadline) {
			out := s.takeLocked(len(s.buf))
			return out, MatchInfo{Timeout: true, BytesRead: len(out), TotalBytesRead: s.total}, nil
		}
	}
}

// FindInBuffer searches the buffered input for pattern.
//
// The bytes preceding the match are removed and returned. A match starting more
// than maxSkip bytes in is a mismatch and leaves the buffer untouched, as does a
// timeout.
func (s *Stream) FindInBuffer(pattern []byte, maxSkip int, consume bool, timeout time.Duration) (MatchInfo, []byte, error) {
	deadline := pool.NewDeadline(timeout)
	defer deadline.Release()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		idx := bytes.Index(s.buf, pattern)
		if idx >= 0 {
			if maxSkip >= 0 && idx > maxSkip {
				return MatchInfo{TotalBytesRead: s.total}, nil, nil
			}

			skipped := s.takeLocked(idx)
			read := idx
			if consume {
				s.takeLocked(len(pattern))
				read += len(pattern)
			}

			return MatchInfo{Matched: true, BytesRead: read, BytesSkipped: idx, TotalBytesRead: s.total}, skipped, nil
		}

		// no match can start within the permitted window any more
		if maxSkip >= 0 && len(s.buf)-len(pattern)+1 > maxSkip {
			return MatchInfo{TotalBytesRead: s.total}, nil, nil
		}

		if err := s.errLocked(); err != nil {
			return MatchInfo{TotalBytesRead: s.total}, nil, err
		}

		if !s.waitLocked(deadline) {
			return MatchInfo{Timeout: true, TotalBytesRead: s.total}, nil, nil
		}
	}
}

// PurgeStreamBuffers discards buffered input and flushes the link if it supports it.
func (s *Stream) PurgeStreamBuffers() {
	if f, ok := s.link().(flusher); ok {
		if err := f.Flush(); err != nil {
			s.logger.Debug("stream: flush failed", "error", err)
		}
	}

	s.mu.Lock()
	if len(s.buf) > 0 {
		s.logger.Debug("stream: purged", "bytes", util.HexDump(s.buf))
	}
	s.buf = nil
	s.mu.Unlock()
}

// TotalBytesRead returns the lifetime count of received bytes.
func (s *Stream) TotalBytesRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.total
}

// Buffered returns the number of bytes waiting to be consumed.
func (s *Stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.buf)
}

// takeLocked removes and returns the first n buffered bytes; s.mu must be held.
func (s *Stream) takeLocked(n int) []byte {
	out := util.CloneSlice(s.buf[:n], 0)
	s.buf = s.buf[n:]
	if len(s.buf) == 0 {
		s.buf = nil
	}

	return out
}

// errLocked returns the terminal reader error, if any; s.mu must be held.
func (s *Stream) errLocked() error {
	if s.readErr != nil {
		return s.readErr
	}
	if s.isClosed() {
		return ErrClosed
	}

	return nil
}

// waitLocked releases s.mu until new data arrives, the stream closes or the
// deadline expires. It reports false on expiry.
func (s *Stream) waitLocked(deadline pool.Deadline) bool {
	if deadline.Expired() {
		return false
	}

	changed := s.changed
	s.mu.Unlock()
	defer s.mu.Lock()

	select {
	case <-changed:
		return true
	case <-s.closed:
		return true
	case <-deadline.C():
		return false
	}
}
