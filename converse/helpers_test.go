package converse

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-converse/logger"
	"github.com/arloliu/go-converse/stream"
	"github.com/stretchr/testify/require"
)

// scriptedStream is a DeviceStream whose input is fed by the test. Reads never
// block; missing input is reported as a timeout.
type scriptedStream struct {
	mu       sync.Mutex
	rx       []byte
	tx       [][]byte
	total    int
	purges   int
	writeErr error
	// onWrite, when set, is called with each written frame and may queue a reply.
	onWrite func(s *scriptedStream, p []byte)
}

var _ stream.DeviceStream = (*scriptedStream)(nil)

func (s *scriptedStream) feed(b ...byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedLocked(b)
}

func (s *scriptedStream) feedLocked(b []byte) {
	s.rx = append(s.rx, b...)
	s.total += len(b)
}

func (s *scriptedStream) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}
	s.tx = append(s.tx, bytes.Clone(p))
	if s.onWrite != nil {
		s.onWrite(s, p)
	}

	return nil
}

func (s *scriptedStream) ReadFromBuffer(minLen, maxLen int, _ time.Duration) ([]byte, stream.MatchInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rx) < minLen {
		out := s.rx
		s.rx = nil
		return out, stream.MatchInfo{Timeout: true, BytesRead: len(out), TotalBytesRead: s.total}, nil
	}

	n := min(len(s.rx), maxLen)
	out := bytes.Clone(s.rx[:n])
	s.rx = s.rx[n:]

	return out, stream.MatchInfo{Matched: true, BytesRead: n, TotalBytesRead: s.total}, nil
}

func (s *scriptedStream) FindInBuffer(pattern []byte, maxSkip int, consume bool, _ time.Duration) (stream.MatchInfo, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := bytes.Index(s.rx, pattern)
	if idx < 0 {
		return stream.MatchInfo{Timeout: true, TotalBytesRead: s.total}, nil, nil
	}
	if maxSkip >= 0 && idx > maxSkip {
		return stream.MatchInfo{TotalBytesRead: s.total}, nil, nil
	}

	skipped := bytes.Clone(s.rx[:idx])
	s.rx = s.rx[idx:]
	read := idx
	if consume {
		s.rx = s.rx[len(pattern):]
		read += len(pattern)
	}

	return stream.MatchInfo{Matched: true, BytesRead: read, BytesSkipped: idx, TotalBytesRead: s.total}, skipped, nil
}

func (s *scriptedStream) PurgeStreamBuffers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx = nil
	s.purges++
}

func (s *scriptedStream) written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tx
}

func (s *scriptedStream) pending() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return bytes.Clone(s.rx)
}

func quietLogger() logger.Logger {
	return logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false)
}

// newTestConverse returns a session with no send gap bound to a scripted stream.
func newTestConverse(t *testing.T, opts ...Option) (*Converse, *scriptedStream) {
	t.Helper()

	opts = append([]Option{WithSendGap(0), WithLogger(quietLogger())}, opts...)
	c, err := New(opts...)
	require.NoError(t, err)

	s := &scriptedStream{}
	c.SetDeviceStream(s)

	return c, s
}

func setVar(t *testing.T, c *Converse, name, conv string, b ...byte) {
	t.Helper()

	v, err := c.SessionVariable(name, conv)
	require.NoError(t, err)
	require.NoError(t, v.SetBytes(b, 0, len(b)))
}

func varBytes(t *testing.T, c *Converse, name, conv string) []byte {
	t.Helper()

	v, err := c.SessionVariable(name, conv)
	require.NoError(t, err)

	return v.Bytes()
}
