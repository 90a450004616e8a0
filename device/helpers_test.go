package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-converse/converse"
	"github.com/arloliu/go-converse/logger"
	"github.com/arloliu/go-converse/register"
	"github.com/arloliu/go-converse/stream"
)

// replyStream answers each write with the next queued reply. Reads never
// block; missing input is reported as a timeout.
type replyStream struct {
	mu      sync.Mutex
	replies [][]byte
	rx      []byte
	tx      [][]byte
}

var _ stream.DeviceStream = (*replyStream)(nil)

func (s *replyStream) queue(replies ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

func (s *replyStream) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tx = append(s.tx, bytes.Clone(p))
	if len(s.replies) > 0 {
		s.rx = append(s.rx, s.replies[0]...)
		s.replies = s.replies[1:]
	}

	return nil
}

func (s *replyStream) ReadFromBuffer(minLen, maxLen int, _ time.Duration) ([]byte, stream.MatchInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rx) < minLen {
		out := s.rx
		s.rx = nil
		return out, stream.MatchInfo{Timeout: true, BytesRead: len(out)}, nil
	}

	n := min(len(s.rx), maxLen)
	out := bytes.Clone(s.rx[:n])
	s.rx = s.rx[n:]

	return out, stream.MatchInfo{Matched: true, BytesRead: n}, nil
}

func (s *replyStream) FindInBuffer(pattern []byte, _ int, consume bool, _ time.Duration) (stream.MatchInfo, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := bytes.Index(s.rx, pattern)
	if idx < 0 {
		return stream.MatchInfo{Timeout: true}, nil, nil
	}
	skipped := bytes.Clone(s.rx[:idx])
	s.rx = s.rx[idx:]
	if consume {
		s.rx = s.rx[len(pattern):]
	}

	return stream.MatchInfo{Matched: true, BytesSkipped: idx}, skipped, nil
}

func (s *replyStream) PurgeStreamBuffers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx = nil
}

func (s *replyStream) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tx)
}

func (s *replyStream) lastWrite() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tx) == 0 {
		return nil
	}

	return s.tx[len(s.tx)-1]
}

func quietLogger() logger.Logger {
	return logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false)
}

// newInverter builds a session with a 6-byte data block:
//
//	[0:3] power    uint16_exp
//	[3]   state    byte, error flagged
//	[4:6] code     uint16
func newInverter(t *testing.T, opts ...Option) (*Algorithm, *replyStream) {
	t.Helper()

	c, err := converse.New(converse.WithSendGap(0), converse.WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = c.AddConversation("ReadData", "S 52 $ADDR(BYTE[1])", "R 06 $DATA(BYTE[6])")
	require.NoError(t, err)
	_, err = c.AddConversation("WriteData", "S 57 $ADDR $DATA", "R 06")
	require.NoError(t, err)

	addr, err := c.SessionVariable("ADDR", "")
	require.NoError(t, err)
	require.NoError(t, addr.SetBytes([]byte{0x01}, 0, 1))

	s := &replyStream{}
	c.SetDeviceStream(s)

	power, err := register.NewNumber(register.Spec{
		Name:       "power",
		Addressing: register.MappedToRegisterData{Offset: 0},
	}, register.TypeUint16Exp, register.WithLogger(quietLogger()))
	require.NoError(t, err)

	state, err := register.NewNumber(register.Spec{
		Name:       "state",
		Addressing: register.MappedToRegisterData{Offset: 3},
		Flags:      register.ErrorFlag,
		Values: register.ValueList{
			{Name: "running", Tag: "OK", Value: register.NumberValue(0)},
			{Name: "grid fault", Tag: "Error", Value: register.NumberValue(5)},
		},
	}, register.TypeByte, register.WithLogger(quietLogger()))
	require.NoError(t, err)

	code, err := register.NewNumber(register.Spec{
		Name:       "code",
		Addressing: register.MappedToRegisterData{Offset: 4},
	}, register.TypeUint16, register.WithLogger(quietLogger()))
	require.NoError(t, err)

	opts = append([]Option{
		WithName("inv1"),
		WithLogger(quietLogger()),
		WithBlocks(&Block{
			Name:              "main",
			ReadConversation:  "ReadData",
			WriteConversation: "WriteData",
			DataVariable:      "DATA",
			Registers:         []register.Register{power, state, code},
		}),
	}, opts...)
	a, err := NewAlgorithm(c, opts...)
	require.NoError(t, err)

	return a, s
}

// reply builds a positive answer carrying data.
func reply(data ...byte) []byte {
	return append([]byte{0x06}, data...)
}

// linkStream is a replyStream whose link can drop. Writes fail while the
// link is down until Reopen succeeds.
type linkStream struct {
	*replyStream

	mu        sync.Mutex
	down      bool
	reopens   int
	reopenErr error
}

var _ stream.Reopener = (*linkStream)(nil)

func (s *linkStream) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = true
}

func (s *linkStream) Write(p []byte) error {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return fmt.Errorf("%w: %w", stream.ErrWrite, io.ErrClosedPipe)
	}

	return s.replyStream.Write(p)
}

func (s *linkStream) Reopen(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reopens++
	if s.reopenErr != nil {
		return s.reopenErr
	}
	s.down = false

	return nil
}

func (s *linkStream) reopenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reopens
}

// downStream is a link that is gone for good.
type downStream struct{ replyStream }

func (*downStream) Write([]byte) error { return stream.ErrClosed }
