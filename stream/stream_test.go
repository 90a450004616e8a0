package stream

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeStream(t *testing.T) (*Stream, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	s, err := New(local)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
		_ = remote.Close()
	})

	return s, remote
}

func remoteWrite(t *testing.T, conn net.Conn, data []byte) {
	t.Helper()

	go func() {
		_, _ = conn.Write(data)
	}()
}

func TestStream_ReadFromBuffer(t *testing.T) {
	s, remote := newPipeStream(t)

	remoteWrite(t, remote, []byte{0xAA, 0xBB, 0xCC})

	got, info, err := s.ReadFromBuffer(2, 2, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, got)
	assert.True(t, info.Matched)
	assert.False(t, info.Timeout)
	assert.Equal(t, 2, info.BytesRead)

	got, info, err = s.ReadFromBuffer(1, 8, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCC}, got)
	assert.Equal(t, 3, info.TotalBytesRead)
}

func TestStream_ReadFromBuffer_Timeout(t *testing.T) {
	s, remote := newPipeStream(t)

	remoteWrite(t, remote, []byte{0xAA})
	require.Eventually(t, func() bool { return s.Buffered() == 1 }, time.Second, time.Millisecond)

	begin := time.Now()
	got, info, err := s.ReadFromBuffer(2, 2, 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, info.Timeout)
	assert.False(t, info.Matched)
	assert.Equal(t, []byte{0xAA}, got)
	assert.GreaterOrEqual(t, time.Since(begin), 40*time.Millisecond)
}

func TestStream_FindInBuffer(t *testing.T) {
	s, remote := newPipeStream(t)

	remoteWrite(t, remote, []byte("noise<msg>payload</msg>tail"))
	require.Eventually(t, func() bool { return s.Buffered() == 27 }, time.Second, time.Millisecond)

	info, skipped, err := s.FindInBuffer([]byte("<msg>"), -1, true, time.Second)
	require.NoError(t, err)
	assert.True(t, info.Matched)
	assert.Equal(t, []byte("noise"), skipped)
	assert.Equal(t, 5, info.BytesSkipped)

	info, skipped, err = s.FindInBuffer([]byte("</msg>"), 64, false, time.Second)
	require.NoError(t, err)
	assert.True(t, info.Matched)
	assert.Equal(t, []byte("payload"), skipped)

	got, _, err := s.ReadFromBuffer(6, 6, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("</msg>"), got)
}

func TestStream_FindInBuffer_MaxSkip(t *testing.T) {
	s, remote := newPipeStream(t)

	remoteWrite(t, remote, []byte{0x01, 0x02, 0x03, 0x7E})
	require.Eventually(t, func() bool { return s.Buffered() == 4 }, time.Second, time.Millisecond)

	info, skipped, err := s.FindInBuffer([]byte{0x7E}, 2, true, time.Second)
	require.NoError(t, err)
	assert.False(t, info.Matched)
	assert.False(t, info.Timeout)
	assert.Nil(t, skipped)
	assert.Equal(t, 4, s.Buffered())

	info, _, err = s.FindInBuffer([]byte{0x7E}, 3, true, time.Second)
	require.NoError(t, err)
	assert.True(t, info.Matched)
	assert.Equal(t, 0, s.Buffered())
}

func TestStream_FindInBuffer_Timeout(t *testing.T) {
	s, _ := newPipeStream(t)

	info, _, err := s.FindInBuffer([]byte{0x7E}, -1, true, 30*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, info.Timeout)
	assert.False(t, info.Matched)
}

func TestStream_PurgeAndWrite(t *testing.T) {
	s, remote := newPipeStream(t)

	remoteWrite(t, remote, []byte{1, 2, 3})
	require.Eventually(t, func() bool { return s.Buffered() == 3 }, time.Second, time.Millisecond)
	s.PurgeStreamBuffers()
	assert.Equal(t, 0, s.Buffered())
	assert.Equal(t, 3, s.TotalBytesRead())

	recv := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 2)
		n, _ := remote.Read(buf)
		recv <- buf[:n]
	}()
	require.NoError(t, s.Write([]byte{0x10, 0x20}))
	assert.Equal(t, []byte{0x10, 0x20}, <-recv)
}

func TestStream_Closed(t *testing.T) {
	s, remote := newPipeStream(t)
	require.NoError(t, remote.Close())

	_, _, err := s.ReadFromBuffer(1, 1, time.Second)
	require.ErrorIs(t, err, ErrClosed)

	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Write([]byte{1}), ErrClosed)
}

// pipeDialer dials net.Pipe links and hands every remote end to peers.
func pipeDialer(peers chan<- net.Conn) DialFunc {
	return func(context.Context) (io.ReadWriteCloser, error) {
		local, remote := net.Pipe()
		peers <- remote

		return local, nil
	}
}

func TestStream_ReopenAfterPeerClosed(t *testing.T) {
	peers := make(chan net.Conn, 2)
	s, err := Dial(context.Background(), pipeDialer(peers))
	require.NoError(t, err)
	defer s.Close()

	first := <-peers
	require.NoError(t, first.Close())

	for range 3 {
		_, _, err = s.ReadFromBuffer(1, 1, 100*time.Millisecond)
		require.ErrorIs(t, err, ErrClosed)
		assert.True(t, IsLinkError(err))
	}
	require.True(t, IsLinkError(s.Write([]byte{1})))
	assert.True(t, s.Broken())

	require.NoError(t, s.Reopen(context.Background()))
	assert.False(t, s.Broken())

	second := <-peers
	defer second.Close()

	remoteWrite(t, second, []byte{0x42})
	got, info, err := s.ReadFromBuffer(1, 1, time.Second)
	require.NoError(t, err)
	assert.True(t, info.Matched)
	assert.Equal(t, []byte{0x42}, got)

	recv := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 1)
		n, _ := second.Read(buf)
		recv <- buf[:n]
	}()
	require.NoError(t, s.Write([]byte{0x10}))
	assert.Equal(t, []byte{0x10}, <-recv)
}

func TestStream_ReopenErrors(t *testing.T) {
	s, _ := newPipeStream(t)
	require.ErrorIs(t, s.Reopen(context.Background()), ErrNotReopenable)

	peers := make(chan net.Conn, 2)
	d, err := Dial(context.Background(), pipeDialer(peers))
	require.NoError(t, err)
	defer (<-peers).Close()
	require.NoError(t, d.Close())
	require.ErrorIs(t, d.Reopen(context.Background()), ErrClosed)
	assert.False(t, d.Broken())

	failing := errors.New("port busy")
	calls := 0
	_, err = Dial(context.Background(), func(context.Context) (io.ReadWriteCloser, error) {
		calls++
		return nil, failing
	})
	require.ErrorIs(t, err, failing)
	assert.Equal(t, 1, calls)
}

func TestOpen_TCPReopen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 2)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()

	s, err := Open(context.Background(), "socket://"+ln.Addr().String(), WithDialTimeout(time.Second))
	require.NoError(t, err)
	defer s.Close()

	first := <-accepted
	require.NoError(t, first.Close())
	require.Eventually(t, s.Broken, time.Second, time.Millisecond)

	require.NoError(t, s.Reopen(context.Background()))
	second := <-accepted
	defer second.Close()

	_, err = second.Write([]byte{0x42})
	require.NoError(t, err)
	got, _, err := s.ReadFromBuffer(1, 1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x42}, got)
}

func TestOpen_TCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	s, err := Open(context.Background(), "socket://"+ln.Addr().String(), WithDialTimeout(time.Second))
	require.NoError(t, err)
	defer s.Close()

	peer := <-accepted
	defer peer.Close()

	_, err = peer.Write([]byte{0x42})
	require.NoError(t, err)

	got, info, err := s.ReadFromBuffer(1, 1, time.Second)
	require.NoError(t, err)
	assert.True(t, info.Matched)
	assert.Equal(t, []byte{0x42}, got)
}

func TestOptions_Validation(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	_, err := New(local, WithReadChunkSize(0))
	require.Error(t, err)
	_, err = New(local, WithParity("X"))
	require.Error(t, err)
	_, err = New(local, WithStopBits(3))
	require.Error(t, err)
	_, err = New(local, WithBaudRate(-1))
	require.Error(t, err)
}
