// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package pipebuf

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sockFD(tb testing.TB, c net.Conn) int {
	tb.Helper()
	raw, err := c.(*net.TCPConn).SyscallConn()
	require.NoError(tb, err)
	var fd int
	require.NoError(tb, raw.Control(func(f uintptr) { fd = int(f) }))
	return fd
}

// tcpPair returns the two ends of a loopback TCP connection.
func tcpPair(tb testing.TB) (*net.TCPConn, *net.TCPConn) {
	tb.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(tb, err)
	defer ln.Close()

	type result struct {
		c   net.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := ln.Accept()
		ch <- result{c, err}
	}()
	dialed, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(tb, err)
	r := <-ch
	require.NoError(tb, r.err)
	tb.Cleanup(func() {
		_ = dialed.Close()
		_ = r.c.Close()
	})
	return dialed.(*net.TCPConn), r.c.(*net.TCPConn)
}

func TestProbeSize(t *testing.T) {
	size, err := ProbeSize()
	require.NoError(t, err)
	assert.Greater(t, size, 0)
}

func TestSpliceRoundTrip(t *testing.T) {
	size, err := ProbeSize()
	require.NoError(t, err)
	buf, err := New(size)
	require.NoError(t, err)
	defer buf.Close()

	src, srcPeer := tcpPair(t)
	dstPeer, dst := tcpPair(t)

	payload := []byte("hello splice")
	_, err = src.Write(payload)
	require.NoError(t, err)

	srcFD := sockFD(t, srcPeer)
	deadline := time.Now().Add(2 * time.Second)
	for buf.Buffered() < len(payload) {
		require.False(t, time.Now().After(deadline), "payload never reached the staging pipe")
		eof, err := buf.SpliceIn(srcFD)
		require.NoError(t, err)
		require.False(t, eof)
		assert.GreaterOrEqual(t, buf.Buffered(), 0)
		assert.LessOrEqual(t, buf.Buffered(), buf.Cap())
		time.Sleep(time.Millisecond)
	}

	require.NoError(t, buf.SpliceOut(sockFD(t, dstPeer)))
	require.True(t, buf.IsEmpty())

	got := make([]byte, len(payload))
	require.NoError(t, dst.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(dst, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSpliceInReportsEOF(t *testing.T) {
	size, err := ProbeSize()
	require.NoError(t, err)
	buf, err := New(size)
	require.NoError(t, err)
	defer buf.Close()

	src, srcPeer := tcpPair(t)
	require.NoError(t, src.CloseWrite())

	srcFD := sockFD(t, srcPeer)
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.False(t, time.Now().After(deadline), "half-close never observed")
		eof, err := buf.SpliceIn(srcFD)
		require.NoError(t, err)
		if eof {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.True(t, buf.IsEmpty())
}

func TestSpliceInRespectsCapacity(t *testing.T) {
	const capacity = 4096
	buf, err := New(capacity)
	require.NoError(t, err)
	defer buf.Close()

	src, srcPeer := tcpPair(t)
	dstPeer, dst := tcpPair(t)

	big := make([]byte, 16*1024)
	for i := range big {
		big[i] = byte(i)
	}
	_, err = src.Write(big)
	require.NoError(t, err)

	srcFD := sockFD(t, srcPeer)
	deadline := time.Now().Add(2 * time.Second)
	for buf.Buffered() < capacity {
		require.False(t, time.Now().After(deadline), "staging pipe never filled")
		_, err := buf.SpliceIn(srcFD)
		require.NoError(t, err)
		require.LessOrEqual(t, buf.Buffered(), capacity)
		time.Sleep(time.Millisecond)
	}

	// A full buffer takes nothing more.
	_, err = buf.SpliceIn(srcFD)
	require.NoError(t, err)
	assert.Equal(t, capacity, buf.Buffered())

	require.NoError(t, buf.SpliceOut(sockFD(t, dstPeer)))
	got := make([]byte, capacity)
	require.NoError(t, dst.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(dst, got)
	require.NoError(t, err)
	assert.Equal(t, big[:capacity], got)
}

func TestCloseIdempotent(t *testing.T) {
	buf, err := New(4096)
	require.NoError(t, err)
	require.NoError(t, buf.Close())
	require.NoError(t, buf.Close())
}
