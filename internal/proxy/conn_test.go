// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/vizee/tcpproxy/internal/netpoll"
	"github.com/vizee/tcpproxy/pkg/errors"
)

func TestTransferOnClosedConn(t *testing.T) {
	c := &conn{closed: true}
	require.ErrorIs(t, c.transferClientToBackend(), errors.ErrConnClosed)
	require.ErrorIs(t, c.transferBackendToClient(), errors.ErrConnClosed)
}

func TestTerminateIdempotent(t *testing.T) {
	poller, err := netpoll.OpenPoller()
	require.NoError(t, err)
	defer poller.Close()
	arena := newConnArena()

	clientPair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	defer unix.Close(clientPair[1])
	backendPair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	defer unix.Close(backendPair[1])

	c, err := newConn(clientPair[0], backendPair[0], 4096)
	require.NoError(t, err)
	c.handle = arena.alloc(c)
	require.NoError(t, poller.AddReadWrite(c.clientFD, c.handle.token(clientSide)))
	require.NoError(t, poller.AddReadWrite(c.backendFD, c.handle.token(backendSide)))
	require.Equal(t, 1, arena.live())

	c.terminate(poller, arena)
	assert.True(t, c.closed)
	assert.Zero(t, arena.live())
	assert.Nil(t, arena.lookup(c.handle))

	// Repeat calls are no-ops: no double deregistration, no double close.
	c.terminate(poller, arena)
	c.terminate(poller, arena)
	assert.Zero(t, arena.live())

	require.ErrorIs(t, c.transferClientToBackend(), errors.ErrConnClosed)
}
