// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package proxy

import (
	"golang.org/x/sys/unix"

	"github.com/vizee/tcpproxy/internal/netpoll"
	"github.com/vizee/tcpproxy/internal/pipebuf"
	"github.com/vizee/tcpproxy/pkg/errors"
	"github.com/vizee/tcpproxy/pkg/logging"
)

// conn is one proxied session: the client socket, the backend socket, and a
// kernel staging buffer per direction. It is owned jointly by its two poll
// registrations and only ever touched from the event loop goroutine.
type conn struct {
	clientFD  int
	backendFD int
	inbound   *pipebuf.Buffer // client -> backend
	outbound  *pipebuf.Buffer // backend -> client
	handle    connHandle
	closed    bool
	doomed    bool // went terminal this batch, teardown pending
}

func newConn(clientFD, backendFD, pipeSize int) (*conn, error) {
	inbound, err := pipebuf.New(pipeSize)
	if err != nil {
		return nil, err
	}
	outbound, err := pipebuf.New(pipeSize)
	if err != nil {
		_ = inbound.Close()
		return nil, err
	}
	return &conn{
		clientFD:  clientFD,
		backendFD: backendFD,
		inbound:   inbound,
		outbound:  outbound,
	}, nil
}

// transfer runs one drain step over buf: source into the pipe, pipe out to
// the destination. ErrStreamComplete reports the terminal condition, which
// is the source at end-of-stream with nothing left staged.
func transfer(buf *pipebuf.Buffer, srcFD, dstFD int) error {
	eof, err := buf.SpliceIn(srcFD)
	if err != nil {
		return err
	}
	if !buf.IsEmpty() {
		if err := buf.SpliceOut(dstFD); err != nil {
			return err
		}
	}
	if eof && buf.IsEmpty() {
		return errors.ErrStreamComplete
	}
	return nil
}

func (c *conn) transferClientToBackend() error {
	if c.closed {
		return errors.ErrConnClosed
	}
	return transfer(c.inbound, c.clientFD, c.backendFD)
}

func (c *conn) transferBackendToClient() error {
	if c.closed {
		return errors.ErrConnClosed
	}
	return transfer(c.outbound, c.backendFD, c.clientFD)
}

// terminate tears the whole session down: deregister both sockets, release
// both poll registrations, then close the sockets and the staging pipes.
// Idempotent. The order matters: a socket must never be closed while still
// registered with the poller.
func (c *conn) terminate(p *netpoll.Poller, arena *connArena) {
	if c.closed {
		return
	}
	c.closed = true
	if err := p.Delete(c.clientFD); err != nil {
		logging.Fatalf("deregister client fd %d: %v", c.clientFD, err)
	}
	if err := p.Delete(c.backendFD); err != nil {
		logging.Fatalf("deregister backend fd %d: %v", c.backendFD, err)
	}
	arena.release(c.handle)
	_ = unix.Close(c.clientFD)
	_ = unix.Close(c.backendFD)
	_ = c.inbound.Close()
	_ = c.outbound.Close()
	logging.Debugf("connection closed: client fd %d, backend fd %d", c.clientFD, c.backendFD)
}
