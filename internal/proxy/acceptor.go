// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package proxy

import (
	"golang.org/x/sys/unix"

	"github.com/vizee/tcpproxy/internal/socket"
	"github.com/vizee/tcpproxy/pkg/errors"
	"github.com/vizee/tcpproxy/pkg/logging"
)

// accept drains the listening socket. Registered edge-triggered, so every
// readiness event must take connections until EAGAIN.
func (p *Proxy) accept() error {
	for {
		nfd, _, err := unix.Accept4(p.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return nil
			case unix.EINTR, unix.ECONNABORTED:
				continue
			default:
				logging.Errorf("accept on fd %d: %v", p.listenFD, err)
				return errors.ErrAcceptSocket
			}
		}
		logging.Debugf("accepted client fd %d", nfd)
		p.associate(nfd)
	}
}

// associate opens the backend leg for a freshly accepted client and wires
// the pair into the poller. A backend that refuses outright only costs this
// client its connection; the proxy keeps serving. A connect still in
// progress is registered like a connected socket, since its first readiness
// event reveals the outcome either way.
func (p *Proxy) associate(clientFD int) {
	backendFD, err := socket.TCPConnect(p.cfg.Backend)
	if err != nil {
		logging.Warnf("connect backend %s for client fd %d: %v", p.cfg.Backend, clientFD, err)
		_ = unix.Close(clientFD)
		return
	}

	c, err := newConn(clientFD, backendFD, p.cfg.PipeSize)
	if err != nil {
		logging.Errorf("allocate staging pipes for client fd %d: %v", clientFD, err)
		_ = unix.Close(clientFD)
		_ = unix.Close(backendFD)
		return
	}
	c.handle = p.arena.alloc(c)

	if err := p.poller.AddReadWrite(clientFD, c.handle.token(clientSide)); err != nil {
		logging.Fatalf("register client fd %d: %v", clientFD, err)
	}
	if err := p.poller.AddReadWrite(backendFD, c.handle.token(backendSide)); err != nil {
		logging.Fatalf("register backend fd %d: %v", backendFD, err)
	}
	logging.Debugf("associated client fd %d with backend fd %d", clientFD, backendFD)
}
