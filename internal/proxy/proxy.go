// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

// Package proxy implements the single-threaded splice proxy core: the
// acceptor, the connection arena, and the edge-triggered event loop. All
// I/O is non-blocking; the only suspension point is the poller wait.
package proxy

import (
	"net"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/vizee/tcpproxy/internal/config"
	"github.com/vizee/tcpproxy/internal/netpoll"
	"github.com/vizee/tcpproxy/internal/socket"
	"github.com/vizee/tcpproxy/pkg/logging"
)

// Proxy owns the process-wide pieces: the listening socket, the poller, the
// connection arena, and the immutable startup configuration.
type Proxy struct {
	cfg      *config.Config
	poller   *netpoll.Poller
	listenFD int
	arena    *connArena
	pending  *queue.Queue // conns doomed this batch, terminated at batch end
}

// New builds a Proxy from an immutable configuration: it opens the poller,
// binds the listener, and registers it under the reserved token.
func New(cfg *config.Config) (*Proxy, error) {
	poller, err := netpoll.OpenPoller()
	if err != nil {
		return nil, err
	}
	listenFD, err := socket.TCPListen(cfg.Listen)
	if err != nil {
		_ = poller.Close()
		return nil, err
	}
	if err := poller.AddRead(listenFD, netpoll.ListenerToken); err != nil {
		_ = unix.Close(listenFD)
		_ = poller.Close()
		return nil, err
	}
	return &Proxy{
		cfg:      cfg,
		poller:   poller,
		listenFD: listenFD,
		arena:    newConnArena(),
		pending:  queue.New(),
	}, nil
}

// Addr reports the listener's bound address, useful when listening on an
// ephemeral port.
func (p *Proxy) Addr() (net.Addr, error) {
	return socket.LocalAddr(p.listenFD)
}

// Serve runs the event loop. It only returns on a process-fatal error.
func (p *Proxy) Serve() error {
	logging.Infof("listening on %s, proxying to %s (pipe capacity %d)",
		p.cfg.Listen, p.cfg.Backend, p.cfg.PipeSize)
	return p.poller.Polling(p.dispatch, p.reapDoomed)
}
