// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package proxy

import (
	"github.com/vizee/tcpproxy/internal/netpoll"
	"github.com/vizee/tcpproxy/pkg/errors"
	"github.com/vizee/tcpproxy/pkg/logging"
)

// dispatch routes one readiness event. Events for connections that already
// went terminal, whether in this batch or before, resolve to a stale handle
// or a doomed conn and are dropped.
func (p *Proxy) dispatch(token uint64, ev netpoll.IOEvent) error {
	if token == netpoll.ListenerToken {
		return p.accept()
	}

	h, s := unpackToken(token)
	c := p.arena.lookup(h)
	if c == nil || c.doomed {
		return nil
	}

	// Readable-side readiness drives the transfer whose source is this
	// side's socket; writable-side readiness drives the transfer whose
	// destination is this side's socket.
	if ev&netpoll.InEvents != 0 {
		var err error
		if s == clientSide {
			err = c.transferClientToBackend()
		} else {
			err = c.transferBackendToClient()
		}
		if err != nil {
			p.doom(c, s, err)
		}
	}
	if ev&netpoll.OutEvents != 0 && !c.doomed {
		var err error
		if s == clientSide {
			err = c.transferBackendToClient()
		} else {
			err = c.transferClientToBackend()
		}
		if err != nil {
			p.doom(c, s, err)
		}
	}
	return nil
}

// doom marks c terminal and queues it for teardown at the end of the batch.
// Deferring keeps the second of a connection's two registrations valid when
// both fire in the same batch; the doomed flag deduplicates repeat hits.
func (p *Proxy) doom(c *conn, s side, err error) {
	if c.doomed {
		return
	}
	c.doomed = true
	if err == errors.ErrStreamComplete {
		logging.Debugf("stream complete on %s side: client fd %d, backend fd %d", s, c.clientFD, c.backendFD)
	} else {
		logging.Warnf("transfer failed on %s side: client fd %d, backend fd %d: %v", s, c.clientFD, c.backendFD, err)
	}
	p.pending.Add(c)
}

// reapDoomed terminates every connection doomed during the batch, each
// exactly once.
func (p *Proxy) reapDoomed() {
	for p.pending.Length() > 0 {
		c := p.pending.Remove().(*conn)
		c.terminate(p.poller, p.arena)
	}
}
