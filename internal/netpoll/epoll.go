// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

// Package netpoll wraps the Linux edge-triggered epoll facility behind a
// poller that correlates readiness events with opaque 64-bit tokens.
package netpoll

import (
	"os"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/vizee/tcpproxy/pkg/logging"
)

// ListenerToken is reserved for the listening socket's registration; no
// connection token ever takes this value.
const ListenerToken uint64 = 0

// Poller represents a poller which is in charge of monitoring
// file descriptors. Every registration is edge-triggered, so consumers must
// drain until EAGAIN on each notification.
type Poller struct {
	fd int // epoll fd
}

// OpenPoller instantiates a poller.
func OpenPoller() (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &Poller{fd: fd}, nil
}

// Close closes the poller.
func (p *Poller) Close() error {
	return os.NewSyscallError("close", unix.Close(p.fd))
}

// The token travels in the epoll_data union, split across the Fd and Pad
// fields of EpollEvent.
func (p *Poller) add(fd int, events IOEvent, token uint64) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLET | events,
		Fd:     int32(uint32(token)),
		Pad:    int32(uint32(token >> 32)),
	}
	return os.NewSyscallError("epoll_ctl add", unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev))
}

// AddRead registers fd for edge-triggered readable events under token.
func (p *Poller) AddRead(fd int, token uint64) error {
	return p.add(fd, ReadEvents, token)
}

// AddReadWrite registers fd for edge-triggered readable and writable events
// under token.
func (p *Poller) AddReadWrite(fd int, token uint64) error {
	return p.add(fd, ReadWriteEvents, token)
}

// Delete removes fd from the poller. Failing to delete a currently
// registered fd is a logic bug in the caller.
func (p *Poller) Delete(fd int) error {
	return os.NewSyscallError("epoll_ctl del", unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil))
}

// Polling blocks the calling goroutine, waiting for readiness events.
// onEvent runs once per event in kernel return order; onBatchEnd runs after
// every batch, which is where the caller releases connections that went
// terminal mid-batch. Signal interruptions of the wait are retried
// transparently. A non-nil error from onEvent stops the loop and is returned.
func (p *Poller) Polling(onEvent func(token uint64, ev IOEvent) error, onBatchEnd func()) error {
	el := newEventList(InitPollEventsCap)
	for {
		n, err := unix.EpollWait(p.fd, el.events, -1)
		if n == 0 || (n < 0 && err == unix.EINTR) {
			runtime.Gosched()
			continue
		} else if err != nil {
			logging.Errorf("error occurs in epoll: %v", os.NewSyscallError("epoll_wait", err))
			return os.NewSyscallError("epoll_wait", err)
		}

		for i := 0; i < n; i++ {
			ev := &el.events[i]
			token := uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32
			if err := onEvent(token, ev.Events); err != nil {
				return err
			}
		}
		if onBatchEnd != nil {
			onBatchEnd()
		}

		if n == el.size {
			el.expand()
		} else if n < el.size>>1 {
			el.shrink()
		}
	}
}
