// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package netpoll

import "golang.org/x/sys/unix"

// IOEvent is the integer type of I/O events on Linux.
type IOEvent = uint32

const (
	// InitPollEventsCap represents the initial capacity of the poller
	// event-list.
	InitPollEventsCap = 128

	// ReadEvents is the readable interest set used at registration time.
	ReadEvents IOEvent = unix.EPOLLIN | unix.EPOLLPRI
	// WriteEvents is the writable interest set used at registration time.
	WriteEvents IOEvent = unix.EPOLLOUT
	// ReadWriteEvents combines both interests plus peer half-close
	// notification for proxied connections.
	ReadWriteEvents IOEvent = ReadEvents | WriteEvents | unix.EPOLLRDHUP

	// InEvents are the reported events that make a descriptor's socket worth
	// reading from: data, an error, or the peer half-closing its write side.
	InEvents IOEvent = unix.EPOLLIN | unix.EPOLLERR | unix.EPOLLRDHUP
	// OutEvents are the reported events that make a descriptor's socket worth
	// writing to: writability, an error, or a hangup.
	OutEvents IOEvent = unix.EPOLLOUT | unix.EPOLLERR | unix.EPOLLHUP
)

type eventList struct {
	size   int
	events []unix.EpollEvent
}

func newEventList(size int) *eventList {
	return &eventList{size, make([]unix.EpollEvent, size)}
}

func (el *eventList) expand() {
	el.size <<= 1
	el.events = make([]unix.EpollEvent, el.size)
}

func (el *eventList) shrink() {
	if el.size < InitPollEventsCap<<1 {
		return
	}
	el.size >>= 1
	el.events = make([]unix.EpollEvent, el.size)
}
