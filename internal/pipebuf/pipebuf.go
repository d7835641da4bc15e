// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

// Package pipebuf implements the kernel-pipe staging buffer used to splice
// bytes between two sockets without copying them through user space.
package pipebuf

import (
	"os"

	"golang.org/x/sys/unix"
)

// ProbeSize reports the kernel's default pipe capacity, which is the largest
// chunk a single splice call will stage without blocking. It is probed once
// at startup from a throwaway pipe and carried in the process configuration.
func ProbeSize() (int, error) {
	var pfd [2]int
	if err := unix.Pipe2(pfd[:], unix.O_CLOEXEC); err != nil {
		return 0, os.NewSyscallError("pipe2", err)
	}
	defer func() {
		_ = unix.Close(pfd[0])
		_ = unix.Close(pfd[1])
	}()
	size, err := unix.FcntlInt(uintptr(pfd[0]), unix.F_GETPIPE_SZ, 0)
	if err != nil {
		return 0, os.NewSyscallError("fcntl", err)
	}
	return size, nil
}

// Buffer is a bounded in-kernel staging area between a source and a
// destination descriptor. Bytes enter through the pipe's write end and leave
// through its read end; buffered never exceeds capacity.
type Buffer struct {
	buffered int
	capacity int
	rfd      int
	wfd      int
}

// New creates a Buffer bounded by capacity, which must be the process-wide
// pipe size reported by ProbeSize.
func New(capacity int) (*Buffer, error) {
	var pfd [2]int
	if err := unix.Pipe2(pfd[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, os.NewSyscallError("pipe2", err)
	}
	return &Buffer{capacity: capacity, rfd: pfd[0], wfd: pfd[1]}, nil
}

// SpliceIn moves bytes from fd into the buffer until the buffer reaches
// capacity or fd has nothing more to deliver. A zero-length transfer means
// the peer half-closed its write side, reported as eof.
func (b *Buffer) SpliceIn(fd int) (eof bool, err error) {
	for b.buffered < b.capacity {
		n, err := unix.Splice(fd, nil, b.wfd, nil, b.capacity-b.buffered, unix.SPLICE_F_MOVE|unix.SPLICE_F_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN {
				break
			}
			return false, os.NewSyscallError("splice", err)
		}
		if n == 0 {
			return true, nil
		}
		b.buffered += int(n)
	}
	return false, nil
}

// SpliceOut moves buffered bytes to fd until the buffer is empty or fd stops
// accepting them.
func (b *Buffer) SpliceOut(fd int) error {
	for b.buffered > 0 {
		n, err := unix.Splice(b.rfd, nil, fd, nil, b.buffered, unix.SPLICE_F_MOVE|unix.SPLICE_F_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN {
				break
			}
			return os.NewSyscallError("splice", err)
		}
		b.buffered -= int(n)
	}
	return nil
}

// IsEmpty reports whether nothing is staged in the pipe.
func (b *Buffer) IsEmpty() bool {
	return b.buffered == 0
}

// Buffered returns the number of bytes currently staged in the pipe.
func (b *Buffer) Buffered() int {
	return b.buffered
}

// Cap returns the buffer bound.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Close releases the underlying pipe. Safe to call more than once.
func (b *Buffer) Close() error {
	if b.rfd < 0 {
		return nil
	}
	err := os.NewSyscallError("close", unix.Close(b.rfd))
	if e := os.NewSyscallError("close", unix.Close(b.wfd)); err == nil {
		err = e
	}
	b.rfd, b.wfd = -1, -1
	return err
}
