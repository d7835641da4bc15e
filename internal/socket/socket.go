// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

// Package socket resolves host:port strings and builds the non-blocking
// sockets the proxy core runs on.
package socket

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/vizee/tcpproxy/pkg/errors"
)

var listenerBacklogMaxSize = maxListenerBacklog()

// getTCPSockaddr resolves addr and converts the first result to a sockaddr
// of the matching family. A missing or IPv4 host selects AF_INET, so a bare
// ":port" listens on the IPv4 wildcard.
func getTCPSockaddr(addr string) (unix.Sockaddr, int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, 0, err
	}

	if ip4 := tcpAddr.IP.To4(); ip4 != nil || len(tcpAddr.IP) == 0 {
		sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}

	if ip6 := tcpAddr.IP.To16(); ip6 != nil {
		sa := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(sa.Addr[:], ip6)
		if tcpAddr.Zone != "" {
			iface, err := net.InterfaceByName(tcpAddr.Zone)
			if err != nil {
				return nil, 0, err
			}
			sa.ZoneId = uint32(iface.Index)
		}
		return sa, unix.AF_INET6, nil
	}

	return nil, 0, errors.ErrInvalidNetworkAddress
}

func sysSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	return fd, nil
}

// TCPListen creates a non-blocking listening socket bound to addr, with the
// backlog set to the OS maximum.
func TCPListen(addr string) (fd int, err error) {
	sa, family, err := getTCPSockaddr(addr)
	if err != nil {
		return -1, err
	}

	if fd, err = sysSocket(family); err != nil {
		return
	}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
			fd = -1
		}
	}()

	if err = os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)); err != nil {
		return
	}
	if err = os.NewSyscallError("bind", unix.Bind(fd, sa)); err != nil {
		return
	}
	err = os.NewSyscallError("listen", unix.Listen(fd, listenerBacklogMaxSize))
	return
}

// TCPConnect starts a non-blocking connect to addr. A connect still in
// progress is returned as success; the first readiness event on the socket
// settles it either way.
func TCPConnect(addr string) (fd int, err error) {
	sa, family, err := getTCPSockaddr(addr)
	if err != nil {
		return -1, err
	}

	if fd, err = sysSocket(family); err != nil {
		return
	}
	if err = unix.Connect(fd, sa); err != nil {
		if err != unix.EINPROGRESS {
			_ = unix.Close(fd)
			return -1, os.NewSyscallError("connect", err)
		}
		err = nil
	}
	return fd, nil
}

// LocalAddr reports the bound address of fd as a net.Addr.
func LocalAddr(fd int) (net.Addr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, os.NewSyscallError("getsockname", err)
	}
	return sockaddrToTCPAddr(sa), nil
}

func sockaddrToTCPAddr(sa unix.Sockaddr) net.Addr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), sa.Addr[:]...), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), sa.Addr[:]...), Port: sa.Port}
	}
	return nil
}
