// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package errors defines common errors for tcpproxy.
package errors

import "errors"

var (
	// ErrStreamComplete indicates that one direction of a proxied session has
	// reached end-of-stream and its staging buffer has fully drained. It is
	// the terminal condition for a connection, not a failure.
	ErrStreamComplete = errors.New("tcpproxy: stream complete")
	// ErrConnClosed occurs when operating on a connection that has already been torn down.
	ErrConnClosed = errors.New("tcpproxy: connection is already closed")
	// ErrAcceptSocket occurs when the acceptor does not take a new connection off the listener properly.
	ErrAcceptSocket = errors.New("tcpproxy: accept a new connection error")
	// ErrUnsupportedProtocol occurs when trying to serve anything but plain TCP.
	ErrUnsupportedProtocol = errors.New("tcpproxy: only tcp/tcp4/tcp6 are supported")
	// ErrInvalidNetworkAddress occurs when the network address is invalid.
	ErrInvalidNetworkAddress = errors.New("tcpproxy: invalid network address")
)
