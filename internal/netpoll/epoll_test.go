// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package netpoll

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPollingTokenRoundTrip(t *testing.T) {
	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	// Exercise all 64 bits of the correlation token.
	const token = uint64(0xCAFEBABE)<<32 | 0x7F000001
	require.NoError(t, p.AddRead(int(r.Fd()), token))

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	errDone := errors.New("done")
	var (
		seq      []string
		gotToken uint64
		gotEv    IOEvent
	)
	err = p.Polling(func(tok uint64, ev IOEvent) error {
		gotToken, gotEv = tok, ev
		seq = append(seq, "event")
		if len(seq) >= 3 {
			return errDone
		}
		return nil
	}, func() {
		seq = append(seq, "batch-end")
		// New data re-arms the edge and produces the event that stops the
		// loop.
		_, _ = w.Write([]byte("y"))
	})
	require.ErrorIs(t, err, errDone)
	assert.Equal(t, token, gotToken)
	assert.NotZero(t, gotEv&unix.EPOLLIN)
	assert.Equal(t, []string{"event", "batch-end", "event"}, seq)
}

func TestPollerDelete(t *testing.T) {
	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.NoError(t, p.AddRead(int(r.Fd()), 42))
	require.NoError(t, p.Delete(int(r.Fd())))
	// Deleting a descriptor that is not registered is a logic bug and
	// surfaces as an error.
	require.Error(t, p.Delete(int(r.Fd())))
}
