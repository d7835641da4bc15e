// Copyright (c) 2019 vizee. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package proxy

// side tags which endpoint of a session a poll registration stands for.
type side uint8

const (
	clientSide  side = 0
	backendSide side = 1
)

func (s side) String() string {
	if s == clientSide {
		return "client"
	}
	return "backend"
}

// connHandle names an arena slot and the generation it was allocated in.
// Stale handles resolve to nil once the slot moves on, which is what lets
// the event loop safely see tokens from connections torn down earlier.
type connHandle struct {
	index int32
	gen   uint32
}

// token packs (generation, slot index, side) into the 64-bit epoll user
// data. Generations start at 1 so no live token ever collides with the
// reserved listener token 0. The pair of tokens derived from one handle are
// the connection's two poll descriptors.
func (h connHandle) token(s side) uint64 {
	return uint64(h.gen)<<32 | uint64(uint32(h.index))<<1 | uint64(s)
}

func unpackToken(token uint64) (connHandle, side) {
	return connHandle{
		index: int32(uint32(token) >> 1),
		gen:   uint32(token >> 32),
	}, side(token & 1)
}

// connArena owns every live connection. Only the event loop goroutine ever
// touches it, so plain mutation is safe.
type connArena struct {
	slots []arenaSlot
	free  []int32
}

type arenaSlot struct {
	gen  uint32
	conn *conn
}

func newConnArena() *connArena {
	return &connArena{}
}

// alloc places c into a free slot and returns its handle.
func (a *connArena) alloc(c *conn) connHandle {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx].conn = c
		return connHandle{index: idx, gen: a.slots[idx].gen}
	}
	a.slots = append(a.slots, arenaSlot{gen: 1, conn: c})
	return connHandle{index: int32(len(a.slots) - 1), gen: 1}
}

// lookup resolves h to its connection, or nil if h is stale.
func (a *connArena) lookup(h connHandle) *conn {
	if h.index < 0 || int(h.index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.index]
	if s.gen != h.gen || s.conn == nil {
		return nil
	}
	return s.conn
}

// release invalidates every outstanding handle to the slot and recycles it.
func (a *connArena) release(h connHandle) {
	s := &a.slots[h.index]
	s.conn = nil
	s.gen++
	if s.gen == 0 {
		// Generation 0 is reserved so tokens stay nonzero.
		s.gen = 1
	}
	a.free = append(a.free, h.index)
}

// live counts connections currently held by the arena.
func (a *connArena) live() int {
	return len(a.slots) - len(a.free)
}
