// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"fmt"
	"sync"

	"github.com/socialconnect/chatkit/wire"
)

// Compile-time interface check.
var _ Conn = (*MemoryConn)(nil)

// memoryBuffer is the per-direction event buffer of a memory pair.
// Large enough that tests never block on their own emits.
const memoryBuffer = 256

// MemoryPair creates two in-process ends of one live channel
// connection. Events emitted on one end arrive on the other end's
// Events channel in emit order. Closing either end closes both event
// streams, mirroring a real transport where the connection dies as a
// whole.
//
// Tests hand the client end to the engine and drive server pushes
// through the server end.
func MemoryPair() (client, server *MemoryConn) {
	shared := &memoryShared{}
	a := &MemoryConn{shared: shared, inbound: make(chan wire.Envelope, memoryBuffer)}
	b := &MemoryConn{shared: shared, inbound: make(chan wire.Envelope, memoryBuffer)}
	a.peer, b.peer = b, a
	return a, b
}

// memoryShared holds state common to both ends of a pair.
type memoryShared struct {
	mu     sync.Mutex
	closed bool
}

// MemoryConn is one end of an in-process live channel pair.
type MemoryConn struct {
	shared  *memoryShared
	peer    *MemoryConn
	inbound chan wire.Envelope

	closeOnce sync.Once
}

// Emit delivers a named event to the opposite end.
func (c *MemoryConn) Emit(event string, payload any) error {
	envelope, err := wire.NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	if c.shared.closed {
		return fmt.Errorf("channel: emit %q on closed connection", event)
	}
	select {
	case c.peer.inbound <- envelope:
		return nil
	default:
		return fmt.Errorf("channel: emit %q: peer buffer full", event)
	}
}

// Events returns this end's inbound event stream.
func (c *MemoryConn) Events() <-chan wire.Envelope {
	return c.inbound
}

// Close terminates the pair. Both ends' Events channels are closed.
func (c *MemoryConn) Close() error {
	c.closeOnce.Do(func() {
		c.shared.mu.Lock()
		alreadyClosed := c.shared.closed
		c.shared.closed = true
		c.shared.mu.Unlock()
		if !alreadyClosed {
			close(c.inbound)
			c.peer.closeOnce.Do(func() {
				close(c.peer.inbound)
			})
		}
	})
	return nil
}
