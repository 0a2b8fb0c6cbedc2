// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"github.com/socialconnect/chatkit/wire"
)

// Conn is one live channel connection. Implementations must deliver
// inbound envelopes on Events in the order the transport delivered
// them, and must close the Events channel exactly once when the
// connection dies (locally via Close or remotely via transport
// failure).
//
// Emit is safe to call from any goroutine. Emitting on a dead
// connection returns an error; it never blocks indefinitely.
type Conn interface {
	// Emit sends a named event with the given payload.
	Emit(event string, payload any) error

	// Events returns the inbound event stream. The channel is closed
	// when the connection terminates.
	Events() <-chan wire.Envelope

	// Close tears down the connection. Idempotent.
	Close() error
}
