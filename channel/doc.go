// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel provides the live channel transport: a persistent
// bidirectional connection carrying named events, distinct from the
// discrete request/response calls in package backend.
//
// [Conn] is the transport contract the engine programs against:
// Emit writes a named event, Events delivers inbound envelopes in
// transport order, and Close tears the connection down. Two
// implementations exist:
//
//   - [Dial] opens a websocket connection to the backend, framing each
//     event as one JSON text message (a wire.Envelope).
//   - [MemoryPair] creates two in-process ends of one connection,
//     bypassing the network entirely. Engine tests and the dev loop
//     drive pushes through the server end.
//
// Conn guarantees in-order delivery of inbound events and surfaces
// transport failure by closing the Events channel; it never retries on
// its own. Reconnection policy lives with the engine's owner.
package channel
