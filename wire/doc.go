// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the event vocabulary and payload types shared by
// both ends of the live channel, plus the record types returned by the
// durable REST endpoints.
//
// Every live-channel frame is an [Envelope]: a named event with a raw
// JSON payload. Clients decode the payload based on the event name.
// The event names mirror the backend's socket vocabulary exactly
// ("join", "joined", "users-online", "receive-message", and so on) —
// the engine never invents event names of its own.
//
// [Message] and [Notification] appear on both the push channel and the
// REST channel. The two representations of the same logical record are
// reconciled by ID in the engine; wire deliberately carries no
// merge logic.
package wire
