// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine is the realtime chat synchronization core. One
// [Engine] serves one client session: it owns the live channel for the
// authenticated identity, reconciles push-delivered events against
// REST-fetched state, and presents a consistent view of conversations,
// unread counts, presence, and typing state to the consuming UI.
//
// # Concurrency model
//
// Each Engine runs a single event-loop goroutine. Every pushed event,
// timer expiry, and completed fetch is applied as a discrete closure
// on that loop, so no two state mutations for one session ever run
// concurrently and the components need no locks. Network I/O (durable
// requests, history and notification fetches, dialing) happens on
// separate goroutines; only the completion closures touch engine
// state. Read accessors post a snapshot closure and wait for it, so
// readers always observe a consistent view.
//
// Cross-channel ordering between a REST response and a live push is
// not guaranteed by the transports. The engine resolves it with
// idempotent merges: notifications are deduplicated by ID, and message
// echoes merge by server ID first, then by the client-generated send
// key, then by a (sender, receiver, content, approximate-timestamp)
// fallback for echoes that carry neither.
//
// # Components
//
// The engine is split one file per concern: connection lifecycle
// (connection.go), presence roster (presence.go), typing state with
// expiry (typing.go), the notification store (notifications.go), the
// per-conversation timeline (conversation.go), and the dual-path
// outbound dispatcher (dispatch.go). Components mutate only their own
// state and only from loop closures.
//
// Channel failures surface as notices, never as panics: every handler
// boundary converts malformed or unexpected input into a logged
// diagnostic, keeping the loop alive.
package engine
