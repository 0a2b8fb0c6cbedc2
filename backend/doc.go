// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend is the durable request client: plain request/response
// HTTP against the chat backend's REST surface. Every successful
// response is backed by persisted server-side state, which makes this
// path the source of truth whenever it disagrees with the live channel.
//
// [Client] holds the base URL, bearer token, HTTP transport, and
// logger, shared across all calls. Operations cover the seven durable
// endpoints the engine needs: initial notifications, mark-read (single
// and bulk), the chat-peer directory, conversation history, persisted
// send, and mark-conversation-read.
//
// All API errors are returned as [*Error] with the backend's error
// code and the HTTP status code. [IsStatus] tests for a specific
// status. Request URLs are built by string concatenation rather than
// url.URL to avoid double-encoding of path segments containing
// URL-encoded characters.
package backend
