// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "errors"

// Validation errors, rejected locally before any network call.
var (
	// ErrEmptyMessage is returned by SendMessage when the message has
	// neither text content nor an attachment.
	ErrEmptyMessage = errors.New("engine: message needs content or an attachment")

	// ErrNoConversation is returned by SendMessage and SetTyping when
	// no conversation is open.
	ErrNoConversation = errors.New("engine: no open conversation")

	errMissingIdentity = errors.New("engine: identity ID is required")
	errNotConnected    = errors.New("engine: live channel not connected")
)
