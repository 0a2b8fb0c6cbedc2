// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"log/slog"

	"github.com/socialconnect/chatkit/backend"
	"github.com/socialconnect/chatkit/wire"
)

// outboundDispatcher coordinates the two outbound paths of a send: the
// live-channel emit (latency) and the durable request (correctness).
// The paths are independent failure domains — both are always
// attempted, and a failure on one never suppresses the other. The
// caller's completion signal follows the durable path alone.
type outboundDispatcher struct {
	backend *backend.Client
	logger  *slog.Logger
}

// send runs the dual-path send for an optimistically-applied message.
// Loop-only entry; the durable request runs on its own goroutine and
// merges its response back through the loop.
func (d *outboundDispatcher) send(e *Engine, message wire.Message, completion chan<- error) {
	// Live path first: the peer sees the message with push latency.
	// Fire-and-forget — a dead channel only costs latency, the
	// durable path still persists the send.
	if err := e.emit(wire.EventSendMessage, message); err != nil {
		d.logger.Warn("live send emit failed", "client_key", message.ClientKey, "error", err)
	}

	ctx := e.baseCtx
	gen := e.conversation.gen
	request := backend.SendMessageRequest{
		ReceiverID: message.ReceiverID,
		Content:    message.Content,
		Attachment: message.Attachment,
		ClientKey:  message.ClientKey,
	}

	go func() {
		stored, err := d.backend.SendMessage(ctx, request)
		delivered := e.post(func() {
			if err != nil {
				// The optimistic entry stays Pending rather than
				// being rolled back: the live path may have reached
				// the peer regardless, and the durable store remains
				// the source of truth on the next full load.
				d.logger.Warn("durable send failed", "client_key", message.ClientKey, "error", err)
				e.notice("error", "message could not be saved")
				completion <- err
				return
			}
			if e.conversation.gen == gen {
				echo := *stored
				if echo.ClientKey == "" {
					echo.ClientKey = message.ClientKey
				}
				if deliveryRank(echo.State) < deliveryRank(wire.DeliverySent) {
					echo.State = wire.DeliverySent
				}
				e.mergeOwn(echo)
			}
			completion <- nil
		})
		if !delivered {
			completion <- err
		}
	}()
}
