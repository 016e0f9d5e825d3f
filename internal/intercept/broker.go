// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package intercept implements the interception broker (spec component C3):
// it turns a captured request into a PendingRequest, hands it to the
// controller over a channel, and blocks the request goroutine until an
// operator decision arrives or the wait times out.
package intercept

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aleutianlabs/jrpcproxy/internal/rpc"
)

// Timeout bounds how long a request goroutine waits for an operator decision
// before the broker synthesizes a timeout response, per spec.md §4.2.
const Timeout = 300 * time.Second

// Result is what Intercept hands back to the request handler: either an
// operator Decision, or a synthesized one if the wait timed out.
type Result struct {
	Decision rpc.Decision
	TimedOut bool
}

// Broker mediates between request goroutines and the controller's pending
// queue. pendingCh is unbuffered from the broker's perspective: it is the
// controller-owned channel the UI drains on its own loop.
type Broker struct {
	pendingCh chan<- rpc.PendingRequest
}

// New returns a Broker that publishes pending requests onto pendingCh.
func New(pendingCh chan<- rpc.PendingRequest) *Broker {
	return &Broker{pendingCh: pendingCh}
}

// Intercept registers req as pending, publishes it to the controller, and
// blocks until a Decision arrives over the rendezvous channel, the context
// is cancelled, or Timeout elapses. The published PendingRequest.ID is a
// fresh uuid, independent of the request's own JSON-RPC id.
func (b *Broker) Intercept(ctx context.Context, req rpc.Message) Result {
	replyTo := make(chan rpc.Decision, 1)
	pending := rpc.PendingRequest{
		ID:       uuid.NewString(),
		Original: req,
		ReplyTo:  replyTo,
	}

	select {
	case b.pendingCh <- pending:
	case <-ctx.Done():
		return Result{Decision: timeoutDecision(req), TimedOut: true}
	}

	timer := time.NewTimer(Timeout)
	defer timer.Stop()

	select {
	case decision := <-replyTo:
		return Result{Decision: decision}
	case <-timer.C:
		return Result{Decision: timeoutDecision(req), TimedOut: true}
	case <-ctx.Done():
		return Result{Decision: timeoutDecision(req), TimedOut: true}
	}
}

// timeoutDecision synthesizes the -32603 timeout response spec.md §4.2
// requires when no operator decision arrives in time; it is delivered as a
// Complete so the handler's response path is identical to an operator-typed
// completion.
func timeoutDecision(req rpc.Message) rpc.Decision {
	errObj, _ := json.Marshal(map[string]interface{}{
		"code":    -32603,
		"message": "Request timed out waiting for user decision",
	})
	response, _ := json.Marshal(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      idOrNull(req.ID),
		"error":   errObj,
	})
	return rpc.Complete(response)
}

func idOrNull(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// TimeoutStatus is the HTTP status the handler should use when Result.TimedOut
// is true and no Complete body overrides it; kept here so the engine package
// does not need to duplicate the constant from spec.md §4.2.
const TimeoutStatus = http.StatusRequestTimeout
