// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rpc

import (
	"encoding/json"
	"sync"
)

// AppMode is the proxy's operating mode, shared between the request handler
// and the controller.
type AppMode string

const (
	// ModeNormal forwards every request without interception.
	ModeNormal AppMode = "normal"

	// ModePaused suspends every new request at ingress until the operator
	// issues a decision.
	ModePaused AppMode = "paused"

	// ModeIntercepting is a display label only: the UI shows it once the
	// pending queue is non-empty while paused. The request handler never
	// reads this value — only ModePaused triggers interception.
	ModeIntercepting AppMode = "intercepting"
)

// ModeGate is the single mutable word shared between the request handler
// (C4, many readers, one read per request) and the controller (C7, the one
// writer, whenever the operator changes mode). It is guarded by a short-held mutex rather than
// a broadcast channel: a stale read at most one tick old is an accepted
// inconsistency, not a bug.
type ModeGate struct {
	mu   sync.Mutex
	mode AppMode
}

// NewModeGate returns a gate initialized to ModeNormal.
func NewModeGate() *ModeGate {
	return &ModeGate{mode: ModeNormal}
}

// Load returns the current mode. Called once per request by the handler.
func (g *ModeGate) Load() AppMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

// Store sets the current mode. Called by the controller when the mode changes.
func (g *ModeGate) Store(mode AppMode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mode = mode
}

// DecisionKind tags which variant a Decision carries.
type DecisionKind int

const (
	// DecisionAllow forwards the request, optionally with a replaced body
	// and/or a replaced header set.
	DecisionAllow DecisionKind = iota

	// DecisionBlock short-circuits forwarding and replies with a synthesized
	// "blocked by user" JSON-RPC error.
	DecisionBlock

	// DecisionComplete short-circuits forwarding and replies with an
	// operator-supplied JSON-RPC response.
	DecisionComplete
)

// Decision is the tagged variant an operator renders against a
// PendingRequest: Allow(body?, headers?), Block, or Complete(response).
type Decision struct {
	Kind DecisionKind

	// Body, when non-nil, replaces the request body for an Allow decision.
	Body json.RawMessage

	// Headers, when non-nil, replaces the forwarded header set wholesale
	// (not merged) for an Allow decision.
	Headers map[string]string

	// Response carries the operator-authored JSON-RPC response for a
	// Complete decision.
	Response json.RawMessage
}

// Allow builds an Allow decision. Either argument may be nil to mean "use
// the original value".
func Allow(body json.RawMessage, headers map[string]string) Decision {
	return Decision{Kind: DecisionAllow, Body: body, Headers: headers}
}

// Block builds a Block decision.
func Block() Decision {
	return Decision{Kind: DecisionBlock}
}

// Complete builds a Complete decision carrying the operator's response.
func Complete(response json.RawMessage) Decision {
	return Decision{Kind: DecisionComplete, Response: response}
}

// PendingRequest is a request intercepted under pause mode, held by the
// controller until the operator renders a decision. ReplyTo is the single-use
// decision sink: the controller sends exactly one Decision on it when it
// dispatches. The broker's timeout path sends nothing; it stops waiting.
type PendingRequest struct {
	// ID is a unique local identifier, opaque to the engine.
	ID string

	// Original is the captured request message as it arrived at ingress.
	Original Message

	// ReplyTo is the one-shot rendezvous: exactly one Decision must be sent
	// here, then the channel is done.
	ReplyTo chan<- Decision
}
