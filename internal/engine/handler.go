// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine implements the per-request state machine (spec component
// C4): ingress, mode probe, interception, forwarding, and egress, tying
// together the store, the interception broker, and the upstream forwarder.
package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aleutianlabs/jrpcproxy/internal/forwarder"
	"github.com/aleutianlabs/jrpcproxy/internal/intercept"
	"github.com/aleutianlabs/jrpcproxy/internal/metrics"
	"github.com/aleutianlabs/jrpcproxy/internal/rpc"
)

// Sink is the subset of *store.Store the handler needs; accepting an
// interface rather than a concrete type keeps engine tests independent of
// store's internals.
type Sink interface {
	Emit(rpc.Message)
}

// Broker is the subset of *intercept.Broker the handler needs.
type Broker interface {
	Intercept(ctx context.Context, req rpc.Message) intercept.Result
}

// Upstream is the subset of *forwarder.Forwarder the handler needs.
type Upstream interface {
	Forward(ctx context.Context, headers map[string]string, body json.RawMessage, targetURL string) (forwarder.Reply, rpc.Message)
}

// Handler runs the per-request pipeline described in spec.md §4.3.
type Handler struct {
	Store    Sink
	Broker   Broker
	Upstream Upstream
	Mode     *rpc.ModeGate

	// Target returns the current upstream URL; a func rather than a plain
	// string so target hot-edit (SPEC_FULL.md §4 supplement) is visible to
	// in-flight requests without the handler holding a lock of its own.
	Target func() string

	// Metrics is optional; when nil, Handle records nothing. When set, every
	// ingress/egress Message, decision, and upstream round trip is reflected
	// in the Prometheus series it owns.
	Metrics *metrics.Metrics
}

// Reply is the final HTTP-level answer the server should write back.
type Reply struct {
	Status  int
	Body    json.RawMessage
	Headers map[string]string
}

// Handle runs one request through ingress, mode probe, interception,
// forwarding, and egress, in that order, per spec.md §4.3.
func (h *Handler) Handle(ctx context.Context, headers map[string]string, body json.RawMessage) Reply {
	now := time.Now()
	reqID := extractID(body)

	// Step 1: ingress.
	reqMsg := rpc.Message{
		ID:        reqID,
		Method:    extractMethod(body),
		Params:    extractField(body, "params"),
		Timestamp: now,
		Direction: rpc.DirectionRequest,
		Transport: rpc.TransportHTTP,
		Headers:   headers,
	}
	h.Store.Emit(reqMsg)
	h.recordExchange("request")

	// Step 2: mode probe. Only Paused triggers interception; Intercepting is
	// a display label the handler never reads (spec.md §3, §9).
	if h.Mode.Load() != rpc.ModePaused {
		return h.forwardAndEgress(ctx, headers, body, reqID)
	}

	// Step 3: interception. PendingDepth counts requests waiting here for a
	// decision.
	if h.Metrics != nil {
		h.Metrics.PendingDepth.Inc()
	}
	result := h.Broker.Intercept(ctx, reqMsg)
	if h.Metrics != nil {
		h.Metrics.PendingDepth.Dec()
	}
	decision := result.Decision
	if result.TimedOut && h.Metrics != nil {
		h.Metrics.InterceptTimeoutsTotal.Inc()
	}
	switch decision.Kind {
	case rpc.DecisionBlock:
		// Per spec, Block does not produce a stored Response half: the
		// exchange started at ingress is left unfulfilled.
		h.recordDecision("block")
		return h.blockReply(reqID)
	case rpc.DecisionComplete:
		h.recordDecision("complete")
		status := http.StatusOK
		if result.TimedOut {
			status = intercept.TimeoutStatus
		}
		return h.completeFromOperator(reqID, now, decision.Response, status)
	case rpc.DecisionAllow:
		h.recordDecision("allow")
		mutatedBody := body
		if decision.Body != nil {
			mutatedBody = decision.Body
		}
		mutatedHeaders := headers
		if decision.Headers != nil {
			mutatedHeaders = decision.Headers
		}
		return h.forwardAndEgress(ctx, mutatedHeaders, mutatedBody, reqID)
	default:
		return h.blockReply(reqID)
	}
}

// blockReply implements the Block branch of step 3: the client is told the
// request was blocked, but (per spec.md §8 scenario 4) no Response Message
// is emitted — the exchange created at ingress stays unfulfilled.
func (h *Handler) blockReply(reqID json.RawMessage) Reply {
	errObj, _ := json.Marshal(map[string]interface{}{"code": -32603, "message": "Request blocked by user"})
	body, _ := json.Marshal(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      idOrNull(reqID),
		"error":   errObj,
	})
	return Reply{Status: http.StatusOK, Body: body}
}

// forwardAndEgress implements steps 4-5: call the forwarder, emit the
// resulting response Message to the store, and hand back the client reply.
func (h *Handler) forwardAndEgress(ctx context.Context, headers map[string]string, body json.RawMessage, reqID json.RawMessage) Reply {
	target := h.Target()
	if target == "" {
		return h.replyWithError(reqID, time.Now(), -32603, "Failed to connect to target server", http.StatusBadGateway)
	}

	start := time.Now()
	upstreamReply, respMsg := h.Upstream.Forward(ctx, headers, body, target)
	if h.Metrics != nil {
		h.Metrics.ForwardLatencySeconds.Observe(time.Since(start).Seconds())
	}
	h.Store.Emit(respMsg)
	h.recordExchange("response")

	return Reply{Status: upstreamReply.Status, Body: upstreamReply.Body}
}

// recordExchange increments Metrics.ExchangesTotal for direction, a no-op
// when no Metrics is configured.
func (h *Handler) recordExchange(direction string) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.ExchangesTotal.WithLabelValues(direction).Inc()
}

// recordDecision increments Metrics.DecisionsTotal for kind, a no-op when no
// Metrics is configured.
func (h *Handler) recordDecision(kind string) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.DecisionsTotal.WithLabelValues(kind).Inc()
}

// completeFromOperator implements the Complete branch of step 3: the
// operator supplies the full JSON-RPC response, which is emitted as a
// synthetic Response message and echoed back verbatim to the client.
func (h *Handler) completeFromOperator(reqID json.RawMessage, ts time.Time, response json.RawMessage, status int) Reply {
	headers := map[string]string{
		"content-type":      "application/json",
		"x-proxy-completed": "true",
	}
	respMsg := rpc.Message{
		ID:        idOrField(response, "id", reqID),
		Result:    extractField(response, "result"),
		Error:     extractField(response, "error"),
		Timestamp: ts,
		Direction: rpc.DirectionResponse,
		Transport: rpc.TransportHTTP,
		Headers:   headers,
	}
	h.Store.Emit(respMsg)
	h.recordExchange("response")

	return Reply{Status: status, Body: response, Headers: headers}
}

func (h *Handler) replyWithError(reqID json.RawMessage, ts time.Time, code int, message string, status int) Reply {
	errObj, _ := json.Marshal(map[string]interface{}{"code": code, "message": message})
	respMsg := rpc.Message{
		ID:        reqID,
		Error:     errObj,
		Timestamp: ts,
		Direction: rpc.DirectionResponse,
		Transport: rpc.TransportHTTP,
	}
	h.Store.Emit(respMsg)
	h.recordExchange("response")

	body, _ := json.Marshal(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      idOrNull(reqID),
		"error":   errObj,
	})
	return Reply{Status: status, Body: body}
}

func extractID(body json.RawMessage) json.RawMessage { return extractField(body, "id") }

func extractField(body json.RawMessage, key string) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil
	}
	return obj[key]
}

func extractMethod(body json.RawMessage) *string {
	raw := extractField(body, "method")
	if raw == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func idOrField(body json.RawMessage, key string, fallback json.RawMessage) json.RawMessage {
	if v := extractField(body, key); v != nil {
		return v
	}
	return fallback
}

func idOrNull(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
