// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package forwarder implements the upstream HTTP leg of the proxy (spec
// component C2): it issues the POST to the configured target, classifies
// whatever comes back, and produces both a client-facing reply and a
// Message record for the store.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aleutianlabs/jrpcproxy/internal/rpc"
)

// hopByHopDenylist is applied after any operator mutation, per spec.md §4.1.
var hopByHopDenylist = map[string]struct{}{
	"host":              {},
	"content-length":    {},
	"transfer-encoding": {},
	"connection":        {},
}

// ShouldForwardHeader reports whether a header name (compared
// case-insensitively) is eligible to be forwarded upstream.
func ShouldForwardHeader(name string) bool {
	_, denied := hopByHopDenylist[strings.ToLower(name)]
	return !denied
}

// Reply is what the client-facing handler writes back: an HTTP status and a
// raw JSON body.
type Reply struct {
	Status int
	Body   json.RawMessage
}

// Forwarder issues upstream POSTs using a shared *http.Client, matching the
// teacher's pattern of a long-lived client with a fixed timeout rather than
// a fresh client per call.
type Forwarder struct {
	client *http.Client
}

// New returns a Forwarder whose upstream calls time out after timeout.
func New(timeout time.Duration) *Forwarder {
	return &Forwarder{client: &http.Client{Timeout: timeout}}
}

// Forward sends body to targetURL with the given headers (already
// operator-approved; the hop-by-hop denylist is applied here, last). It
// returns the reply to hand back to the client and the Message to emit to
// the store. body is transmitted verbatim: the engine never rewrites
// jsonrpc/id/method/params.
func (f *Forwarder) Forward(ctx context.Context, headers map[string]string, body json.RawMessage, targetURL string) (Reply, rpc.Message) {
	requestID := extractID(body)
	now := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return f.transportFailure(requestID, now)
	}
	for name, value := range headers {
		if ShouldForwardHeader(name) {
			req.Header.Set(name, value)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return f.transportFailure(requestID, now)
	}
	defer resp.Body.Close()

	respHeaders := collectHeaders(resp.Header)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return f.readFailure(requestID, respHeaders, now)
	}

	fields, parseErr := validJSON(respBody)
	if parseErr == nil {
		return f.validResponse(resp.StatusCode, respBody, fields, respHeaders, now)
	}
	return f.malformedResponse(resp.StatusCode, requestID, respBody, resp.Header.Get("Content-Type"), parseErr, respHeaders, targetURL, now)
}

func (f *Forwarder) transportFailure(requestID json.RawMessage, ts time.Time) (Reply, rpc.Message) {
	errObj := errorObject(-32603, "Failed to connect to target server")
	msg := rpc.Message{
		ID:        requestID,
		Error:     errObj,
		Direction: rpc.DirectionResponse,
		Transport: rpc.TransportHTTP,
		Timestamp: ts,
	}
	reply := Reply{Status: http.StatusBadGateway, Body: envelope(requestID, nil, errObj)}
	return reply, msg
}

func (f *Forwarder) readFailure(requestID json.RawMessage, headers map[string]string, ts time.Time) (Reply, rpc.Message) {
	errObj := errorObject(-32603, "Internal error - failed to read response")
	msg := rpc.Message{
		ID:        requestID,
		Error:     errObj,
		Direction: rpc.DirectionResponse,
		Transport: rpc.TransportHTTP,
		Timestamp: ts,
		Headers:   headers,
	}
	reply := Reply{Status: http.StatusInternalServerError, Body: envelope(requestID, nil, errObj)}
	return reply, msg
}

func (f *Forwarder) validResponse(status int, body []byte, fields map[string]json.RawMessage, headers map[string]string, ts time.Time) (Reply, rpc.Message) {
	msg := rpc.Message{
		ID:        fields["id"],
		Result:    fields["result"],
		Error:     fields["error"],
		Direction: rpc.DirectionResponse,
		Transport: rpc.TransportHTTP,
		Timestamp: ts,
		Headers:   headers,
	}
	return Reply{Status: status, Body: json.RawMessage(body)}, msg
}

func (f *Forwarder) malformedResponse(status int, requestID json.RawMessage, body []byte, contentType string, parseErr error, headers map[string]string, targetURL string, ts time.Time) (Reply, rpc.Message) {
	diag := classifyMalformedBody(body, contentType, parseErr, targetURL)
	message := invalidJSONMessage(status)

	fullErr := errorObjectWithData(-32700, message, diag)
	msg := rpc.Message{
		ID:        requestID,
		Error:     fullErr,
		Direction: rpc.DirectionResponse,
		Transport: rpc.TransportHTTP,
		Timestamp: ts,
		Headers:   headers,
	}

	// The client-facing envelope carries a trimmed data payload: operators
	// get the full diagnostic in the store; downstream JSON-RPC clients get
	// just enough to branch on.
	clientErr := errorObjectWithData(-32700, message, struct {
		IssueType    string `json:"issue_type"`
		ContentType  string `json:"content_type"`
		HasNullBytes bool   `json:"has_null_bytes"`
	}{string(diag.IssueType), diag.ContentType, diag.HasNullBytes})

	reply := Reply{Status: http.StatusOK, Body: envelope(requestID, nil, clientErr)}
	return reply, msg
}

func invalidJSONMessage(status int) string {
	return "Invalid JSON response from server (HTTP " + strconv.Itoa(status) + ")"
}

func collectHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}

func extractID(body json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil
	}
	return obj["id"]
}

func errorObject(code int, message string) json.RawMessage {
	b, _ := json.Marshal(map[string]interface{}{
		"code":    code,
		"message": message,
	})
	return b
}

func errorObjectWithData(code int, message string, data interface{}) json.RawMessage {
	b, _ := json.Marshal(map[string]interface{}{
		"code":    code,
		"message": message,
		"data":    data,
	})
	return b
}

func envelope(id json.RawMessage, result json.RawMessage, errObj json.RawMessage) json.RawMessage {
	obj := map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
	}
	if id != nil {
		obj["id"] = id
	} else {
		obj["id"] = json.RawMessage("null")
	}
	if errObj != nil {
		obj["error"] = errObj
	} else if result != nil {
		obj["result"] = result
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return json.RawMessage(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal encoding error"}}`)
	}
	return b
}

// ErrEmptyTarget names the empty-target configuration error. The engine does
// not return it: when the target URL is empty it skips Forward and answers
// the client itself with the -32603 / HTTP 502 transport-failure reply.
var ErrEmptyTarget = errors.New("forwarder: target url is empty")
