// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rpc defines the data model shared by every stage of the proxy
// pipeline: captured messages, paired exchanges, pending interceptions, and
// the decisions an operator can render against them.
//
// # Thread Safety
//
// Message and Exchange values are treated as immutable once emitted to the
// store (see internal/store) and are safe to read concurrently. ModeGate is
// the one mutable type in this package designed for concurrent access; it
// guards app mode with a short-held mutex.
package rpc

import (
	"encoding/json"
	"time"
)

// Direction identifies which leg of an exchange a Message represents.
type Direction string

const (
	// DirectionRequest marks a message captured on the client-to-proxy leg.
	DirectionRequest Direction = "request"

	// DirectionResponse marks a message captured on the proxy-to-client leg.
	DirectionResponse Direction = "response"
)

// Transport identifies the wire transport a Message arrived over.
//
// Only TransportHTTP is ever produced by this engine. TransportWebSocket is
// reserved so the pairing logic in the store package stays transport-agnostic
// for a future engine; no code here opens or speaks WebSocket.
type Transport string

const (
	TransportHTTP      Transport = "http"
	TransportWebSocket Transport = "websocket"
)

// Message is a captured JSON-RPC record. Once handed to the store's ingress
// channel, a Message must not be mutated by its sender.
type Message struct {
	// ID is the JSON-RPC request/response id, any JSON value (string, number,
	// or null/absent). Carried as raw JSON so structural equality (numeric vs.
	// string) is preserved for pairing.
	ID json.RawMessage

	Method *string
	Params json.RawMessage
	Result json.RawMessage
	Error  json.RawMessage

	Timestamp time.Time
	Direction Direction
	Transport Transport

	// Headers is case-preserving: keys are stored exactly as received.
	Headers map[string]string
}

// HasID reports whether the message carries a non-absent id field.
func (m Message) HasID() bool {
	return len(m.ID) > 0
}

// IDEqual reports whether two raw JSON ids are structurally equal, including
// the numeric/string distinction (1 and "1" are not equal).
func IDEqual(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var av, bv interface{}
	if err := json.Unmarshal(a, &av); err != nil {
		return string(a) == string(b)
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return string(a) == string(b)
	}
	return deepEqualJSON(av, bv)
}

func deepEqualJSON(a, b interface{}) bool {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqualJSON(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !deepEqualJSON(v, bvv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
