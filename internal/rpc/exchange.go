// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rpc

import (
	"encoding/json"
	"time"
)

// Exchange pairs a captured request with its eventual response. Either half
// may be absent: a response-only Exchange is created when no unfulfilled
// request shares its id, and a request never gains a response until the
// store matches one to it.
type Exchange struct {
	ID        json.RawMessage
	Method    *string
	Request   *Message
	Response  *Message
	Timestamp time.Time
	Transport Transport
}

// Fulfilled reports whether both halves of the exchange are present.
func (e Exchange) Fulfilled() bool {
	return e.Request != nil && e.Response != nil
}
