// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rpc

import (
	"encoding/json"
	"strings"
)

const errorDataMaxLen = 500

// SanitizeMessage strips non-ASCII and control characters (other than '\n'
// and '\t') from a string-valued error.data field and truncates it to 500
// characters, in place. It is the only value mutation the engine performs on
// captured content, and must run before a Message reaches the store.
func SanitizeMessage(m *Message) {
	if len(m.Error) == 0 {
		return
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(m.Error, &obj); err != nil {
		return
	}
	raw, ok := obj["data"]
	if !ok {
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// data isn't a string; the sanitization invariant only applies to
		// string-valued error.data.
		return
	}
	sanitized := sanitizeString(s)
	if sanitized == s {
		return
	}
	encoded, err := json.Marshal(sanitized)
	if err != nil {
		return
	}
	obj["data"] = encoded
	rewritten, err := json.Marshal(obj)
	if err != nil {
		return
	}
	m.Error = rewritten
}

func sanitizeString(s string) string {
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count >= errorDataMaxLen {
			break
		}
		if r > 0x7F {
			continue
		}
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		if r == 0x7F {
			continue
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}
