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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeMessage_StripsControlAndNonASCII(t *testing.T) {
	m := &Message{Error: []byte(`{"code":-32700,"message":"bad","data":"ok\u0007ébad"}`)}
	SanitizeMessage(m)

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(m.Error, &obj))
	data, ok := obj["data"].(string)
	require.True(t, ok)
	assert.Equal(t, "okbad", data)
}

func TestSanitizeMessage_PreservesNewlineAndTab(t *testing.T) {
	m := &Message{Error: []byte(`{"data":"line1\nline2\tend"}`)}
	SanitizeMessage(m)

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(m.Error, &obj))
	assert.Equal(t, "line1\nline2\tend", obj["data"])
}

func TestSanitizeMessage_TruncatesTo500(t *testing.T) {
	long := strings.Repeat("a", 800)
	m := &Message{Error: []byte(`{"data":"` + long + `"}`)}
	SanitizeMessage(m)

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(m.Error, &obj))
	data := obj["data"].(string)
	assert.Len(t, data, 500)
}

func TestSanitizeMessage_NonStringDataUntouched(t *testing.T) {
	m := &Message{Error: []byte(`{"data":{"nested":true}}`)}
	original := string(m.Error)
	SanitizeMessage(m)
	assert.Equal(t, original, string(m.Error))
}

func TestSanitizeMessage_NoErrorIsNoop(t *testing.T) {
	m := &Message{}
	SanitizeMessage(m)
	assert.Nil(t, m.Error)
}
