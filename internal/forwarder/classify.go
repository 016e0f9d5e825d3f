// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package forwarder

import (
	"encoding/json"
	"fmt"
	"strings"
)

// issueType names the four reasons (plus the catch-all) an upstream body
// fails to parse as JSON, per spec.md §4.1 branch 4.
type issueType string

const (
	issueEmptyResponse issueType = "empty_response"
	issueBinaryData    issueType = "binary_data"
	issueHTMLResponse  issueType = "html_response"
	issueMalformedJSON issueType = "malformed_json"
	issueUnknownFormat issueType = "unknown_format"
)

// malformedDiagnostic is the `data` payload attached to the -32700 error
// message emitted to the store (and, with fewer fields, echoed to the
// client).
type malformedDiagnostic struct {
	IssueType       issueType `json:"issue_type"`
	ContentType     string    `json:"content_type"`
	ResponsePreview string    `json:"response_preview"`
	ResponseLength  int       `json:"response_length"`
	HasNullBytes    bool      `json:"has_null_bytes"`
	ParseError      string    `json:"parse_error"`
	TargetURL       string    `json:"target_url"`
}

// classifyMalformedBody analyzes an upstream body that failed to parse as
// JSON and builds the diagnostic the engine attaches to both the stored
// Message and (a trimmed copy of) the client reply.
func classifyMalformedBody(body []byte, contentType string, parseErr error, targetURL string) malformedDiagnostic {
	hasNull := strings.ContainsRune(string(body), '\x00')
	trimmed := strings.TrimSpace(string(body))
	isEmpty := trimmed == ""

	var issue issueType
	switch {
	case isEmpty:
		issue = issueEmptyResponse
	case hasNull:
		issue = issueBinaryData
	case strings.Contains(contentType, "text/html"):
		issue = issueHTMLResponse
	case strings.Contains(contentType, "application/json"):
		issue = issueMalformedJSON
	default:
		issue = issueUnknownFormat
	}

	if contentType == "" {
		contentType = "unknown"
	}

	return malformedDiagnostic{
		IssueType:       issue,
		ContentType:     contentType,
		ResponsePreview: previewBody(body, hasNull),
		ResponseLength:  len(body),
		HasNullBytes:    hasNull,
		ParseError:      parseErr.Error(),
		TargetURL:       targetURL,
	}
}

// previewBody builds a safe-to-display slice of the body: hex of the first
// 50 bytes when binary, up to 500 chars when JSON-shaped, else up to 200
// chars.
func previewBody(body []byte, hasNull bool) string {
	switch {
	case hasNull:
		n := len(body)
		if n > 50 {
			n = 50
		}
		return fmt.Sprintf("Binary data: %x...", body[:n])
	case looksJSONShaped(body):
		if len(body) > 500 {
			return string(body[:500]) + "..."
		}
		return string(body)
	default:
		if len(body) > 200 {
			return string(body[:200]) + "..."
		}
		return string(body)
	}
}

func looksJSONShaped(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// validJSON reports whether body parses as any valid JSON value (object,
// array, number, string, bool, or null), matching the original's
// serde_json::Value parsing. Only object-shaped bodies have fields to
// extract id/result/error from; other valid shapes return a nil field map
// with a nil error, so the caller still treats them as valid JSON rather
// than routing them to the malformed branch.
func validJSON(body []byte) (map[string]json.RawMessage, error) {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	if _, isObject := v.(map[string]interface{}); !isObject {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}
