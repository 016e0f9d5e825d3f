// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package controller implements the controller state (spec component C7):
// app mode, the pending queue, selection and filter state, edit buffers, and
// decision dispatch. It is designed to run single-threaded on the UI loop
// (spec.md §5): every exported method except the channel endpoints handed to
// producers is meant to be called from one goroutine.
package controller

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aleutianlabs/jrpcproxy/internal/rpc"
	"github.com/aleutianlabs/jrpcproxy/internal/store"
)

// pendingBuffer sizes the pending-request ingress channel; like the store's
// ingress, sends are non-blocking and never fatal to the request path.
const pendingBuffer = 256

// Store is the subset of *store.Store the controller needs.
type Store interface {
	Exchanges() []rpc.Exchange
	Tick()
}

// Controller owns the operator-facing view of the proxy: pending requests
// awaiting a decision, the current AppMode, and the exchange table's
// selection/filter state. It is the only writer of AppMode; the request
// handler only ever reads it.
type Controller struct {
	store     Store
	mode      *rpc.ModeGate
	pendingCh chan rpc.PendingRequest

	pending         []rpc.PendingRequest
	selectedPending int

	selectedExchange int
	filterText       string

	editedBodies  map[string]string
	editedHeaders map[string]string

	validate *validator.Validate
}

// New returns a Controller that drains pendingCh (shared with the broker)
// and s on each Tick.
func New(s Store, mode *rpc.ModeGate) *Controller {
	return &Controller{
		store:         s,
		mode:          mode,
		pendingCh:     make(chan rpc.PendingRequest, pendingBuffer),
		editedBodies:  make(map[string]string),
		editedHeaders: make(map[string]string),
		validate:      validator.New(),
	}
}

// PendingSink returns the channel the interception broker publishes onto.
func (c *Controller) PendingSink() chan<- rpc.PendingRequest { return c.pendingCh }

// Tick drains both the store's message ingress and the controller's own
// pending ingress, per spec.md §5 ("C7 drains both channels on each UI
// tick"). Safe to call only from the UI loop goroutine.
func (c *Controller) Tick() {
	c.store.Tick()
	for {
		select {
		case p := <-c.pendingCh:
			c.pending = append(c.pending, p)
		default:
			return
		}
	}
}

// Mode returns the current app mode.
func (c *Controller) Mode() rpc.AppMode { return c.mode.Load() }

// SetMode writes the app mode. Per spec.md §3, Intercepting is a display
// label computed by the caller (typically: Paused with len(Pending) > 0);
// the controller does not derive it automatically so the UI can choose when
// to show it.
func (c *Controller) SetMode(mode rpc.AppMode) { c.mode.Store(mode) }

// Exchanges returns every exchange the store has absorbed so far.
func (c *Controller) Exchanges() []rpc.Exchange { return c.store.Exchanges() }

// FilteredExchanges returns exchanges whose method or id contains the
// current filter text (case-insensitive substring match), supplementing the
// original's filter_text/apply_filter behavior. An empty filter matches
// everything.
func (c *Controller) FilteredExchanges() []rpc.Exchange {
	all := c.store.Exchanges()
	if c.filterText == "" {
		return all
	}
	needle := strings.ToLower(c.filterText)
	out := make([]rpc.Exchange, 0, len(all))
	for _, e := range all {
		if matchesFilter(e, needle) {
			out = append(out, e)
		}
	}
	return out
}

func matchesFilter(e rpc.Exchange, needle string) bool {
	if e.Method != nil && strings.Contains(strings.ToLower(*e.Method), needle) {
		return true
	}
	return strings.Contains(strings.ToLower(string(e.ID)), needle)
}

// FilterText returns the active filter.
func (c *Controller) FilterText() string { return c.filterText }

// SetFilterText replaces the active filter.
func (c *Controller) SetFilterText(text string) { c.filterText = text }

// Pending returns a snapshot of the pending-request queue.
func (c *Controller) Pending() []rpc.PendingRequest {
	out := make([]rpc.PendingRequest, len(c.pending))
	copy(out, c.pending)
	return out
}

// SelectedPending returns the index of the currently selected pending entry.
func (c *Controller) SelectedPending() int { return c.selectedPending }

// SelectNextPending advances the selection, wrapping around.
func (c *Controller) SelectNextPending() {
	if len(c.pending) == 0 {
		return
	}
	c.selectedPending = (c.selectedPending + 1) % len(c.pending)
}

// SelectPreviousPending retreats the selection, wrapping around.
func (c *Controller) SelectPreviousPending() {
	if len(c.pending) == 0 {
		return
	}
	if c.selectedPending == 0 {
		c.selectedPending = len(c.pending) - 1
	} else {
		c.selectedPending--
	}
}

// removeSelected drops the pending entry at the current selection and
// clamps the selection so it keeps pointing at a valid index (or 0 when the
// queue has emptied), matching the original's selection-under-mutation
// discipline.
func (c *Controller) removeSelected() rpc.PendingRequest {
	p := c.pending[c.selectedPending]
	c.pending = append(c.pending[:c.selectedPending], c.pending[c.selectedPending+1:]...)
	delete(c.editedBodies, p.ID)
	delete(c.editedHeaders, p.ID)
	if c.selectedPending > 0 && c.selectedPending >= len(c.pending) {
		c.selectedPending--
	}
	return p
}

// AllowSelected dispatches an Allow decision for the selected pending entry.
// If an edit buffer exists for it, its body is parsed as plain JSON (schema
// unvalidated, per spec.md §9: a mistyped edit never wedges the request —
// it just falls back to the original body) and its headers are parsed as
// "key: value" lines.
func (c *Controller) AllowSelected() error {
	if c.selectedPending >= len(c.pending) {
		return fmt.Errorf("controller: no pending request selected")
	}
	id := c.pending[c.selectedPending].ID

	var body json.RawMessage
	if text, ok := c.editedBodies[id]; ok {
		var v interface{}
		if err := json.Unmarshal([]byte(text), &v); err == nil {
			body = json.RawMessage(text)
		}
	}
	var headers map[string]string
	if text, ok := c.editedHeaders[id]; ok {
		if parsed, err := parseHeaderLines(text); err == nil {
			headers = parsed
		}
	}

	p := c.removeSelected()
	p.ReplyTo <- rpc.Allow(body, headers)
	return nil
}

// BlockSelected dispatches a Block decision for the selected pending entry.
func (c *Controller) BlockSelected() error {
	if c.selectedPending >= len(c.pending) {
		return fmt.Errorf("controller: no pending request selected")
	}
	p := c.removeSelected()
	p.ReplyTo <- rpc.Block()
	return nil
}

// completeResponseShape is the schema a Complete decision's operator-typed
// response must satisfy: a well-formed JSON-RPC 2.0 response with exactly
// one of result/error.
type completeResponseShape struct {
	JSONRPC string          `json:"jsonrpc" validate:"required,eq=2.0"`
	ID      json.RawMessage `json:"id" validate:"required"`
	Result  json.RawMessage `json:"result" validate:"required_without=Error,excluded_with=Error"`
	Error   json.RawMessage `json:"error" validate:"required_without=Result,excluded_with=Result"`
}

// CompleteSelected validates responseJSON against completeResponseShape and,
// on success, dispatches a Complete decision for the selected pending entry.
// On validation failure the pending entry is left untouched and an error is
// returned describing the problem.
func (c *Controller) CompleteSelected(responseJSON string) error {
	if c.selectedPending >= len(c.pending) {
		return fmt.Errorf("controller: no pending request selected")
	}

	var shape completeResponseShape
	if err := json.Unmarshal([]byte(responseJSON), &shape); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := c.validate.Struct(shape); err != nil {
		return fmt.Errorf("invalid JSON-RPC response: %w", err)
	}

	p := c.removeSelected()
	p.ReplyTo <- rpc.Complete(json.RawMessage(responseJSON))
	return nil
}

// ResumeAll allows every pending request with no edits, empties the queue,
// resets selection to 0, and returns the mode to Normal, per spec.md §8's
// resume_all invariant.
func (c *Controller) ResumeAll() {
	for _, p := range c.pending {
		p.ReplyTo <- rpc.Allow(nil, nil)
	}
	c.pending = nil
	c.selectedPending = 0
	c.editedBodies = make(map[string]string)
	c.editedHeaders = make(map[string]string)
	c.mode.Store(rpc.ModeNormal)
}

// editedRequestShape is the schema an operator-edited request body must
// satisfy for ApplyEditedBody to accept it.
type editedRequestShape struct {
	JSONRPC string          `json:"jsonrpc" validate:"required,eq=2.0"`
	Method  string          `json:"method" validate:"required"`
	ID      json.RawMessage `json:"id"`
	Params  json.RawMessage `json:"params"`
}

// ApplyEditedBody validates edited as a JSON-RPC request (valid JSON,
// jsonrpc == "2.0", method present) and, on success, stores it as the edit
// buffer for the pending entry identified by pendingID. On failure the
// existing edit buffer (if any) is left unchanged and an error is returned,
// per spec.md §8's "operator never wedges a request" invariant.
func (c *Controller) ApplyEditedBody(pendingID string, edited string) error {
	var shape editedRequestShape
	if err := json.Unmarshal([]byte(edited), &shape); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := c.validate.Struct(shape); err != nil {
		return fmt.Errorf("invalid JSON-RPC request: %w", err)
	}
	c.editedBodies[pendingID] = edited
	return nil
}

// ApplyEditedHeaders parses edited as newline-delimited "key: value" pairs
// (blank lines and lines starting with # are ignored) and, on success,
// stores the result as the header edit buffer for pendingID.
func (c *Controller) ApplyEditedHeaders(pendingID string, edited string) error {
	if _, err := parseHeaderLines(edited); err != nil {
		return err
	}
	c.editedHeaders[pendingID] = edited
	return nil
}

func parseHeaderLines(text string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid header format: %q (use 'key: value')", line)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			return nil, fmt.Errorf("invalid header format: %q (use 'key: value')", line)
		}
		headers[key] = value
	}
	return headers, nil
}
