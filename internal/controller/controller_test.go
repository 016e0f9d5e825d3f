// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package controller

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleutianlabs/jrpcproxy/internal/rpc"
)

type fakeStore struct {
	exchanges []rpc.Exchange
	ticks     int
}

func (f *fakeStore) Exchanges() []rpc.Exchange { return f.exchanges }
func (f *fakeStore) Tick()                     { f.ticks++ }

func newTestController() (*Controller, *fakeStore) {
	s := &fakeStore{}
	return New(s, rpc.NewModeGate()), s
}

func pushPending(c *Controller, id string, method string) <-chan rpc.Decision {
	reply := make(chan rpc.Decision, 1)
	m := method
	c.PendingSink() <- rpc.PendingRequest{
		ID:       id,
		Original: rpc.Message{ID: json.RawMessage(`1`), Method: &m},
		ReplyTo:  reply,
	}
	c.Tick()
	return reply
}

func TestTick_DrainsStoreAndPendingChannel(t *testing.T) {
	c, s := newTestController()
	reply := pushPending(c, "p1", "ping")

	assert.Equal(t, 1, s.ticks)
	require.Len(t, c.Pending(), 1)
	_ = reply
}

func TestSetMode_ReadBackViaMode(t *testing.T) {
	c, _ := newTestController()
	assert.Equal(t, rpc.ModeNormal, c.Mode())
	c.SetMode(rpc.ModePaused)
	assert.Equal(t, rpc.ModePaused, c.Mode())
}

func TestAllowSelected_NoEditUsesOriginal(t *testing.T) {
	c, _ := newTestController()
	reply := pushPending(c, "p1", "ping")

	require.NoError(t, c.AllowSelected())
	decision := <-reply
	assert.Equal(t, rpc.DecisionAllow, decision.Kind)
	assert.Nil(t, decision.Body)
	assert.Nil(t, decision.Headers)
	assert.Empty(t, c.Pending())
}

func TestAllowSelected_WithEditedBodyForwardsMutation(t *testing.T) {
	c, _ := newTestController()
	reply := pushPending(c, "p1", "ping")

	require.NoError(t, c.ApplyEditedBody("p1", `{"jsonrpc":"2.0","method":"ping","params":[2],"id":1}`))
	require.NoError(t, c.AllowSelected())

	decision := <-reply
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"ping","params":[2],"id":1}`, string(decision.Body))
}

func TestApplyEditedBody_RejectsMissingMethod(t *testing.T) {
	c, _ := newTestController()
	pushPending(c, "p1", "ping")

	err := c.ApplyEditedBody("p1", `{"jsonrpc":"2.0","id":1}`)
	assert.Error(t, err)
}

func TestApplyEditedBody_RejectsMalformedJSON(t *testing.T) {
	c, _ := newTestController()
	pushPending(c, "p1", "ping")

	err := c.ApplyEditedBody("p1", `not json`)
	assert.Error(t, err)
}

func TestBlockSelected_DispatchesBlock(t *testing.T) {
	c, _ := newTestController()
	reply := pushPending(c, "p1", "ping")

	require.NoError(t, c.BlockSelected())
	decision := <-reply
	assert.Equal(t, rpc.DecisionBlock, decision.Kind)
	assert.Empty(t, c.Pending())
}

func TestCompleteSelected_ValidatesJSONRPCShape(t *testing.T) {
	c, _ := newTestController()
	reply := pushPending(c, "p1", "ping")

	err := c.CompleteSelected(`{"jsonrpc":"2.0","id":1,"result":42}`)
	require.NoError(t, err)
	decision := <-reply
	assert.Equal(t, rpc.DecisionComplete, decision.Kind)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":42}`, string(decision.Response))
}

func TestCompleteSelected_RejectsBothResultAndError(t *testing.T) {
	c, _ := newTestController()
	pushPending(c, "p1", "ping")

	err := c.CompleteSelected(`{"jsonrpc":"2.0","id":1,"result":42,"error":{"code":1,"message":"x"}}`)
	assert.Error(t, err)
	assert.Len(t, c.Pending(), 1, "pending entry is untouched on validation failure")
}

func TestCompleteSelected_RejectsNeitherResultNorError(t *testing.T) {
	c, _ := newTestController()
	pushPending(c, "p1", "ping")

	err := c.CompleteSelected(`{"jsonrpc":"2.0","id":1}`)
	assert.Error(t, err)
}

func TestResumeAll_EmptiesQueueResetsSelectionAndMode(t *testing.T) {
	c, _ := newTestController()
	r1 := pushPending(c, "p1", "a")
	r2 := pushPending(c, "p2", "b")
	c.SetMode(rpc.ModePaused)

	c.ResumeAll()

	assert.Empty(t, c.Pending())
	assert.Equal(t, 0, c.SelectedPending())
	assert.Equal(t, rpc.ModeNormal, c.Mode())

	d1 := <-r1
	d2 := <-r2
	assert.Equal(t, rpc.DecisionAllow, d1.Kind)
	assert.Equal(t, rpc.DecisionAllow, d2.Kind)
}

func TestSelectionClampsWhenLastEntryRemoved(t *testing.T) {
	c, _ := newTestController()
	r1 := pushPending(c, "p1", "a")
	_ = pushPending(c, "p2", "b")

	c.SelectNextPending()
	assert.Equal(t, 1, c.SelectedPending())

	require.NoError(t, c.BlockSelected())
	assert.Equal(t, 0, c.SelectedPending())

	require.NoError(t, c.BlockSelected())
	d1 := <-r1
	assert.Equal(t, rpc.DecisionBlock, d1.Kind)
}

func TestFilteredExchanges_MatchesMethodSubstring(t *testing.T) {
	method := "ping"
	other := "pong"
	s := &fakeStore{exchanges: []rpc.Exchange{
		{ID: json.RawMessage("1"), Method: &method},
		{ID: json.RawMessage("2"), Method: &other},
	}}
	c := New(s, rpc.NewModeGate())
	c.SetFilterText("ping")

	filtered := c.FilteredExchanges()
	require.Len(t, filtered, 1)
	assert.Equal(t, &method, filtered[0].Method)
}

func TestApplyEditedHeaders_RejectsInvalidFormat(t *testing.T) {
	c, _ := newTestController()
	pushPending(c, "p1", "ping")

	err := c.ApplyEditedHeaders("p1", "not-a-header-line")
	assert.Error(t, err)
}

func TestApplyEditedHeaders_ParsesValidLines(t *testing.T) {
	c, _ := newTestController()
	reply := pushPending(c, "p1", "ping")

	require.NoError(t, c.ApplyEditedHeaders("p1", "authorization: Bearer xyz\n# comment\nx-custom: 1"))
	require.NoError(t, c.AllowSelected())

	decision := <-reply
	assert.Equal(t, "Bearer xyz", decision.Headers["authorization"])
	assert.Equal(t, "1", decision.Headers["x-custom"])
}
