// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModeGate_DefaultsToNormal(t *testing.T) {
	g := NewModeGate()
	assert.Equal(t, ModeNormal, g.Load())
}

func TestModeGate_StoreThenLoad(t *testing.T) {
	g := NewModeGate()
	g.Store(ModePaused)
	assert.Equal(t, ModePaused, g.Load())
}

func TestPendingRequest_ReplyToDeliversDecision(t *testing.T) {
	ch := make(chan Decision, 1)
	pr := PendingRequest{ID: "abc", ReplyTo: ch}
	pr.ReplyTo <- Block()

	got := <-ch
	assert.Equal(t, DecisionBlock, got.Kind)
}
