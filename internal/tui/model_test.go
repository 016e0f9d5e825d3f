// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tui

import (
	"encoding/json"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleutianlabs/jrpcproxy/internal/controller"
	"github.com/aleutianlabs/jrpcproxy/internal/rpc"
)

type fakeStore struct{ exchanges []rpc.Exchange }

func (f *fakeStore) Exchanges() []rpc.Exchange { return f.exchanges }
func (f *fakeStore) Tick()                     {}

func newTestModel(t *testing.T) (Model, *controller.Controller) {
	t.Helper()
	ctrl := controller.New(&fakeStore{}, rpc.NewModeGate())
	m := New(ctrl, Deps{
		TargetURL: func() string { return "http://upstream" },
	})
	m.ready = true
	return m, ctrl
}

func sendKey(t *testing.T, m Model, key string) Model {
	t.Helper()
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	got, ok := updated.(Model)
	require.True(t, ok)
	return got
}

func TestTogglePause_SwitchesModeAndResumesFromPaused(t *testing.T) {
	m, ctrl := newTestModel(t)
	assert.Equal(t, rpc.ModeNormal, ctrl.Mode())

	m.togglePause()
	assert.Equal(t, rpc.ModePaused, ctrl.Mode())

	m.togglePause()
	assert.Equal(t, rpc.ModeNormal, ctrl.Mode())
}

func TestHandleKey_QSetsQuitting(t *testing.T) {
	m, _ := newTestModel(t)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	got := updated.(Model)

	assert.True(t, got.quitting)
	require.NotNil(t, cmd)
}

func TestHandleKey_AllowWithNoPendingReportsError(t *testing.T) {
	m, _ := newTestModel(t)
	got := sendKey(t, m, "a")
	assert.True(t, got.statusErr)
}

func TestHandleKey_SlashEntersFilterMode(t *testing.T) {
	m, _ := newTestModel(t)
	got := sendKey(t, m, "/")
	assert.True(t, got.filterOn)
}

func TestHandleFilterKey_EnterAppliesFilterToController(t *testing.T) {
	m, ctrl := newTestModel(t)
	m.filterOn = true
	m.filterIn.SetValue("ping")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	got := updated.(Model)

	assert.False(t, got.filterOn)
	assert.Equal(t, "ping", ctrl.FilterText())
}

func TestHandleKey_ROpensResumeConfirmation(t *testing.T) {
	m, _ := newTestModel(t)
	got := sendKey(t, m, "r")
	assert.Equal(t, confirmResume, got.confirming)
	assert.NotNil(t, got.confirmForm)
}

func TestHandleKey_EscCancelsConfirmation(t *testing.T) {
	m, ctrl := newTestModel(t)
	ctrl.SetMode(rpc.ModePaused)
	got := sendKey(t, m, "r")
	require.Equal(t, confirmResume, got.confirming)

	updated, _ := got.Update(tea.KeyMsg{Type: tea.KeyEsc})
	final := updated.(Model)
	assert.Equal(t, confirmNone, final.confirming)
	assert.Equal(t, rpc.ModePaused, ctrl.Mode(), "declining the confirm must not resume")
}

func TestHandleEditorResult_NewRequestDispatchesViaDeps(t *testing.T) {
	var sentBody json.RawMessage
	var sentDirect bool
	m, _ := newTestModel(t)
	m.deps.SendRequest = func(body json.RawMessage, direct bool) error {
		sentBody = body
		sentDirect = direct
		return nil
	}

	updated, _ := m.handleEditorResult(editorResultMsg{
		target:  editTargetNewRequest,
		content: `{"jsonrpc":"2.0","method":"ping","id":1}`,
	})
	got := updated.(Model)

	assert.False(t, got.statusErr)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"ping","id":1}`, string(sentBody))
	assert.False(t, sentDirect, "normal mode sends through the proxy, not direct")
}

func TestHandleEditorResult_EditorErrorSetsStatusErr(t *testing.T) {
	m, _ := newTestModel(t)
	updated, _ := m.handleEditorResult(editorResultMsg{target: editTargetBody, err: assertErr{}})
	got := updated.(Model)
	assert.True(t, got.statusErr)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestView_DoesNotPanicBeforeOrAfterReady(t *testing.T) {
	ctrl := controller.New(&fakeStore{}, rpc.NewModeGate())
	m := New(ctrl, Deps{})
	assert.NotPanics(t, func() { m.View() })

	sized, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	got := sized.(Model)
	assert.NotPanics(t, func() { got.View() })
}
