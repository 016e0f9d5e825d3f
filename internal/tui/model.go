// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tui implements the interactive terminal UI for jrpcproxy: the
// exchange table, the pending-interception queue, and the decision/edit
// workflow an operator drives against a paused request.
//
// # Thread Safety
//
// Model is designed for single-threaded use within the bubbletea event
// loop, matching the controller it drives (internal/controller is also
// single-goroutine).
package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/aleutianlabs/jrpcproxy/internal/controller"
	"github.com/aleutianlabs/jrpcproxy/internal/rpc"
)

// tickInterval drives the controller's Tick, which drains the store and
// pending-request channels; this is the TUI's only polling loop.
const tickInterval = 100 * time.Millisecond

// focusArea identifies which list arrow keys and enter currently act on.
type focusArea int

const (
	focusExchanges focusArea = iota
	focusPending
)

// tickMsg fires every tickInterval.
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// confirmAction identifies which destructive operation an open confirmation
// form is guarding, per SPEC_FULL.md's huh-confirmation requirement before
// Block and before Resume all.
type confirmAction int

const (
	confirmNone confirmAction = iota
	confirmBlock
	confirmResume
)

func newConfirmForm(prompt string, confirmed *bool) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(prompt).
			Affirmative("Yes").
			Negative("No").
			Value(confirmed),
	))
}

// Deps are the host-provided callbacks the TUI needs but does not itself
// own: injecting a brand-new request (spec.md §4 supplement) and hot-editing
// the target URL both cross into HTTP/server territory that belongs to
// cmd/jrpcproxy, not this package.
type Deps struct {
	// SendRequest dispatches a new JSON-RPC request: through the proxy's own
	// listener in Normal mode (so it is captured like any other traffic), or
	// directly to TargetURL() when paused, to avoid self-interception.
	SendRequest func(body json.RawMessage, direct bool) error

	// TargetURL returns the currently configured upstream target.
	TargetURL func() string

	// SetTargetURL applies a new target, tearing down and restarting the
	// proxy listener with the grace period from internal/server.
	SetTargetURL func(url string) error
}

// Model is the bubbletea model for the whole jrpcproxy TUI.
type Model struct {
	ctrl *controller.Controller
	deps Deps

	width, height int
	ready         bool
	quitting      bool

	focus    focusArea
	detail   viewport.Model
	table    table.Model
	filterIn textinput.Model
	filterOn bool

	editingTarget bool
	targetIn      textinput.Model

	confirming    confirmAction
	confirmForm   *huh.Form
	confirmResult bool

	statusMsg string
	statusErr bool
}

// New builds a Model bound to ctrl, with deps supplying the TUI's two
// escape hatches into transport territory.
func New(ctrl *controller.Controller, deps Deps) Model {
	cols := []table.Column{
		{Title: "Dir", Width: 4},
		{Title: "Method", Width: 24},
		{Title: "ID", Width: 8},
		{Title: "Status", Width: 10},
	}
	t := table.New(table.WithColumns(cols), table.WithFocused(true))

	filterIn := textinput.New()
	filterIn.Placeholder = "filter by method or id"

	targetIn := textinput.New()
	targetIn.Placeholder = "http://localhost:3000"

	return Model{
		ctrl:     ctrl,
		deps:     deps,
		focus:    focusExchanges,
		table:    t,
		filterIn: filterIn,
		targetIn: targetIn,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		headerHeight, footerHeight := 3, 3
		m.detail = viewport.New(m.width, m.height-headerHeight-footerHeight)
		m.table.SetHeight(m.height - headerHeight - footerHeight - 2)
		m.ready = true
		m.refreshDetail()
		return m, nil

	case tickMsg:
		m.ctrl.Tick()
		m.refreshTable()
		m.refreshDetail()
		return m, tick()

	case editorResultMsg:
		return m.handleEditorResult(msg)

	case tea.KeyMsg:
		if m.confirming != confirmNone {
			return m.handleConfirmKey(msg)
		}
		return m.handleKey(msg)
	}

	if m.confirming != confirmNone {
		form, cmd := m.confirmForm.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			m.confirmForm = f
		}
		if m.confirmForm.State == huh.StateCompleted {
			return m.resolveConfirm()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filterOn {
		return m.handleFilterKey(msg)
	}
	if m.editingTarget {
		return m.handleTargetKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "p":
		m.togglePause()
		return m, nil

	case "tab":
		m.toggleFocus()
		return m, nil

	case "/":
		m.filterOn = true
		m.filterIn.SetValue(m.ctrl.FilterText())
		m.filterIn.Focus()
		return m, nil

	case "t":
		m.editingTarget = true
		m.targetIn.SetValue(m.deps.TargetURL())
		m.targetIn.Focus()
		return m, nil

	case "r":
		return m.startConfirm(confirmResume, "Resume all pending requests?")

	case "a":
		if err := m.ctrl.AllowSelected(); err != nil {
			m.setStatus(err.Error(), true)
		} else {
			m.setStatus("allowed", false)
		}
		return m, nil

	case "b":
		return m.startConfirm(confirmBlock, "Block the selected request?")

	case "e":
		return m, m.startEditBody()

	case "h":
		return m, m.startEditHeaders()

	case "c":
		return m, m.startComplete()

	case "n":
		return m, m.startNewRequest()

	case "up", "k":
		m.moveSelection(-1)
		m.refreshDetail()
		return m, nil

	case "down", "j":
		m.moveSelection(1)
		m.refreshDetail()
		return m, nil

	case "g":
		m.detail.GotoTop()
		return m, nil

	case "G":
		m.detail.GotoBottom()
		return m, nil

	case "ctrl+u":
		m.detail.HalfViewUp()
		return m, nil

	case "ctrl+d":
		m.detail.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m *Model) togglePause() {
	if m.ctrl.Mode() == rpc.ModeNormal {
		m.ctrl.SetMode(rpc.ModePaused)
		m.setStatus("paused: new requests will be held for review", false)
	} else {
		m.ctrl.ResumeAll()
		m.setStatus("resumed", false)
	}
}

func (m *Model) toggleFocus() {
	if m.focus == focusExchanges {
		m.focus = focusPending
	} else {
		m.focus = focusExchanges
	}
}

func (m *Model) moveSelection(delta int) {
	if m.focus == focusPending {
		if delta > 0 {
			m.ctrl.SelectNextPending()
		} else {
			m.ctrl.SelectPreviousPending()
		}
		return
	}
	if delta < 0 {
		m.table.MoveUp(-delta)
	} else {
		m.table.MoveDown(delta)
	}
}

// startConfirm opens a huh confirmation form guarding a destructive action
// (Block, Resume all), per SPEC_FULL.md's A4 requirement.
func (m Model) startConfirm(action confirmAction, prompt string) (tea.Model, tea.Cmd) {
	m.confirming = action
	m.confirmResult = false
	m.confirmForm = newConfirmForm(prompt, &m.confirmResult)
	return m, m.confirmForm.Init()
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		m.confirming = confirmNone
		m.confirmForm = nil
		return m, nil
	}
	form, cmd := m.confirmForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.confirmForm = f
	}
	if m.confirmForm.State == huh.StateCompleted {
		return m.resolveConfirm()
	}
	return m, cmd
}

// resolveConfirm applies the pending destructive action if the operator
// confirmed, then closes the confirmation form.
func (m Model) resolveConfirm() (tea.Model, tea.Cmd) {
	action := m.confirming
	confirmed := m.confirmResult
	m.confirming = confirmNone
	m.confirmForm = nil

	if !confirmed {
		m.setStatus("cancelled", false)
		return m, nil
	}

	switch action {
	case confirmBlock:
		if err := m.ctrl.BlockSelected(); err != nil {
			m.setStatus(err.Error(), true)
		} else {
			m.setStatus("blocked", false)
		}
	case confirmResume:
		m.ctrl.ResumeAll()
		m.setStatus("resumed all pending requests", false)
	}
	return m, nil
}

func (m *Model) setStatus(msg string, isErr bool) {
	m.statusMsg = msg
	m.statusErr = isErr
}

// handleFilterKey routes keys while the filter text input has focus.
func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.ctrl.SetFilterText(m.filterIn.Value())
		m.filterOn = false
		m.filterIn.Blur()
		return m, nil
	case "esc":
		m.filterOn = false
		m.filterIn.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.filterIn, cmd = m.filterIn.Update(msg)
	return m, cmd
}

// handleTargetKey routes keys while the target-URL input has focus,
// implementing the target hot-edit supplement from spec.md §4.
func (m Model) handleTargetKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		url := m.targetIn.Value()
		m.editingTarget = false
		m.targetIn.Blur()
		if m.deps.SetTargetURL == nil {
			return m, nil
		}
		if err := m.deps.SetTargetURL(url); err != nil {
			m.setStatus(fmt.Sprintf("failed to apply target: %v", err), true)
		} else {
			m.setStatus(fmt.Sprintf("target set to %s", url), false)
		}
		return m, nil
	case "esc":
		m.editingTarget = false
		m.targetIn.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.targetIn, cmd = m.targetIn.Update(msg)
	return m, cmd
}

func (m Model) startEditBody() tea.Cmd {
	pending := m.ctrl.Pending()
	idx := m.ctrl.SelectedPending()
	if idx >= len(pending) {
		return nil
	}
	p := pending[idx]
	body, _ := json.MarshalIndent(requestAsJSON(p.Original), "", "  ")
	return openEditor(editTargetBody, string(body))
}

func (m Model) startEditHeaders() tea.Cmd {
	pending := m.ctrl.Pending()
	idx := m.ctrl.SelectedPending()
	if idx >= len(pending) {
		return nil
	}
	p := pending[idx]
	var b strings.Builder
	for k, v := range p.Original.Headers {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	return openEditor(editTargetHeaders, b.String())
}

func (m Model) startComplete() tea.Cmd {
	pending := m.ctrl.Pending()
	idx := m.ctrl.SelectedPending()
	if idx >= len(pending) {
		return nil
	}
	p := pending[idx]
	template := fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":"custom response"}`, idOrNull(p.Original.ID))
	var pretty strings.Builder
	if v, err := json.MarshalIndent(json.RawMessage(template), "", "  "); err == nil {
		pretty.Write(v)
	} else {
		pretty.WriteString(template)
	}
	return openEditor(editTargetResponse, pretty.String())
}

func (m Model) startNewRequest() tea.Cmd {
	template := `{
  "jsonrpc": "2.0",
  "method": "your_method",
  "params": [],
  "id": 1
}`
	return openEditor(editTargetNewRequest, template)
}

func (m Model) handleEditorResult(msg editorResultMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.setStatus(fmt.Sprintf("editor error: %v", msg.err), true)
		return m, nil
	}

	switch msg.target {
	case editTargetBody:
		pending := m.ctrl.Pending()
		idx := m.ctrl.SelectedPending()
		if idx >= len(pending) {
			return m, nil
		}
		if err := m.ctrl.ApplyEditedBody(pending[idx].ID, msg.content); err != nil {
			m.setStatus(err.Error(), true)
		} else {
			m.setStatus("body edit applied", false)
		}

	case editTargetHeaders:
		pending := m.ctrl.Pending()
		idx := m.ctrl.SelectedPending()
		if idx >= len(pending) {
			return m, nil
		}
		if err := m.ctrl.ApplyEditedHeaders(pending[idx].ID, msg.content); err != nil {
			m.setStatus(err.Error(), true)
		} else {
			m.setStatus("headers edit applied", false)
		}

	case editTargetResponse:
		if err := m.ctrl.CompleteSelected(msg.content); err != nil {
			m.setStatus(err.Error(), true)
		} else {
			m.setStatus("completed with custom response", false)
		}

	case editTargetNewRequest:
		if m.deps.SendRequest == nil {
			return m, nil
		}
		direct := m.ctrl.Mode() != rpc.ModeNormal
		if err := m.deps.SendRequest(json.RawMessage(msg.content), direct); err != nil {
			m.setStatus(fmt.Sprintf("failed to send request: %v", err), true)
		} else {
			m.setStatus("request sent", false)
		}
	}
	return m, nil
}

func idOrNull(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func requestAsJSON(msg rpc.Message) map[string]json.RawMessage {
	out := map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      idOrNull(msg.ID),
	}
	if msg.Method != nil {
		if b, err := json.Marshal(*msg.Method); err == nil {
			out["method"] = b
		}
	}
	if msg.Params != nil {
		out["params"] = msg.Params
	}
	return out
}

func (m *Model) refreshTable() {
	exchanges := m.ctrl.FilteredExchanges()
	rows := make([]table.Row, 0, len(exchanges))
	for _, e := range exchanges {
		method := ""
		if e.Method != nil {
			method = *e.Method
		}
		status := "pending"
		if e.Fulfilled() {
			status = "ok"
			if e.Response.Error != nil {
				status = "error"
			}
		}
		dir := "req"
		rows = append(rows, table.Row{dir, method, string(e.ID), status})
	}
	m.table.SetRows(rows)
}

func (m *Model) refreshDetail() {
	if !m.ready {
		return
	}
	if m.focus == focusPending {
		m.detail.SetContent(m.renderPendingDetail())
		return
	}
	m.detail.SetContent(m.renderExchangeDetail())
}

func (m Model) renderPendingDetail() string {
	pending := m.ctrl.Pending()
	idx := m.ctrl.SelectedPending()
	if idx >= len(pending) {
		return descStyle.Render("no pending requests")
	}
	p := pending[idx]
	body, _ := json.MarshalIndent(requestAsJSON(p.Original), "", "  ")
	return fmt.Sprintf("%s\n\n%s", methodStyle.Render(methodOf(p.Original)), string(body))
}

func (m Model) renderExchangeDetail() string {
	exchanges := m.ctrl.FilteredExchanges()
	if len(exchanges) == 0 {
		return descStyle.Render("no exchanges recorded yet")
	}
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(exchanges) {
		idx = 0
	}
	e := exchanges[idx]

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", methodStyle.Render(methodOrID(e)))
	if e.Request != nil {
		b.WriteString(headerStyle.Render("request"))
		b.WriteString("\n")
		req, _ := json.MarshalIndent(requestAsJSON(*e.Request), "", "  ")
		b.Write(req)
		b.WriteString("\n\n")
	}
	if e.Response != nil {
		b.WriteString(headerStyle.Render("response"))
		b.WriteString("\n")
		resp := map[string]json.RawMessage{"jsonrpc": json.RawMessage(`"2.0"`), "id": idOrNull(e.Response.ID)}
		if e.Response.Result != nil {
			resp["result"] = e.Response.Result
		}
		if e.Response.Error != nil {
			resp["error"] = e.Response.Error
		}
		respJSON, _ := json.MarshalIndent(resp, "", "  ")
		b.Write(respJSON)
	} else {
		b.WriteString(descStyle.Render("(no response yet)"))
	}
	return b.String()
}

func methodOf(msg rpc.Message) string {
	if msg.Method != nil {
		return *msg.Method
	}
	return "(unknown method)"
}

func methodOrID(e rpc.Exchange) string {
	if e.Method != nil {
		return *e.Method
	}
	return string(e.ID)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return "jrpcproxy exiting.\n"
	}
	if !m.ready {
		return "loading...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch {
	case m.confirming != confirmNone:
		b.WriteString(m.confirmForm.View())
	case m.filterOn:
		b.WriteString(fmt.Sprintf("filter: %s\n", m.filterIn.View()))
	case m.editingTarget:
		b.WriteString(fmt.Sprintf("target: %s\n", m.targetIn.View()))
	default:
		if m.focus == focusExchanges {
			b.WriteString(m.table.View())
		}
		b.WriteString("\n")
		b.WriteString(m.detail.View())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	badge := normalBadge.Render("NORMAL")
	switch m.ctrl.Mode() {
	case rpc.ModePaused:
		if len(m.ctrl.Pending()) > 0 {
			badge = interceptingBadge.Render("INTERCEPTING")
		} else {
			badge = pausedBadge.Render("PAUSED")
		}
	}
	return fmt.Sprintf("%s  %s  %d pending", titleStyle.Render("jrpcproxy"), badge, len(m.ctrl.Pending()))
}

func (m Model) renderFooter() string {
	if m.statusMsg != "" {
		style := descStyle
		if m.statusErr {
			style = errStyle
		}
		return style.Render(m.statusMsg)
	}
	return descStyle.Render("p pause  a allow  b block  c complete  e edit  h headers  n new  r resume  / filter  t target  q quit")
}
