// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tui

import (
	"fmt"
	"os"
	"os/exec"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// editorResultMsg carries the outcome of an external editor invocation back
// into the bubbletea event loop.
type editorResultMsg struct {
	target  editTarget
	content string
	err     error
}

// editTarget identifies which buffer an editor invocation is editing, so the
// Update handler can route editorResultMsg to the right apply method.
type editTarget int

const (
	editTargetBody editTarget = iota
	editTargetHeaders
	editTargetResponse
	editTargetNewRequest
)

// editorAvailable reports whether launching a full-screen external editor is
// viable: both stdin and stdout must be an attached terminal, since
// tea.ExecProcess hands the program the controlling terminal for the
// duration of the edit.
func editorAvailable() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// editorCommand resolves which editor to launch: $EDITOR, then $VISUAL,
// then the first of vim/nano found on PATH, falling back to vi as the last
// resort. Mirrors original_source/src/main.rs's launch_external_editor
// fallback search.
func editorCommand() string {
	if e := os.Getenv("EDITOR"); e != "" {
		return e
	}
	if e := os.Getenv("VISUAL"); e != "" {
		return e
	}
	if _, err := exec.LookPath("vim"); err == nil {
		return "vim"
	}
	if _, err := exec.LookPath("nano"); err == nil {
		return "nano"
	}
	return "vi"
}

// openEditor writes initial to a temp file, runs the configured $EDITOR
// against it via tea.ExecProcess (which suspends the bubbletea renderer for
// the subprocess's lifetime), and reports the edited content back as an
// editorResultMsg tagged with target.
func openEditor(target editTarget, initial string) tea.Cmd {
	if !editorAvailable() {
		return func() tea.Msg {
			return editorResultMsg{target: target, err: fmt.Errorf("no interactive terminal available for external editor")}
		}
	}

	f, err := os.CreateTemp("", "jrpcproxy-*.json")
	if err != nil {
		return func() tea.Msg { return editorResultMsg{target: target, err: err} }
	}
	path := f.Name()
	if _, err := f.WriteString(initial); err != nil {
		f.Close()
		os.Remove(path)
		return func() tea.Msg { return editorResultMsg{target: target, err: err} }
	}
	f.Close()

	cmd := exec.Command(editorCommand(), path)
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		defer os.Remove(path)
		if err != nil {
			return editorResultMsg{target: target, err: err}
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return editorResultMsg{target: target, err: readErr}
		}
		return editorResultMsg{target: target, content: string(content)}
	})
}
