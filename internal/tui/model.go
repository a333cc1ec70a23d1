// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tui is the full-screen chat interface. It renders the store and
// drives the orchestrator; every state change flows back through store
// events.
package tui

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/mockchat/internal/chat"
	"github.com/jeranaias/mockchat/internal/store"
)

// Deps are the collaborators the interface needs.
type Deps struct {
	Store *store.Store
	Orch  *chat.Orchestrator

	// Persist saves the store after changes made from the interface.
	Persist func(context.Context) error

	Logger *slog.Logger
}

// Run starts the interface and blocks until the user quits or ctx is done.
func Run(ctx context.Context, deps Deps) error {
	m := New(deps)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// storeChangedMsg reports that the store changed since the last render.
type storeChangedMsg struct{}

// sessionEndedMsg reports that a reply finished, failed or was aborted.
type sessionEndedMsg struct {
	session *chat.Session
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	deps Deps

	width  int
	height int
	ready  bool

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	status string
	keys   keyMap

	// changes coalesces store events into at most one pending render.
	changes     chan struct{}
	unsubscribe func()

	rendered map[string]renderedMessage
}

type renderedMessage struct {
	content string
	theme   store.Theme
	width   int
	out     string
}

// New creates the model and subscribes it to the store.
func New(deps Deps) *Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Persist == nil {
		deps.Persist = func(context.Context) error { return nil }
	}

	input := textarea.New()
	input.Placeholder = "输入消息，Enter 发送，Alt+Enter 换行"
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(inputHeight)
	input.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := &Model{
		deps:     deps,
		viewport: viewport.New(80, 20),
		input:    input,
		spinner:  sp,
		keys:     defaultKeyMap(),
		changes:  make(chan struct{}, 1),
		rendered: make(map[string]renderedMessage),
	}
	m.unsubscribe = deps.Store.Subscribe(func(store.Event) {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	})
	return m
}

// Close drops the store subscription.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.waitForChange())
}

// waitForChange blocks until the store changes.
func (m *Model) waitForChange() tea.Cmd {
	changes := m.changes
	return func() tea.Msg {
		<-changes
		return storeChangedMsg{}
	}
}

// waitForSession blocks until s ends.
func waitForSession(s *chat.Session) tea.Cmd {
	return func() tea.Msg {
		<-s.Done()
		return sessionEndedMsg{session: s}
	}
}
