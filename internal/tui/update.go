// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/mockchat/internal/chat"
	"github.com/jeranaias/mockchat/internal/store"
)

const inputHeight = 3

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case storeChangedMsg:
		m.refresh()
		return m, m.waitForChange()

	case sessionEndedMsg:
		s := msg.session
		switch {
		case s.Aborted():
			m.status = "已中断"
		case s.Err() != nil:
			m.status = "请求出错: " + s.Err().Error()
		default:
			m.status = ""
		}
		m.refresh()

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKey processes bindings that act on the chat rather than the input.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.deps.Orch.AbortAll()
		return tea.Quit, true

	case key.Matches(msg, m.keys.Send):
		return m.send(), true

	case key.Matches(msg, m.keys.Abort):
		m.abort()
		return nil, true

	case key.Matches(msg, m.keys.Retry):
		return m.retry(), true

	case key.Matches(msg, m.keys.New):
		m.deps.Store.CreateConversation("")
		m.status = ""
		m.persist()
		return nil, true

	case key.Matches(msg, m.keys.Prev):
		m.step(-1)
		return nil, true

	case key.Matches(msg, m.keys.Next):
		m.step(1)
		return nil, true

	case key.Matches(msg, m.keys.Delete):
		if cur := m.deps.Store.Current(); cur != nil {
			m.abortConversation(cur.ID)
			m.deps.Store.Delete(cur.ID)
			m.persist()
		}
		return nil, true

	case key.Matches(msg, m.keys.Theme):
		if m.deps.Store.Theme() == store.ThemeDark {
			m.deps.Store.SetTheme(store.ThemeLight)
		} else {
			m.deps.Store.SetTheme(store.ThemeDark)
		}
		m.persist()
		return nil, true

	case key.Matches(msg, m.keys.Model):
		m.cycleModel()
		return nil, true

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return nil, true

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return nil, true
	}
	return nil, false
}

// =============================================================================
// ACTIONS
// =============================================================================

func (m *Model) send() tea.Cmd {
	prompt := strings.TrimSpace(m.input.Value())
	if prompt == "" {
		return nil
	}
	if m.busy() {
		m.status = "回复生成中，按 Esc 中断"
		return nil
	}

	s, err := m.deps.Orch.SendPrompt(context.Background(), prompt)
	if err != nil {
		m.status = err.Error()
		return nil
	}
	m.input.Reset()
	m.status = ""
	m.refresh()
	return waitForSession(s)
}

func (m *Model) retry() tea.Cmd {
	cur := m.deps.Store.Current()
	if cur == nil {
		return nil
	}
	last := cur.LastAssistantMessage()
	if last == nil {
		m.status = "没有可以重试的回复"
		return nil
	}
	s, err := m.deps.Orch.Retry(context.Background(), cur.ID, last.ID)
	switch {
	case errors.Is(err, chat.ErrNoPrompt):
		m.status = "该回复之前没有用户消息"
		return nil
	case err != nil:
		m.status = err.Error()
		return nil
	}
	m.status = ""
	return waitForSession(s)
}

// abort stops the reply streaming into the current conversation.
func (m *Model) abort() {
	if cur := m.deps.Store.Current(); cur != nil {
		m.abortConversation(cur.ID)
	}
}

func (m *Model) abortConversation(conversationID string) {
	conv, ok := m.deps.Store.Conversation(conversationID)
	if !ok {
		return
	}
	for _, msg := range conv.Messages {
		if s, ok := m.deps.Orch.Session(msg.ID); ok {
			s.Cancel()
		}
	}
}

// busy reports whether the current conversation has a live reply.
func (m *Model) busy() bool {
	cur := m.deps.Store.Current()
	if cur == nil {
		return false
	}
	for _, msg := range cur.Messages {
		if _, ok := m.deps.Orch.Session(msg.ID); ok {
			return true
		}
	}
	return false
}

func (m *Model) step(delta int) {
	convs := m.deps.Store.Conversations()
	if len(convs) == 0 {
		return
	}
	idx := 0
	curID := m.deps.Store.CurrentID()
	for i, c := range convs {
		if c.ID == curID {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(convs)) % len(convs)
	if err := m.deps.Store.SetCurrent(convs[idx].ID); err == nil {
		m.status = ""
		m.persist()
	}
}

func (m *Model) cycleModel() {
	models := m.deps.Store.Models()
	if len(models) == 0 {
		return
	}
	cur := m.deps.Store.Current()
	if cur == nil {
		cur = m.deps.Store.CreateConversation("")
	}
	next := models[0]
	for i, desc := range models {
		if desc.ID == cur.CurrentModelID {
			next = models[(i+1)%len(models)]
			break
		}
	}
	if err := m.deps.Store.SetCurrentModel(next.ID); err != nil {
		m.status = err.Error()
		return
	}
	m.status = "模型: " + next.Name
	m.persist()
}

func (m *Model) persist() {
	if err := m.deps.Persist(context.Background()); err != nil {
		m.deps.Logger.Error("failed to persist", "error", err)
		m.status = "保存失败: " + err.Error()
	}
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.input.SetWidth(width - 2)

	// The input carries a one-line top border.
	vpHeight := height - headerHeight - inputHeight - 1 - footerHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width, m.viewport.Height = width, vpHeight
	m.ready = true
	m.refresh()
}

// refresh rebuilds the transcript and keeps the view pinned to the bottom
// when it already was.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	m.viewport.SetContent(m.transcript())
	if atBottom {
		m.viewport.GotoBottom()
	}
}
