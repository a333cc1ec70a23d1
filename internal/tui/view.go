// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mockchat/internal/model"
	"github.com/jeranaias/mockchat/internal/store"
)

const (
	headerHeight = 1
	footerHeight = 2 // status + help

	streamCursor     = "▌"
	interruptedLabel = "[已中断]"
)

// View implements tea.Model.
// Layout: header + messages (viewport) + input + status + help.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	st := stylesFor(m.deps.Store.Theme())

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(st),
		m.viewport.View(),
		st.Input.Width(m.width).Render(m.input.View()),
		m.renderStatus(st),
		m.renderHelp(st),
	)
}

// =============================================================================
// HEADER AND FOOTER
// =============================================================================

func (m *Model) renderHeader(st styles) string {
	title := "mockchat"
	modelName := ""
	if cur := m.deps.Store.Current(); cur != nil {
		title = cur.Title
		if desc, ok := m.deps.Store.Model(cur.CurrentModelID); ok {
			modelName = desc.Name
		}
	}

	pos := ""
	convs := m.deps.Store.Conversations()
	curID := m.deps.Store.CurrentID()
	for i, c := range convs {
		if c.ID == curID {
			pos = fmt.Sprintf(" (%d/%d)", i+1, len(convs))
			break
		}
	}

	left := st.Header.Render(model.Truncate(title, max(m.width/2, 10))) + st.HeaderMuted.Render(pos)
	right := st.HeaderMuted.Render(modelName)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m *Model) renderStatus(st styles) string {
	if m.deps.Store.Loading() {
		return m.spinner.View() + st.Status.Render(" 正在生成回复…")
	}
	if m.status != "" {
		return st.Status.Render(m.status)
	}
	return ""
}

func (m *Model) renderHelp(st styles) string {
	parts := make([]string, 0, len(m.keys.help()))
	for _, b := range m.keys.help() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return st.Muted.Render(model.Truncate(strings.Join(parts, " · "), m.width))
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// transcript renders every message of the current conversation.
func (m *Model) transcript() string {
	theme := m.deps.Store.Theme()
	st := stylesFor(theme)

	cur := m.deps.Store.Current()
	if cur == nil || len(cur.Messages) == 0 {
		return m.renderWelcome(st)
	}

	width := m.viewport.Width
	bodyWidth := max(width-2, 10)

	var b strings.Builder
	for i, msg := range cur.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		if msg.IsUser() {
			b.WriteString(st.User.Render(msg.Role.DisplayName()))
			b.WriteString("\n")
			b.WriteString(st.Body.Width(bodyWidth).Render(msg.Content))
			b.WriteString("\n")
			continue
		}

		b.WriteString(st.Assistant.Render(m.assistantLabel(msg)))
		b.WriteString("\n")

		_, live := m.deps.Orch.Session(msg.ID)
		switch {
		case live && msg.Content == "":
			b.WriteString(st.Body.Render(st.Muted.Render("思考中…")))
		case live:
			b.WriteString(st.Body.Width(bodyWidth).Render(msg.Content + st.Cursor.Render(streamCursor)))
		default:
			b.WriteString(m.renderAssistant(msg, theme, width))
		}
		b.WriteString("\n")

		if msg.Interrupted {
			b.WriteString(st.Interrupted.Render(interruptedLabel))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *Model) assistantLabel(msg *model.Message) string {
	if desc, ok := m.deps.Store.Model(msg.ModelID); ok {
		return desc.Name
	}
	return msg.Role.DisplayName()
}

// renderAssistant renders a finished reply as markdown, reusing the previous
// output while nothing that affects it has changed.
func (m *Model) renderAssistant(msg *model.Message, theme store.Theme, width int) string {
	if r, ok := m.rendered[msg.ID]; ok && r.content == msg.Content && r.theme == theme && r.width == width {
		return r.out
	}
	out := strings.TrimRight(RenderMarkdown(msg.Content, theme, width), "\n")
	m.rendered[msg.ID] = renderedMessage{content: msg.Content, theme: theme, width: width, out: out}
	return out
}

func (m *Model) renderWelcome(st styles) string {
	var b strings.Builder
	b.WriteString(st.Header.Render("欢迎使用 mockchat"))
	b.WriteString("\n\n")
	b.WriteString(st.Muted.Render("可用模型:"))
	b.WriteString("\n")
	for _, desc := range m.deps.Store.Models() {
		fmt.Fprintf(&b, "  %s  %s\n", st.Assistant.Render(desc.Name), st.Muted.Render(desc.Description))
	}
	b.WriteString("\n")
	b.WriteString(st.Muted.Render("试试输入 你好、介绍、markdown 或 代码"))
	return b.String()
}
