// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Send     key.Binding
	Abort    key.Binding
	Retry    key.Binding
	New      key.Binding
	Prev     key.Binding
	Next     key.Binding
	Delete   key.Binding
	Theme    key.Binding
	Model    key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "发送")),
		Abort:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "中断")),
		Retry:    key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "重试")),
		New:      key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "新会话")),
		Prev:     key.NewBinding(key.WithKeys("ctrl+up"), key.WithHelp("ctrl+↑", "上一个")),
		Next:     key.NewBinding(key.WithKeys("ctrl+down"), key.WithHelp("ctrl+↓", "下一个")),
		Delete:   key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "删除会话")),
		Theme:    key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "主题")),
		Model:    key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "切换模型")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "退出")),
	}
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.Send, k.Abort, k.Retry, k.New, k.Prev, k.Next, k.Model, k.Theme, k.Quit}
}
