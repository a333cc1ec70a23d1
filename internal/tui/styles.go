// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mockchat/internal/store"
)

// =============================================================================
// COLOR PALETTE
// =============================================================================

// palette holds the colours for one theme.
type palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Text      lipgloss.Color
	Muted     lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Border    lipgloss.Color
}

var (
	lightPalette = palette{
		Primary:   lipgloss.Color("#1677FF"),
		Secondary: lipgloss.Color("#389E0D"),
		Text:      lipgloss.Color("#1F1F1F"),
		Muted:     lipgloss.Color("#8C8C8C"),
		Error:     lipgloss.Color("#CF1322"),
		Warning:   lipgloss.Color("#D46B08"),
		Border:    lipgloss.Color("#D9D9D9"),
	}
	darkPalette = palette{
		Primary:   lipgloss.Color("#69B1FF"),
		Secondary: lipgloss.Color("#95DE64"),
		Text:      lipgloss.Color("#E8E8E8"),
		Muted:     lipgloss.Color("#7A7A7A"),
		Error:     lipgloss.Color("#FF7875"),
		Warning:   lipgloss.Color("#FFC069"),
		Border:    lipgloss.Color("#434343"),
	}
)

func paletteFor(theme store.Theme) palette {
	if theme == store.ThemeDark {
		return darkPalette
	}
	return lightPalette
}

var spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#1677FF"))

// styles are the lipgloss styles derived from a palette.
type styles struct {
	Header      lipgloss.Style
	HeaderMuted lipgloss.Style
	User        lipgloss.Style
	Assistant   lipgloss.Style
	Body        lipgloss.Style
	Muted       lipgloss.Style
	Interrupted lipgloss.Style
	Error       lipgloss.Style
	Status      lipgloss.Style
	Input       lipgloss.Style
	Cursor      lipgloss.Style
}

func stylesFor(theme store.Theme) styles {
	p := paletteFor(theme)
	return styles{
		Header:      lipgloss.NewStyle().Bold(true).Foreground(p.Primary),
		HeaderMuted: lipgloss.NewStyle().Foreground(p.Muted),
		User:        lipgloss.NewStyle().Bold(true).Foreground(p.Primary),
		Assistant:   lipgloss.NewStyle().Bold(true).Foreground(p.Secondary),
		Body:        lipgloss.NewStyle().Foreground(p.Text).PaddingLeft(2),
		Muted:       lipgloss.NewStyle().Foreground(p.Muted),
		Interrupted: lipgloss.NewStyle().Foreground(p.Warning).PaddingLeft(2),
		Error:       lipgloss.NewStyle().Foreground(p.Error),
		Status:      lipgloss.NewStyle().Foreground(p.Muted),
		Input: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(p.Border),
		Cursor: lipgloss.NewStyle().Foreground(p.Primary),
	}
}
