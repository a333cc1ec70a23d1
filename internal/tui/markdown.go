// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/mockchat/internal/store"
)

const minRenderWidth = 20

type rendererKey struct {
	theme store.Theme
	width int
}

var (
	renderersMu sync.Mutex
	renderers   = make(map[rendererKey]*glamour.TermRenderer)
)

// RenderMarkdown renders content with the glamour style matching theme,
// wrapped at width. It returns content unchanged if rendering fails.
func RenderMarkdown(content string, theme store.Theme, width int) string {
	if width < minRenderWidth {
		width = minRenderWidth
	}
	key := rendererKey{theme: theme, width: width}

	renderersMu.Lock()
	defer renderersMu.Unlock()

	r, ok := renderers[key]
	if !ok {
		var err error
		r, err = glamour.NewTermRenderer(
			glamour.WithStandardStyle(glamourStyle(theme)),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content
		}
		renderers[key] = r
	}

	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

func glamourStyle(theme store.Theme) string {
	if theme == store.ThemeDark {
		return "dark"
	}
	return "light"
}
