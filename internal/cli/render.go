// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/mockchat/internal/model"
	"github.com/jeranaias/mockchat/internal/store"
	"github.com/jeranaias/mockchat/internal/tui"
)

// renderMarkdown renders content for the terminal, falling back to the raw
// text when rendering fails.
func renderMarkdown(content string, theme store.Theme) string {
	return tui.RenderMarkdown(content, theme, GetTerminalWidth()-4)
}

const listPreviewWidth = 40

func writeConversationList(w io.Writer, convs []*model.Conversation, currentID string) {
	for i, c := range convs {
		marker := "  "
		if c.ID == currentID {
			marker = HighlightStyle.Render("* ")
		}
		updated := time.UnixMilli(c.UpdatedAt).Format("2006-01-02 15:04")
		fmt.Fprintf(w, "%s%2d. %s %s %s\n",
			marker, i+1, c.Title,
			DimStyle.Render(fmt.Sprintf("(%d 条消息, %s)", len(c.Messages), updated)),
			DimStyle.Render(c.Preview(listPreviewWidth)))
	}
}

func writeModelList(w io.Writer, models []model.ModelDescriptor, currentID string) {
	for _, m := range models {
		marker := "  "
		if m.ID == currentID {
			marker = HighlightStyle.Render("* ")
		}
		fmt.Fprintf(w, "%s%s %s\n", marker, LabelStyle.Render(m.ID), m.String())
		if m.Description != "" {
			fmt.Fprintf(w, "  %s %s\n", LabelStyle.Render(""), DimStyle.Render(m.Description))
		}
	}
}

// writeTranscript prints every message of c. Assistant replies go through
// render when it is set.
func writeTranscript(w io.Writer, c *model.Conversation, render func(string, store.Theme) string, theme store.Theme) {
	fmt.Fprintln(w, TitleStyle.Render(c.Title))
	for _, m := range c.Messages {
		label := promptStyle.Render(m.Role.DisplayName())
		if m.IsAssistant() {
			label = assistantStyle.Render(m.Role.DisplayName())
			if m.ModelID != "" {
				label += " " + DimStyle.Render(m.ModelID)
			}
		}
		fmt.Fprintln(w, label)

		content := m.Content
		if render != nil && m.IsAssistant() && content != "" {
			content = strings.TrimRight(render(content, theme), "\n")
		}
		fmt.Fprintln(w, content)
		if m.Interrupted {
			fmt.Fprintln(w, WarningStyle.Render("[已中断]"))
		}
		fmt.Fprintln(w)
	}
}
