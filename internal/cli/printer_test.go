// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mockchat/internal/chat"
	"github.com/jeranaias/mockchat/internal/logging"
	"github.com/jeranaias/mockchat/internal/model"
	"github.com/jeranaias/mockchat/internal/store"
)

func TestTokenPrinterWritesSuffixes(t *testing.T) {
	st := store.New(store.WithLogger(logging.Discard()))
	conv := st.CreateConversation("")
	msgID, err := st.CreateAssistantPlaceholder(conv.ID, model.DefaultModelID)
	require.NoError(t, err)

	var out bytes.Buffer
	p := newTokenPrinter(&out, st, &chat.Session{ConversationID: conv.ID, MessageID: msgID})
	unsubscribe := st.Subscribe(p.onEvent)
	defer unsubscribe()

	appendToken := func(tok string) {
		st.UpdateMessage(conv.ID, msgID, func(m *model.Message) { m.Content += tok })
	}
	appendToken("你")
	appendToken("好")
	appendToken("！")
	assert.Equal(t, "你好！", out.String())
	assert.Equal(t, "你好！", p.Printed())

	// A reset (retry) starts over on a new line.
	st.UpdateMessage(conv.ID, msgID, func(m *model.Message) { m.Content = "重来" })
	assert.Equal(t, "你好！\n重来", out.String())
}

func TestTokenPrinterIgnoresOtherMessages(t *testing.T) {
	st := store.New(store.WithLogger(logging.Discard()))
	conv := st.CreateConversation("")
	mine, err := st.CreateAssistantPlaceholder(conv.ID, model.DefaultModelID)
	require.NoError(t, err)
	other, err := st.CreateAssistantPlaceholder(conv.ID, model.DefaultModelID)
	require.NoError(t, err)

	var out bytes.Buffer
	p := newTokenPrinter(&out, st, &chat.Session{ConversationID: conv.ID, MessageID: mine})
	unsubscribe := st.Subscribe(p.onEvent)
	defer unsubscribe()

	st.UpdateMessage(conv.ID, other, func(m *model.Message) { m.Content = "别的" })
	assert.Empty(t, out.String())
}

func TestWriteTranscript(t *testing.T) {
	conv := model.NewConversation("标题", model.DefaultModelID)
	conv.AddMessage(model.NewUserMessage("问", model.DefaultModelID))
	reply := model.NewAssistantMessage(model.DefaultModelID)
	reply.Content = "答"
	reply.Interrupted = true
	conv.AddMessage(reply)

	var out bytes.Buffer
	writeTranscript(&out, conv, func(s string, _ store.Theme) string { return "[" + s + "]\n" }, store.ThemeLight)

	got := out.String()
	assert.Contains(t, got, "标题")
	assert.Contains(t, got, "问")
	assert.Contains(t, got, "[答]")
	assert.NotContains(t, got, "[问]")
	assert.Contains(t, got, "[已中断]")
	assert.Contains(t, got, model.DefaultModelID)
}
