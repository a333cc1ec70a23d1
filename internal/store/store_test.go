// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mockchat/internal/model"
	"github.com/jeranaias/mockchat/internal/storage"
)

// =============================================================================
// CONVERSATION CRUD
// =============================================================================

func TestCreateConversation(t *testing.T) {
	s := New()

	first := s.CreateConversation("")
	assert.Equal(t, model.DefaultTitle, first.Title)
	assert.Equal(t, "mock-gpt", first.CurrentModelID)
	assert.Equal(t, first.ID, s.CurrentID())

	require.NoError(t, s.SetCurrentModel("mock-deepseek"))
	second := s.CreateConversation("named")
	assert.Equal(t, "named", second.Title)
	assert.Equal(t, "mock-deepseek", second.CurrentModelID, "inherits the current conversation's model")
	assert.Equal(t, second.ID, s.CurrentID())
	assert.Len(t, s.Conversations(), 2)
}

func TestDelete_MovesCurrentToFirstRemaining(t *testing.T) {
	s := New()
	a := s.CreateConversation("a")
	b := s.CreateConversation("b")
	c := s.CreateConversation("c")

	require.True(t, s.Delete(c.ID))
	assert.Equal(t, a.ID, s.CurrentID())

	require.True(t, s.Delete(b.ID))
	assert.Equal(t, a.ID, s.CurrentID(), "deleting a non-current conversation keeps the selection")

	require.True(t, s.Delete(a.ID))
	assert.Empty(t, s.CurrentID())
	assert.Nil(t, s.Current())
	assert.False(t, s.Delete(a.ID))
}

func TestSetCurrent(t *testing.T) {
	s := New()
	a := s.CreateConversation("a")
	s.CreateConversation("b")
	s.SetLoading(true)

	require.NoError(t, s.SetCurrent(a.ID))
	assert.Equal(t, a.ID, s.CurrentID())
	assert.True(t, s.Loading(), "switching conversations keeps loading")

	assert.ErrorIs(t, s.SetCurrent("missing"), ErrConversationNotFound)
}

func TestClear(t *testing.T) {
	s := New()
	s.CreateConversation("a")
	s.Clear()
	assert.Empty(t, s.Conversations())
	assert.Empty(t, s.CurrentID())
}

func TestReturnedConversationsAreCopies(t *testing.T) {
	s := New()
	conv := s.CreateConversation("a")
	_, err := s.AddMessage(conv.ID, model.RoleUser, "hi", "mock-gpt")
	require.NoError(t, err)

	got := s.Current()
	got.Messages[0].Content = "changed"
	got.Title = "changed"

	again := s.Current()
	assert.Equal(t, "hi", again.Messages[0].Content)
	assert.Equal(t, "a", again.Title)
}

func TestDeriveTitleAndRename(t *testing.T) {
	s := New()
	conv := s.CreateConversation("")

	s.DeriveTitle(conv.ID, "markdown 示例")
	got, _ := s.Conversation(conv.ID)
	assert.Equal(t, "markdown 示例", got.Title)

	require.NoError(t, s.Rename(conv.ID, "renamed"))
	got, _ = s.Conversation(conv.ID)
	assert.Equal(t, "renamed", got.Title)
	assert.ErrorIs(t, s.Rename("missing", "x"), ErrConversationNotFound)
}

// =============================================================================
// MESSAGE MUTATION CONTRACT
// =============================================================================

func TestCreateAssistantPlaceholder(t *testing.T) {
	s := New()
	conv := s.CreateConversation("")

	id, err := s.CreateAssistantPlaceholder(conv.ID, "mock-doubao")
	require.NoError(t, err)

	msg, ok := s.Message(conv.ID, id)
	require.True(t, ok)
	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Empty(t, msg.Content)
	assert.Equal(t, "mock-doubao", msg.ModelID)

	_, err = s.CreateAssistantPlaceholder("missing", "mock-gpt")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestAppendOrReplaceMessageContent(t *testing.T) {
	s := New()
	conv := s.CreateConversation("")
	userID, _ := s.AddMessage(conv.ID, model.RoleUser, "q", "mock-gpt")
	id, _ := s.CreateAssistantPlaceholder(conv.ID, "mock-gpt")

	s.AppendOrReplaceMessageContent(id, "Hel")
	s.AppendOrReplaceMessageContent(id, "Hello")
	s.AppendOrReplaceMessageContent("missing", "ignored")

	cur := s.Current()
	require.Len(t, cur.Messages, 2)
	assert.Equal(t, userID, cur.Messages[0].ID, "order is preserved")
	assert.Equal(t, "Hello", cur.Messages[1].Content)
}

func TestAppendOrReplaceMessageContent_OnlyCurrentConversation(t *testing.T) {
	s := New()
	first := s.CreateConversation("a")
	id, _ := s.CreateAssistantPlaceholder(first.ID, "mock-gpt")
	s.CreateConversation("b")

	s.AppendOrReplaceMessageContent(id, "x")

	msg, _ := s.Message(first.ID, id)
	assert.Empty(t, msg.Content)
}

func TestSetInterrupted(t *testing.T) {
	s := New()
	conv := s.CreateConversation("")
	id, _ := s.CreateAssistantPlaceholder(conv.ID, "mock-gpt")
	s.AppendOrReplaceMessageContent(id, "Hel")

	s.SetInterrupted(id, true)

	msg, _ := s.Message(conv.ID, id)
	assert.True(t, msg.Interrupted)
	assert.Equal(t, "Hel", msg.Content)
}

func TestUpdateMessage(t *testing.T) {
	s := New()
	conv := s.CreateConversation("")
	userID, _ := s.AddMessage(conv.ID, model.RoleUser, "q", "mock-gpt")
	id, _ := s.CreateAssistantPlaceholder(conv.ID, "mock-gpt")

	ok := s.UpdateMessage(conv.ID, id, func(m *model.Message) {
		m.Content += "a"
		m.ID = "hijacked"
		m.Role = model.RoleUser
	})
	require.True(t, ok)

	msg, found := s.Message(conv.ID, id)
	require.True(t, found, "identity fields cannot be changed")
	assert.Equal(t, "a", msg.Content)
	assert.Equal(t, model.RoleAssistant, msg.Role)

	called := false
	assert.False(t, s.UpdateMessage(conv.ID, userID, func(*model.Message) { called = true }))
	assert.False(t, called, "user messages are never mutated")
	assert.False(t, s.UpdateMessage(conv.ID, "missing", func(*model.Message) { called = true }))
	assert.False(t, called)
}

func TestMutationsAfterDeleteAreNoOps(t *testing.T) {
	s := New()
	conv := s.CreateConversation("")
	id, _ := s.CreateAssistantPlaceholder(conv.ID, "mock-gpt")
	require.True(t, s.Delete(conv.ID))

	assert.NotPanics(t, func() {
		assert.False(t, s.UpdateMessage(conv.ID, id, func(m *model.Message) { m.Content = "late" }))
		s.AppendOrReplaceMessageContent(id, "late")
		s.SetInterrupted(id, true)
	})
	assert.Empty(t, s.Conversations())
}

func TestUpdateMessage_ConcurrentAppendsKeepEveryToken(t *testing.T) {
	s := New()
	conv := s.CreateConversation("")
	id, _ := s.CreateAssistantPlaceholder(conv.ID, "mock-gpt")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.UpdateMessage(conv.ID, id, func(m *model.Message) { m.Content += "x" })
		}()
	}
	wg.Wait()

	msg, _ := s.Message(conv.ID, id)
	assert.Len(t, msg.Content, 50)
}

// =============================================================================
// MODELS
// =============================================================================

func TestModels(t *testing.T) {
	s := New()

	temp := 1.5
	require.NoError(t, s.UpdateModelConfig("mock-gpt", model.ConfigPatch{Temperature: &temp}))
	gpt, ok := s.Model("mock-gpt")
	require.True(t, ok)
	assert.Equal(t, model.ModelConfig{Temperature: 1.5, MaxTokens: 1000}, gpt.Config)

	assert.ErrorIs(t, s.UpdateModelConfig("nope", model.ConfigPatch{}), ErrUnknownModel)
	assert.ErrorIs(t, s.SetCurrentModel("mock-gpt"), ErrConversationNotFound)

	s.CreateConversation("")
	assert.ErrorIs(t, s.SetCurrentModel("nope"), ErrUnknownModel)

	s.SetModelConfig(map[string]model.ModelConfig{"mock-doubao": {Temperature: 0.1, MaxTokens: 10}, "nope": {}})
	doubao, _ := s.Model("mock-doubao")
	assert.Equal(t, 10, doubao.Config.MaxTokens)
	assert.Len(t, s.Models(), 3)
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

func TestSubscribe(t *testing.T) {
	s := New()
	var mu sync.Mutex
	var kinds []EventKind

	unsubscribe := s.Subscribe(func(ev Event) {
		// Re-entrant reads must not deadlock.
		_ = s.Current()
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})

	conv := s.CreateConversation("")
	id, _ := s.CreateAssistantPlaceholder(conv.ID, "mock-gpt")
	s.UpdateMessage(conv.ID, id, func(m *model.Message) { m.Content = "a" })
	s.UpdateMessage(conv.ID, id, func(m *model.Message) { m.Content = "a" }) // unchanged
	unsubscribe()
	s.SetLoading(true)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventKind{EventConversations, EventCurrent, EventMessage, EventMessage}, kinds)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func TestSnapshotJSONLayout(t *testing.T) {
	s := New()
	conv := s.CreateConversation("")
	s.SetTheme(ThemeDark)

	chat, app := s.Snapshot()
	data, err := json.Marshal(chat)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, conv.ID, raw["currentConversationId"])
	assert.Contains(t, raw, "conversations")
	assert.Equal(t, ThemeDark, app.Theme)

	s.Clear()
	chat, _ = s.Snapshot()
	data, _ = json.Marshal(chat)
	assert.Contains(t, string(data), `"currentConversationId":null`)
}

func TestPersistAndLoad(t *testing.T) {
	ctx := context.Background()
	backend, err := storage.NewFileBackend(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	s := New()
	conv := s.CreateConversation("")
	_, _ = s.AddMessage(conv.ID, model.RoleUser, "你好", "mock-gpt")
	id, _ := s.CreateAssistantPlaceholder(conv.ID, "mock-gpt")
	s.UpdateMessage(conv.ID, id, func(m *model.Message) { m.Content = "Hel"; m.Interrupted = true })
	temp := 0.2
	require.NoError(t, s.UpdateModelConfig("mock-deepseek", model.ConfigPatch{Temperature: &temp}))
	s.SetTheme(ThemeDark)
	s.SetLoading(true)

	require.NoError(t, s.Persist(ctx, backend))

	restored := New()
	require.NoError(t, restored.Load(ctx, backend))

	assert.Equal(t, conv.ID, restored.CurrentID())
	cur := restored.Current()
	require.Len(t, cur.Messages, 2)
	assert.Equal(t, "Hel", cur.Messages[1].Content)
	assert.True(t, cur.Messages[1].Interrupted)
	deepseek, _ := restored.Model("mock-deepseek")
	assert.Equal(t, 0.2, deepseek.Config.Temperature)
	assert.Equal(t, ThemeDark, restored.Theme())
	assert.False(t, restored.Loading(), "loading is transient")
}

func TestLoad_EmptyAndCorruptBackends(t *testing.T) {
	ctx := context.Background()
	backend, err := storage.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	s := New()
	require.NoError(t, s.Load(ctx, backend))
	assert.Empty(t, s.Conversations())

	require.NoError(t, backend.Save(ctx, ChatStorageKey, []byte("{broken")))
	require.NoError(t, s.Load(ctx, backend))
	assert.Empty(t, s.Conversations())
	assert.Len(t, s.Models(), 3)
}

func TestHydrate_DropsInvalidEntries(t *testing.T) {
	dangling := "gone"
	s := New()
	s.Hydrate(ChatSnapshot{
		Conversations: []*model.Conversation{
			{ID: "c1", Title: "ok", Messages: []*model.Message{
				{ID: "m1", Role: model.RoleUser, Content: "q"},
				{ID: "", Role: model.RoleAssistant},
				{ID: "m3", Role: "system"},
			}},
			{ID: ""},
			nil,
		},
		CurrentConversationID: &dangling,
	}, AppConfigSnapshot{Models: []model.ModelDescriptor{{ID: "unknown"}}})

	convs := s.Conversations()
	require.Len(t, convs, 1)
	assert.Len(t, convs[0].Messages, 1)
	assert.Empty(t, s.CurrentID())
	assert.Len(t, s.Models(), 3)
}
