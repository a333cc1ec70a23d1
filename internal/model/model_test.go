// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_JSONLayout(t *testing.T) {
	msg := &Message{ID: "m1", Role: RoleAssistant, Content: "hi", Timestamp: 42, ModelID: "mock-gpt", Interrupted: true}

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1","role":"assistant","content":"hi","timestamp":42,"modelId":"mock-gpt","interrupted":true}`, string(data))

	plain, err := json.Marshal(&Message{ID: "m2", Role: RoleUser, Timestamp: 1})
	require.NoError(t, err)
	assert.NotContains(t, string(plain), "interrupted")
	assert.NotContains(t, string(plain), "modelId")
}

func TestNewAssistantMessage(t *testing.T) {
	msg := NewAssistantMessage("mock-doubao")

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Empty(t, msg.Content)
	assert.Equal(t, "mock-doubao", msg.ModelID)
	assert.NotZero(t, msg.Timestamp)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"short", "hello", 10, "hello"},
		{"newlines flattened", "a\nb", 10, "a b"},
		{"ascii cut", "hello world", 8, "hello..."},
		{"wide runes", "你好世界你好世界", 9, "你好世..."},
		{"no limit", "anything", 0, "anything"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Truncate(tc.in, tc.width); got != tc.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.width, got, tc.want)
			}
		})
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestNewConversation_DefaultTitle(t *testing.T) {
	conv := NewConversation("", DefaultModelID)
	assert.Equal(t, DefaultTitle, conv.Title)
	assert.Equal(t, DefaultModelID, conv.CurrentModelID)
	assert.NotNil(t, conv.Messages)
}

func TestConversation_PromptFor(t *testing.T) {
	conv := NewConversation("t", DefaultModelID)
	user := NewUserMessage("你好", DefaultModelID)
	reply := NewAssistantMessage(DefaultModelID)
	orphan := NewAssistantMessage(DefaultModelID)
	conv.AddMessage(user)
	conv.AddMessage(reply)
	conv.AddMessage(orphan)

	assert.Equal(t, user, conv.PromptFor(reply.ID))
	assert.Nil(t, conv.PromptFor(orphan.ID), "previous message is not a user message")
	assert.Nil(t, conv.PromptFor(user.ID), "first message has no predecessor")
	assert.Nil(t, conv.PromptFor("missing"))
}

func TestConversation_HistoryBefore(t *testing.T) {
	conv := NewConversation("t", DefaultModelID)
	user := NewUserMessage("q", DefaultModelID)
	reply := NewAssistantMessage(DefaultModelID)
	conv.AddMessage(user)
	conv.AddMessage(reply)

	history := conv.HistoryBefore(reply.ID)
	require.Len(t, history, 1)
	assert.Equal(t, "q", history[0].Content)

	history[0].Content = "changed"
	assert.Equal(t, "q", user.Content, "history must be a copy")
	assert.Nil(t, conv.HistoryBefore("missing"))
}

func TestConversation_DeriveTitle(t *testing.T) {
	conv := NewConversation("", DefaultModelID)
	assert.True(t, conv.DeriveTitle("介绍一下自己"))
	assert.Equal(t, "介绍一下自己", conv.Title)
	assert.False(t, conv.DeriveTitle("another prompt"), "title only derived once")
}

func TestConversation_Clone(t *testing.T) {
	conv := NewConversation("t", DefaultModelID)
	conv.AddMessage(NewUserMessage("a", DefaultModelID))

	clone := conv.Clone()
	clone.Messages[0].Content = "b"
	clone.Title = "other"

	assert.Equal(t, "a", conv.Messages[0].Content)
	assert.Equal(t, "t", conv.Title)
}

// =============================================================================
// MODEL REGISTRY TESTS
// =============================================================================

func TestDefaultModels(t *testing.T) {
	models := DefaultModels()
	require.Len(t, models, 3)

	for _, m := range models {
		t.Run(m.ID, func(t *testing.T) {
			assert.NotEmpty(t, m.API)
			assert.NotEmpty(t, m.Name)
			assert.Positive(t, m.Config.MaxTokens)
		})
	}

	gpt, ok := FindModel(models, "mock-gpt")
	require.True(t, ok)
	assert.Equal(t, "/api/chat/gpt", gpt.API)
	assert.Equal(t, ModelConfig{Temperature: 0.7, MaxTokens: 1000}, gpt.Config)

	models[0].Config.MaxTokens = 1
	assert.Equal(t, 1000, DefaultModels()[0].Config.MaxTokens, "DefaultModels must return a copy")
}

func TestDefaultConfig_FallsBack(t *testing.T) {
	assert.Equal(t, ModelConfig{Temperature: 0.8, MaxTokens: 2000}, DefaultConfig("mock-deepseek"))
	assert.Equal(t, DefaultConfig(DefaultModelID), DefaultConfig("unknown"))
}

func TestConfigPatch_Apply(t *testing.T) {
	temp := 1.2
	got := ConfigPatch{Temperature: &temp}.Apply(ModelConfig{Temperature: 0.7, MaxTokens: 1000})
	assert.Equal(t, ModelConfig{Temperature: 1.2, MaxTokens: 1000}, got)
}
